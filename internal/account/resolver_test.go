package account

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveRejectsInvalidEmail(t *testing.T) {
	r := NewResolver(newMemoryStore())
	ctx := context.Background()

	for _, email := range []string{"", "   ", "not-an-email", "missing@tld@double"} {
		_, err := r.Resolve(ctx, ExternalIdentity{Email: email, Provider: ProviderGoogle})
		require.ErrorIs(t, err, ErrInvalidIdentity, "email %q", email)
	}
}

func TestResolveFindsExistingByNormalizedEmail(t *testing.T) {
	store := newMemoryStore()
	existing := store.add(Account{Email: "mary@school.edu", Name: "Mary Price", Role: RoleTeacher, Status: StatusActive, Provider: ProviderGoogle})
	r := NewResolver(store)

	res, err := r.Resolve(context.Background(), ExternalIdentity{Email: "  Mary@School.EDU ", Provider: ProviderGoogle})
	require.NoError(t, err)
	require.True(t, res.Found)
	require.Equal(t, existing.ID, res.Account.ID)
	require.Nil(t, res.Proposed)
}

func TestResolveProposesPendingTeacherForUnknownGoogle(t *testing.T) {
	r := NewResolver(newMemoryStore())

	res, err := r.Resolve(context.Background(), ExternalIdentity{
		Email:    "New.Teacher@school.edu",
		Name:     " Pat Jones ",
		Provider: ProviderGoogle,
	})
	require.NoError(t, err)
	require.False(t, res.Found)
	require.NotNil(t, res.Proposed)
	require.Equal(t, "new.teacher@school.edu", res.Proposed.Email)
	require.Equal(t, "Pat Jones", res.Proposed.Name)
	require.Equal(t, RoleTeacher, res.Proposed.Role)
	require.Equal(t, StatusPending, res.Proposed.Status)
	require.Equal(t, ProviderGoogle, res.Proposed.Provider)
}

func TestResolveFallsBackToEmailLocalPartForName(t *testing.T) {
	r := NewResolver(newMemoryStore())

	res, err := r.Resolve(context.Background(), ExternalIdentity{Email: "sam@school.edu", Provider: ProviderGoogle})
	require.NoError(t, err)
	require.Equal(t, "Sam", res.Proposed.Name)
}

func TestResolveUnknownCredentialsNeverCreates(t *testing.T) {
	store := newMemoryStore()
	r := NewResolver(store)

	_, err := r.Resolve(context.Background(), ExternalIdentity{
		Email:    "nobody@school.edu",
		Provider: ProviderCredentials,
		Password: "whatever",
	})
	require.ErrorIs(t, err, ErrUnknownAccount)

	accounts, err := store.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, accounts)
}
