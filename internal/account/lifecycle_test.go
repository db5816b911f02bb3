package account

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApprovePendingAccount(t *testing.T) {
	store := newMemoryStore()
	acct := store.add(Account{Email: "t@school.edu", Role: RoleTeacher, Status: StatusPending, Provider: ProviderGoogle})
	lc := NewLifecycle(store)

	updated, err := lc.Approve(context.Background(), acct.ID)
	require.NoError(t, err)
	require.Equal(t, StatusActive, updated.Status)
}

func TestApproveIsIdempotent(t *testing.T) {
	store := newMemoryStore()
	acct := store.add(Account{Email: "t@school.edu", Role: RoleTeacher, Status: StatusActive, Provider: ProviderGoogle})
	lc := NewLifecycle(store)

	updated, err := lc.Approve(context.Background(), acct.ID)
	require.NoError(t, err)
	require.Equal(t, StatusActive, updated.Status)
}

func TestApproveBlockedFails(t *testing.T) {
	store := newMemoryStore()
	acct := store.add(Account{Email: "t@school.edu", Role: RoleTeacher, Status: StatusBlocked, Provider: ProviderGoogle})
	lc := NewLifecycle(store)

	_, err := lc.Approve(context.Background(), acct.ID)
	require.ErrorIs(t, err, ErrUnsupportedTransition)
	require.Equal(t, StatusBlocked, store.status(acct.ID))
}

func TestApproveMissingAccount(t *testing.T) {
	lc := NewLifecycle(newMemoryStore())

	_, err := lc.Approve(context.Background(), 42)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestApproveRecoversWhenConcurrentApprovalWins(t *testing.T) {
	store := newMemoryStore()
	acct := store.add(Account{Email: "t@school.edu", Role: RoleTeacher, Status: StatusPending, Provider: ProviderGoogle})
	lc := NewLifecycle(store)

	// Another administrator approves between our read and our CAS.
	raced := false
	store.beforeUpdateStatus = func() {
		if raced {
			return
		}
		raced = true
		store.mu.Lock()
		store.accounts[acct.ID].Status = StatusActive
		store.mu.Unlock()
	}

	updated, err := lc.Approve(context.Background(), acct.ID)
	require.NoError(t, err)
	require.Equal(t, StatusActive, updated.Status)
}

func TestApproveFailsWhenConcurrentBlockWins(t *testing.T) {
	store := newMemoryStore()
	acct := store.add(Account{Email: "t@school.edu", Role: RoleTeacher, Status: StatusPending, Provider: ProviderGoogle})
	lc := NewLifecycle(store)

	raced := false
	store.beforeUpdateStatus = func() {
		if raced {
			return
		}
		raced = true
		store.mu.Lock()
		store.accounts[acct.ID].Status = StatusBlocked
		store.mu.Unlock()
	}

	_, err := lc.Approve(context.Background(), acct.ID)
	require.ErrorIs(t, err, ErrUnsupportedTransition)
	require.Equal(t, StatusBlocked, store.status(acct.ID))
}

func TestBlockFromAnyStatus(t *testing.T) {
	for _, status := range []Status{StatusPending, StatusActive, StatusBlocked} {
		store := newMemoryStore()
		acct := store.add(Account{Email: "t@school.edu", Role: RoleTeacher, Status: status, Provider: ProviderGoogle})
		lc := NewLifecycle(store)

		updated, err := lc.Block(context.Background(), acct.ID)
		require.NoError(t, err, "from %s", status)
		require.Equal(t, StatusBlocked, updated.Status)
	}
}

func TestBlockRetriesAfterLostRace(t *testing.T) {
	store := newMemoryStore()
	acct := store.add(Account{Email: "t@school.edu", Role: RoleTeacher, Status: StatusPending, Provider: ProviderGoogle})
	lc := NewLifecycle(store)

	// An approval lands between our read and our CAS; the block must still
	// win from the freshly observed status.
	raced := false
	store.beforeUpdateStatus = func() {
		if raced {
			return
		}
		raced = true
		store.mu.Lock()
		store.accounts[acct.ID].Status = StatusActive
		store.mu.Unlock()
	}

	updated, err := lc.Block(context.Background(), acct.ID)
	require.NoError(t, err)
	require.Equal(t, StatusBlocked, updated.Status)
	require.Equal(t, StatusBlocked, store.status(acct.ID))
}
