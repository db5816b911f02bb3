package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Resolver maps an external identity assertion onto the account store. It
// makes no writes; materializing a proposed account belongs to the Service.
type Resolver struct {
	store    Store
	validate *validator.Validate
}

// NewResolver constructs a Resolver.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store, validate: validator.New()}
}

// NormalizeEmail lowercases and trims an email for use as the correlation key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var nameCaser = cases.Title(language.Und, cases.NoLower)

// tidyName trims provider-supplied display names and falls back to the
// email local part when the provider sent none.
func tidyName(name, email string) string {
	name = strings.TrimSpace(name)
	if name != "" {
		return name
	}
	local, _, _ := strings.Cut(email, "@")
	return nameCaser.String(local)
}

// Resolve looks up the account matching the identity's email.
//
// Unknown google identities produce a proposed pending teacher account;
// self-service sign-up is how teachers enter the system. Unknown credential
// identities fail with ErrUnknownAccount: passwords never create accounts.
func (r *Resolver) Resolve(ctx context.Context, identity ExternalIdentity) (Resolution, error) {
	email := NormalizeEmail(identity.Email)
	if err := r.validate.Var(email, "required,email"); err != nil {
		return Resolution{}, fmt.Errorf("%w: %q", ErrInvalidIdentity, identity.Email)
	}

	acct, err := r.store.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return Resolution{Found: true, Account: acct}, nil
	case errors.Is(err, ErrNotFound):
		// fall through to the creation decision below
	default:
		return Resolution{}, err
	}

	if identity.Provider != ProviderGoogle {
		return Resolution{}, ErrUnknownAccount
	}
	return Resolution{
		Proposed: &Draft{
			Email:    email,
			Name:     tidyName(identity.Name, email),
			Role:     RoleTeacher,
			Status:   StatusPending,
			Provider: ProviderGoogle,
		},
	}, nil
}
