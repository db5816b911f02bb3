package account

import (
	"fmt"
	"time"
)

// Role is the permission tier of an account, independent of its status.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// ParseRole validates a stored role value. Unknown values are treated as
// storage corruption rather than silently accepted.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleTeacher, RoleStudent:
		return Role(s), nil
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrStoreCorrupt, s)
}

// Status is the approval state of an account.
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusBlocked Status = "blocked"
)

// ParseStatus validates a stored status value.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusActive, StatusBlocked:
		return Status(s), nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrStoreCorrupt, s)
}

// Provider identifies the identity channel an account was created through.
type Provider string

const (
	ProviderGoogle      Provider = "google"
	ProviderCredentials Provider = "credentials"
)

// Account is the identity and authorization record for one person.
type Account struct {
	ID           int64
	Email        string
	Name         string
	Role         Role
	Status       Status
	Provider     Provider
	LastLogin    time.Time
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Draft describes an account to be created. The store assigns the ID.
type Draft struct {
	Email        string
	Name         string
	Role         Role
	Status       Status
	Provider     Provider
	PasswordHash string
	LastLogin    time.Time
}

// ExternalIdentity is the claim presented at sign-in time, either an OAuth
// profile or an email/password pair.
type ExternalIdentity struct {
	Email    string
	Name     string
	Provider Provider
	// Password carries the plaintext credential for the credentials
	// provider. It is compared against the stored bcrypt hash and never
	// persisted.
	Password string
	// RawProfile keeps the provider payload for auditing.
	RawProfile map[string]any
}

// Resolution is the outcome of resolving an external identity against the
// account store.
type Resolution struct {
	Found    bool
	Account  *Account
	Proposed *Draft
}

// Outcome enumerates sign-in decisions.
type Outcome string

const (
	// OutcomeAccepted means the account is active and a session may start.
	OutcomeAccepted Outcome = "accepted"
	// OutcomeCreated means a new pending account was materialized. The
	// caller must surface this as a rejection: new accounts are never
	// immediately usable.
	OutcomeCreated Outcome = "created"
	// OutcomeRejectedPending means the account awaits approval.
	OutcomeRejectedPending Outcome = "rejected_pending"
	// OutcomeRejectedBlocked means the account is blocked.
	OutcomeRejectedBlocked Outcome = "rejected_blocked"
)

// Decision is the result of a sign-in attempt. Account is set for every
// outcome so the caller can report who was affected; only OutcomeAccepted
// may establish a session.
type Decision struct {
	Outcome Outcome
	Account *Account
}
