package account

import "errors"

var (
	// ErrInvalidIdentity indicates a sign-in assertion without a usable email.
	ErrInvalidIdentity = errors.New("account: invalid identity")
	// ErrUnknownAccount indicates credential sign-in for an email with no account.
	ErrUnknownAccount = errors.New("account: unknown account")
	// ErrNotFound indicates the referenced account does not exist.
	ErrNotFound = errors.New("account: not found")
	// ErrConflict indicates a concurrent write lost the race.
	ErrConflict = errors.New("account: conflict")
	// ErrForbidden indicates the caller's role does not permit the action.
	ErrForbidden = errors.New("account: forbidden")
	// ErrUnsupportedTransition indicates a status change outside the lifecycle rules.
	ErrUnsupportedTransition = errors.New("account: unsupported status transition")
	// ErrInvalidCredentials indicates a password mismatch on credential sign-in.
	ErrInvalidCredentials = errors.New("account: invalid credentials")
	// ErrStoreUnavailable indicates a persistence or transport failure.
	ErrStoreUnavailable = errors.New("account: store unavailable")
	// ErrStoreCorrupt indicates the store returned a value outside the
	// closed role/status sets. Treated as a store failure, never accepted.
	ErrStoreCorrupt = errors.New("account: store returned invalid data")
)
