package account

import (
	"context"
	"errors"
	"fmt"
)

// Lifecycle owns every status transition. Nothing else writes the status
// column.
type Lifecycle struct {
	store Store
}

// NewLifecycle constructs a Lifecycle over the given store.
func NewLifecycle(store Store) *Lifecycle {
	return &Lifecycle{store: store}
}

// Approve moves a pending account to active. Approving an account that is
// already active is a no-op success so the endpoint stays safe to retry.
// Blocked accounts cannot be approved; unblocking requires an out-of-band
// administrative reset.
func (l *Lifecycle) Approve(ctx context.Context, id int64) (*Account, error) {
	acct, err := l.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch acct.Status {
	case StatusActive:
		return acct, nil
	case StatusBlocked:
		return nil, fmt.Errorf("%w: blocked accounts cannot be approved", ErrUnsupportedTransition)
	}

	updated, err := l.store.UpdateStatus(ctx, id, StatusPending, StatusActive)
	if errors.Is(err, ErrConflict) {
		// A concurrent administrator moved the account first. Re-read and
		// accept the result when it reached active; anything else is a
		// genuine transition failure.
		current, ferr := l.store.FindByID(ctx, id)
		if ferr != nil {
			return nil, ferr
		}
		if current.Status == StatusActive {
			return current, nil
		}
		return nil, fmt.Errorf("%w: account is %s", ErrUnsupportedTransition, current.Status)
	}
	return updated, err
}

// Block moves an account of any status to blocked. Blocking an already
// blocked account is a no-op success.
func (l *Lifecycle) Block(ctx context.Context, id int64) (*Account, error) {
	acct, err := l.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if acct.Status == StatusBlocked {
		return acct, nil
	}

	updated, err := l.store.UpdateStatus(ctx, id, acct.Status, StatusBlocked)
	if errors.Is(err, ErrConflict) {
		current, ferr := l.store.FindByID(ctx, id)
		if ferr != nil {
			return nil, ferr
		}
		if current.Status == StatusBlocked {
			return current, nil
		}
		// Lost the CAS to a different transition; retry once from the
		// freshly observed status.
		return l.store.UpdateStatus(ctx, id, current.Status, StatusBlocked)
	}
	return updated, err
}
