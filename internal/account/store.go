package account

import (
	"context"
	"time"
)

// Store is the persistence port for accounts. Implementations must enforce
// a uniqueness constraint on email so that InsertIfAbsent loses cleanly
// when two first-time sign-ins race.
type Store interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id int64) (*Account, error)
	// InsertIfAbsent creates the account or returns ErrConflict when an
	// account with the same email already exists.
	InsertIfAbsent(ctx context.Context, draft Draft) (*Account, error)
	// UpdateStatus applies a compare-and-set on the status column. It
	// returns ErrConflict when the current status differs from expected
	// and ErrNotFound when the id does not resolve.
	UpdateStatus(ctx context.Context, id int64, expected, next Status) (*Account, error)
	// RecordLogin advances last_login. The timestamp never moves backwards.
	RecordLogin(ctx context.Context, id int64, at time.Time) error
	UpdateRole(ctx context.Context, id int64, role Role) (*Account, error)
	List(ctx context.Context) ([]Account, error)
	CountByStatus(ctx context.Context) (map[Status]int64, error)
}
