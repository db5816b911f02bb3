package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const accountColumns = `id, email, name, role, status, provider, last_login, password_hash, created_at, updated_at`

// PGStore implements Store using PostgreSQL. The accounts table carries a
// unique index on email; the insert relies on it for race-free creation.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs a PostgreSQL backed store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

var _ Store = (*PGStore)(nil)

// FindByEmail fetches an account by normalized email.
func (s *PGStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, NormalizeEmail(email))
	return scanAccount(row)
}

// FindByID fetches an account by id.
func (s *PGStore) FindByID(ctx context.Context, id int64) (*Account, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

// InsertIfAbsent creates the account unless the email is already taken.
func (s *PGStore) InsertIfAbsent(ctx context.Context, draft Draft) (*Account, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO accounts (email, name, role, status, provider, last_login, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING `+accountColumns,
		NormalizeEmail(draft.Email), draft.Name, string(draft.Role), string(draft.Status),
		string(draft.Provider), timestamptz(draft.LastLogin), draft.PasswordHash,
	)
	acct, err := scanAccount(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrConflict
		}
		return nil, err
	}
	return acct, nil
}

// UpdateStatus applies a compare-and-set on status. Concurrent transitions
// on the same account resolve to exactly one winner.
func (s *PGStore) UpdateStatus(ctx context.Context, id int64, expected, next Status) (*Account, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE accounts SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING `+accountColumns,
		id, string(expected), string(next),
	)
	acct, err := scanAccount(row)
	if errors.Is(err, ErrNotFound) {
		// Distinguish a missing row from a lost CAS.
		if _, ferr := s.FindByID(ctx, id); ferr != nil {
			return nil, ferr
		}
		return nil, ErrConflict
	}
	return acct, err
}

// RecordLogin advances last_login, never moving it backwards.
func (s *PGStore) RecordLogin(ctx context.Context, id int64, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE accounts SET last_login = GREATEST(last_login, $2), updated_at = NOW()
		WHERE id = $1`,
		id, at.UTC(),
	)
	if err != nil {
		return storeErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateRole sets the role column.
func (s *PGStore) UpdateRole(ctx context.Context, id int64, role Role) (*Account, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE accounts SET role = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+accountColumns,
		id, string(role),
	)
	return scanAccount(row)
}

// List returns all accounts ordered by creation, pending first.
func (s *PGStore) List(ctx context.Context) ([]Account, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+accountColumns+` FROM accounts
		ORDER BY status = 'pending' DESC, created_at DESC`)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *acct)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return accounts, nil
}

// CountByStatus groups accounts by status.
func (s *PGStore) CountByStatus(ctx context.Context) (map[Status]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM accounts GROUP BY status`)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	counts := make(map[Status]int64)
	for rows.Next() {
		var raw string
		var n int64
		if err := rows.Scan(&raw, &n); err != nil {
			return nil, storeErr(err)
		}
		status, err := ParseStatus(raw)
		if err != nil {
			return nil, err
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return counts, nil
}

func scanAccount(row pgx.Row) (*Account, error) {
	var (
		acct                 Account
		role, status, prov   string
		lastLogin            pgtype.Timestamptz
		passwordHash         pgtype.Text
		createdAt, updatedAt pgtype.Timestamptz
	)
	err := row.Scan(&acct.ID, &acct.Email, &acct.Name, &role, &status, &prov,
		&lastLogin, &passwordHash, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storeErr(err)
	}

	if acct.Role, err = ParseRole(role); err != nil {
		return nil, err
	}
	if acct.Status, err = ParseStatus(status); err != nil {
		return nil, err
	}
	acct.Provider = Provider(prov)
	acct.LastLogin = lastLogin.Time
	acct.PasswordHash = passwordHash.String
	acct.CreatedAt = createdAt.Time
	acct.UpdatedAt = updatedAt.Time
	return &acct, nil
}

func timestamptz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t.UTC(), Valid: !t.IsZero()}
}

// storeErr wraps driver failures as ErrStoreUnavailable while keeping the
// original error in the chain for errors.As inspection.
func storeErr(err error) error {
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
