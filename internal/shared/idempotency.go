package shared

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// IdempotencyStore persists processed request keys so clients can safely
// retry account mutations.
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

// ErrIdempotencyConflict indicates the key was already consumed by the same
// operation on the same target.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")

// ErrIdempotencyMismatch indicates the key was already consumed by a
// different operation or target.
var ErrIdempotencyMismatch = errors.New("idempotency key used for a different request")

// CheckAndInsert claims the key for (module, ref). A key already claimed by
// the same pair reports ErrIdempotencyConflict; a key claimed by any other
// pair reports ErrIdempotencyMismatch.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, key, module, ref string) error {
	if s == nil {
		return errors.New("idempotency store not initialised")
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	if module == "" {
		return errors.New("idempotency module required")
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO idempotency_keys (key, module, ref_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO NOTHING`,
		key, module, ref, time.Now())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var claimedModule, claimedRef string
	if err := s.pool.QueryRow(ctx, `SELECT module, ref_id FROM idempotency_keys WHERE key=$1`, key).Scan(&claimedModule, &claimedRef); err != nil {
		return err
	}
	if claimedModule == module && claimedRef == ref {
		return ErrIdempotencyConflict
	}
	return ErrIdempotencyMismatch
}

// Delete removes a key, typically used to roll back failed processing.
func (s *IdempotencyStore) Delete(ctx context.Context, key string) error {
	if s == nil {
		return nil
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE key=$1`, key)
	return err
}

// Cleanup removes entries older than retention.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if s == nil {
		return nil
	}
	cutoff := time.Now().Add(-olderThan)
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	return err
}
