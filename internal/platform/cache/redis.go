package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss indicates the key is absent or expired.
var ErrMiss = errors.New("platform/cache: miss")

// Bytes reads a raw value, mapping redis.Nil to ErrMiss.
func Bytes(ctx context.Context, client *redis.Client, key string) ([]byte, error) {
	data, err := client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return data, err
}

// Put stores a raw value with a TTL.
func Put(ctx context.Context, client *redis.Client, key string, value []byte, ttl time.Duration) error {
	return client.Set(ctx, key, value, ttl).Err()
}
