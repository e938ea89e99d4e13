// Package cache defines the key-value caching port. councild uses it to
// keep hot team profiles out of Postgres during evaluation fan-out.
package cache

import (
	"context"
	"time"
)

// Cache is a byte-oriented cache with per-entry TTLs. Get reports a miss
// via the bool, reserving the error for backend failures.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
