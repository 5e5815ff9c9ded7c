// Package cache defines the key-value cache port used for request
// idempotency.
package cache

import (
	"context"
	"time"
)

// Cache stores opaque values under string keys.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
