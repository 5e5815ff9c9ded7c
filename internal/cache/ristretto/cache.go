// Package ristretto implements the cache port in process with
// dgraph-io/ristretto.
package ristretto

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/bountyboard/backend/internal/cache"
	"github.com/bountyboard/backend/internal/telemetry"
)

// ErrRejected is returned by Set when ristretto drops the write, either
// because its buffers are contended or the admission policy refused it.
var ErrRejected = errors.New("ristretto: write rejected")

// Cache is an in-process, size-bounded cache. Keys are stored under the
// configured namespace so several callers can share one instance.
type Cache struct {
	c         *ristretto.Cache[string, []byte]
	namespace string
	maxCost   int64
	metrics   *telemetry.Metrics
}

var _ cache.Cache = (*Cache)(nil)

type Option func(*Cache)

// WithNamespace prefixes every key with ns and a colon.
func WithNamespace(ns string) Option {
	return func(c *Cache) { c.namespace = ns }
}

// WithMetrics records hit and miss counts on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// New creates a cache holding at most maxCostBytes of values.
func New(maxCostBytes int64, opts ...Option) (*Cache, error) {
	if maxCostBytes <= 0 {
		return nil, fmt.Errorf("ristretto: max cost must be positive, got %d", maxCostBytes)
	}
	out := &Cache{maxCost: maxCostBytes}
	for _, o := range opts {
		o(out)
	}
	// Ten counters per expected entry, assuming entries of roughly 100 bytes.
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: max(maxCostBytes/100*10, 1000),
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	out.c = c
	return out, nil
}

func (c *Cache) key(k string) string {
	if c.namespace == "" {
		return k
	}
	return c.namespace + ":" + k
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, found := c.c.Get(c.key(key))
	c.metrics.CacheLookup(ctx, c.namespace, found)
	if !found {
		return nil, false, nil
	}
	return val, true, nil
}

// Set stores value; ristretto admits writes asynchronously, so Set waits
// for the write buffer to drain before returning. Values larger than the
// whole cache are refused up front.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	cost := int64(len(value))
	if cost > c.maxCost {
		return fmt.Errorf("ristretto: value of %d bytes exceeds capacity %d", cost, c.maxCost)
	}
	if !c.c.SetWithTTL(c.key(key), value, cost, ttl) {
		return ErrRejected
	}
	c.c.Wait()
	return nil
}

func (c *Cache) Delete(_ context.Context, key string) error {
	c.c.Del(c.key(key))
	return nil
}

func (c *Cache) Close() {
	c.c.Close()
}
