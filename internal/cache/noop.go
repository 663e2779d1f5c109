package cache

import (
	"context"
	"time"
)

// Noop is the cache used when caching is disabled or the backend failed to
// open: every Get misses, every Set is dropped.
type Noop struct{}

// NewNoop returns a cache that never hits.
func NewNoop() Noop { return Noop{} }

// Get always reports absent.
func (Noop) Get(ctx context.Context, key string) ([]byte, bool) { return nil, false }

// Set drops the value.
func (Noop) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {}

// Close is a no-op.
func (Noop) Close() error { return nil }
