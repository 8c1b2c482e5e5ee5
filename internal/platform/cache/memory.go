package cache

import (
	"bytes"
	"context"
	"time"
)

// MemoryCache is an in-process Cache backed by a BoundedCache.
type MemoryCache struct {
	entries *BoundedCache[string, []byte]
}

// NewMemoryCache creates an in-memory cache holding at most maxSize payloads
// for ttl each.
func NewMemoryCache(maxSize int, ttl time.Duration, opts ...Option) *MemoryCache {
	return &MemoryCache{
		entries: NewBoundedCache[string, []byte](maxSize, ttl, opts...),
	}
}

// Get returns a copy of the cached payload, or ErrNotFound
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	value, ok := c.entries.Get(key)
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(value), nil
}

// Set stores a copy of value
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte) error {
	c.entries.Set(key, bytes.Clone(value))
	return nil
}

// Delete removes a key from cache
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.entries.Invalidate(key)
	return nil
}

// Clear drops all payloads
func (c *MemoryCache) Clear(ctx context.Context) error {
	c.entries.Clear()
	return nil
}

// Close is a no-op; there is no background goroutine to stop
func (c *MemoryCache) Close() error {
	return nil
}

// Stats reports occupancy of the underlying bounded cache
func (c *MemoryCache) Stats() Stats {
	return c.entries.Stats()
}
