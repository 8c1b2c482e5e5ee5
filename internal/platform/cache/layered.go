package cache

import (
	"context"
)

// LayeredCache implements a two-tier cache (L1: memory, L2: Redis).
// Each tier keeps its own TTL; L2 hits are copied back into L1.
type LayeredCache struct {
	l1 Cache // Fast in-memory cache
	l2 Cache // Shared cache, may be nil
}

// NewLayeredCache creates a new layered cache
func NewLayeredCache(l1, l2 Cache) *LayeredCache {
	return &LayeredCache{
		l1: l1,
		l2: l2,
	}
}

// Get retrieves a value from cache (L1 → L2 → miss)
func (lc *LayeredCache) Get(ctx context.Context, key string) ([]byte, error) {
	if lc.l1 != nil {
		if val, err := lc.l1.Get(ctx, key); err == nil {
			return val, nil
		}
	}

	if lc.l2 != nil {
		val, err := lc.l2.Get(ctx, key)
		if err == nil {
			if lc.l1 != nil {
				_ = lc.l1.Set(ctx, key, val)
			}
			return val, nil
		}
	}

	return nil, ErrNotFound
}

// Set stores a value in both cache layers
func (lc *LayeredCache) Set(ctx context.Context, key string, value []byte) error {
	var l1Err, l2Err error

	if lc.l1 != nil {
		l1Err = lc.l1.Set(ctx, key, value)
	}

	if lc.l2 != nil {
		l2Err = lc.l2.Set(ctx, key, value)
	}

	// Return error only if every configured layer failed
	if lc.l1 != nil && l1Err == nil {
		return nil
	}
	if lc.l2 != nil && l2Err == nil {
		return nil
	}
	if l2Err != nil {
		return l2Err
	}
	return l1Err
}

// Delete removes a key from both cache layers
func (lc *LayeredCache) Delete(ctx context.Context, key string) error {
	return lc.each(func(c Cache) error { return c.Delete(ctx, key) })
}

// Clear empties both cache layers
func (lc *LayeredCache) Clear(ctx context.Context) error {
	return lc.each(func(c Cache) error { return c.Clear(ctx) })
}

// Close closes both cache layers
func (lc *LayeredCache) Close() error {
	return lc.each(func(c Cache) error { return c.Close() })
}

// Stats reports the L1 tier, which is the bounded one
func (lc *LayeredCache) Stats() Stats {
	if reporter, ok := lc.l1.(StatsReporter); ok {
		return reporter.Stats()
	}
	return Stats{}
}

// each applies fn to both layers and returns the first error
func (lc *LayeredCache) each(fn func(Cache) error) error {
	var firstErr error
	for _, c := range []Cache{lc.l1, lc.l2} {
		if c == nil {
			continue
		}
		if err := fn(c); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
