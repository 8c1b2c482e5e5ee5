package cache

import (
	"container/list"
	"sync"
	"time"
)

const (
	DefaultCapacity = 100
	DefaultTTL      = time.Hour
)

// entry is a stored value together with the time it was written.
type entry[K comparable, V any] struct {
	key      K
	value    V
	storedAt time.Time
}

type options struct {
	now func() time.Time
}

// Option configures a BoundedCache.
type Option func(*options)

// WithClock overrides the time source. Tests use it to step past the TTL.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// BoundedCache is a fixed-capacity map whose entries expire after a fixed TTL.
//
// Eviction is by insertion order: when a new key arrives at capacity the entry
// with the oldest StoredAt is dropped, even if it was read recently. Reads do
// not refresh an entry. Overwriting a key resets its StoredAt.
type BoundedCache[K comparable, V any] struct {
	capacity int
	ttl      time.Duration
	now      func() time.Time

	mu    sync.Mutex
	items map[K]*list.Element
	order *list.List // front = oldest StoredAt
}

// NewBoundedCache creates a cache. Non-positive capacity or ttl fall back to
// DefaultCapacity and DefaultTTL.
func NewBoundedCache[K comparable, V any](capacity int, ttl time.Duration, opts ...Option) *BoundedCache[K, V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	return &BoundedCache[K, V]{
		capacity: capacity,
		ttl:      ttl,
		now:      o.now,
		items:    make(map[K]*list.Element),
		order:    list.New(),
	}
}

// Get returns the value for key if present and unexpired. An expired entry is
// removed as a side effect.
func (c *BoundedCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	element, ok := c.items[key]
	if !ok {
		return zero, false
	}

	e := element.Value.(*entry[K, V])
	if c.expired(e, c.now()) {
		c.removeElement(element)
		return zero, false
	}

	return e.value, true
}

// Set stores value under key with StoredAt = now.
func (c *BoundedCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	if element, ok := c.items[key]; ok {
		e := element.Value.(*entry[K, V])
		e.value = value
		e.storedAt = now
		c.order.MoveToBack(element)
		return
	}

	if c.order.Len() >= c.capacity {
		if oldest := c.order.Front(); oldest != nil {
			c.removeElement(oldest)
		}
	}

	c.items[key] = c.order.PushBack(&entry[K, V]{key: key, value: value, storedAt: now})
}

// Invalidate removes key if present.
func (c *BoundedCache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if element, ok := c.items[key]; ok {
		c.removeElement(element)
	}
}

// Clear removes every entry.
func (c *BoundedCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[K]*list.Element)
	c.order.Init()
}

// Purge drops every expired entry and returns how many were removed.
func (c *BoundedCache[K, V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for element := c.order.Front(); element != nil; {
		next := element.Next()
		if c.expired(element.Value.(*entry[K, V]), now) {
			c.removeElement(element)
			removed++
		}
		element = next
	}
	return removed
}

// Len returns the number of stored entries, expired ones included.
func (c *BoundedCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats scans the cache without modifying it.
func (c *BoundedCache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	expired := 0
	for element := c.order.Front(); element != nil; element = element.Next() {
		if c.expired(element.Value.(*entry[K, V]), now) {
			expired++
		}
	}

	count := c.order.Len()
	return Stats{
		Count:              count,
		Capacity:           c.capacity,
		ExpiredCount:       expired,
		UtilizationPercent: float64(count) / float64(c.capacity) * 100,
	}
}

func (c *BoundedCache[K, V]) expired(e *entry[K, V], now time.Time) bool {
	return now.Sub(e.storedAt) > c.ttl
}

// removeElement unlinks an entry (caller must hold lock)
func (c *BoundedCache[K, V]) removeElement(element *list.Element) {
	e := element.Value.(*entry[K, V])
	delete(c.items, e.key)
	c.order.Remove(element)
}
