package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeClock is a manually advanced time source
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestBoundedCache_TTLExpiry(t *testing.T) {
	clock := newFakeClock()
	c := NewBoundedCache[string, string](10, time.Hour, WithClock(clock.Now))

	c.Set("A", "a")

	clock.Advance(30 * time.Minute)
	if v, ok := c.Get("A"); !ok || v != "a" {
		t.Fatalf("expected hit before expiry, got %q, %v", v, ok)
	}

	// Exactly at the TTL boundary the entry is still valid
	clock.Advance(30 * time.Minute)
	if _, ok := c.Get("A"); !ok {
		t.Fatal("expected hit at ttl boundary")
	}

	clock.Advance(time.Minute)
	stats := c.Stats()
	if stats.ExpiredCount != 1 || stats.Count != 1 {
		t.Errorf("expected one expired entry counted before access, got %+v", stats)
	}

	if _, ok := c.Get("A"); ok {
		t.Fatal("expected miss after expiry")
	}
	if c.Len() != 0 {
		t.Errorf("expected expired entry purged on access, len=%d", c.Len())
	}

	t.Log("✓ entries expire after TTL and are purged lazily")
}

func TestBoundedCache_EvictsOldestInsertion(t *testing.T) {
	clock := newFakeClock()
	c := NewBoundedCache[string, int](2, time.Hour, WithClock(clock.Now))

	c.Set("A", 1)
	clock.Advance(time.Second)
	c.Set("B", 2)
	clock.Advance(time.Second)

	// Reading A does not protect it
	if _, ok := c.Get("A"); !ok {
		t.Fatal("expected A present")
	}

	c.Set("C", 3)

	if _, ok := c.Get("A"); ok {
		t.Error("expected A evicted")
	}
	if _, ok := c.Get("B"); !ok {
		t.Error("expected B kept")
	}
	if _, ok := c.Get("C"); !ok {
		t.Error("expected C kept")
	}
	if c.Len() != 2 {
		t.Errorf("expected len 2, got %d", c.Len())
	}

	t.Log("✓ insertion-order eviction ignores reads")
}

func TestBoundedCache_OverwriteResetsAgeWithoutEviction(t *testing.T) {
	clock := newFakeClock()
	c := NewBoundedCache[string, int](2, time.Hour, WithClock(clock.Now))

	c.Set("A", 1)
	clock.Advance(time.Second)
	c.Set("B", 2)
	clock.Advance(time.Second)

	// Overwrite at capacity must not evict
	c.Set("A", 10)
	if c.Len() != 2 {
		t.Fatalf("expected len 2 after overwrite, got %d", c.Len())
	}
	if v, _ := c.Get("A"); v != 10 {
		t.Errorf("expected overwritten value 10, got %d", v)
	}

	// A is now younger than B, so B goes first
	c.Set("C", 3)
	if _, ok := c.Get("B"); ok {
		t.Error("expected B evicted as oldest")
	}
	if _, ok := c.Get("A"); !ok {
		t.Error("expected A kept after overwrite refreshed it")
	}
}

func TestBoundedCache_CapacityNeverExceeded(t *testing.T) {
	c := NewBoundedCache[int, int](5, time.Hour)
	for i := 0; i < 50; i++ {
		c.Set(i, i)
		if c.Len() > 5 {
			t.Fatalf("len %d exceeds capacity", c.Len())
		}
	}
	stats := c.Stats()
	if stats.Count != 5 || stats.UtilizationPercent != 100 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestBoundedCache_InvalidateClearPurge(t *testing.T) {
	clock := newFakeClock()
	c := NewBoundedCache[string, int](10, time.Minute, WithClock(clock.Now))

	c.Set("A", 1)
	c.Set("B", 2)
	c.Invalidate("A")
	if _, ok := c.Get("A"); ok {
		t.Error("expected A invalidated")
	}

	clock.Advance(2 * time.Minute)
	c.Set("C", 3)
	if removed := c.Purge(); removed != 1 {
		t.Errorf("expected 1 purged, got %d", removed)
	}
	if c.Len() != 1 {
		t.Errorf("expected only C left, len=%d", c.Len())
	}

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("expected empty after Clear, len=%d", c.Len())
	}
}

func TestBoundedCache_Defaults(t *testing.T) {
	clock := newFakeClock()
	c := NewBoundedCache[string, int](0, 0, WithClock(clock.Now))
	if got := c.Stats().Capacity; got != DefaultCapacity {
		t.Errorf("expected default capacity %d, got %d", DefaultCapacity, got)
	}

	c.Set("k", 1)
	clock.Advance(DefaultTTL - time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Error("expected entry alive just before the default ttl")
	}
	clock.Advance(2 * time.Second)
	if _, ok := c.Get("k"); ok {
		t.Error("expected entry expired after the default ttl")
	}
}

func TestMemoryCache_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(2, time.Minute)
	if err := mc.Set(ctx, "k", []byte(`{"orders":[]}`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	first, err := mc.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	first[0] = 'X'

	second, err := mc.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(second) != `{"orders":[]}` {
		t.Errorf("expected cached payload unaffected by caller mutation, got %q", second)
	}
}

func TestBoundedCache_ConcurrentAccess(t *testing.T) {
	c := NewBoundedCache[string, int](20, time.Hour)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k-%d", (g*200+i)%40)
				c.Set(key, i)
				c.Get(key)
				_ = c.Stats()
			}
		}(g)
	}
	wg.Wait()

	if c.Len() > 20 {
		t.Errorf("capacity exceeded under concurrency: %d", c.Len())
	}
}

func TestMemoryCache_CopiesAndExpires(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	mc := NewMemoryCache(2, time.Minute, WithClock(clock.Now))

	payload := []byte("abc")
	if err := mc.Set(ctx, "k", payload); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	payload[0] = 'z'

	got, err := mc.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "abc" {
		t.Errorf("expected stored copy to be unaffected, got %q", got)
	}

	clock.Advance(2 * time.Minute)
	if _, err := mc.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after expiry, got %v", err)
	}
}
