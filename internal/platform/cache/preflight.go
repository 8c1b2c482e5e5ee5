package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"sort"
	"strings"
	"time"
)

const (
	DefaultPreflightTTL      = 5 * time.Minute
	DefaultPreflightCapacity = 256
)

// volatileHeaders change on every request and never affect CORS approval.
var volatileHeaders = map[string]bool{
	"Tid":             true,
	"Idempotency-Key": true,
}

// PreflightCache remembers the outcome of CORS OPTIONS negotiation per
// (url, header fingerprint). Only completed negotiations are stored; a
// transport failure is not cached.
type PreflightCache struct {
	entries *BoundedCache[string, bool]
}

// NewPreflightCache creates a preflight cache
func NewPreflightCache(capacity int, ttl time.Duration, opts ...Option) *PreflightCache {
	if capacity <= 0 {
		capacity = DefaultPreflightCapacity
	}
	if ttl <= 0 {
		ttl = DefaultPreflightTTL
	}
	return &PreflightCache{
		entries: NewBoundedCache[string, bool](capacity, ttl, opts...),
	}
}

// PreflightKey fingerprints url and the stable request headers.
func PreflightKey(url string, headers http.Header) string {
	names := make([]string, 0, len(headers))
	for name := range headers {
		canonical := http.CanonicalHeaderKey(name)
		if volatileHeaders[canonical] {
			continue
		}
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return http.CanonicalHeaderKey(names[i]) < http.CanonicalHeaderKey(names[j])
	})

	h := sha256.New()
	h.Write([]byte(url))
	for _, name := range names {
		h.Write([]byte{'\n'})
		h.Write([]byte(strings.ToLower(name)))
		h.Write([]byte{':'})
		h.Write([]byte(strings.Join(headers[name], ",")))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Lookup returns the cached outcome for url+headers. found is false on a miss
// or after the entry expired.
func (p *PreflightCache) Lookup(url string, headers http.Header) (succeeded bool, found bool) {
	return p.entries.Get(PreflightKey(url, headers))
}

// Store records a negotiation outcome and drops any expired entries.
func (p *PreflightCache) Store(url string, headers http.Header, succeeded bool) {
	p.entries.Set(PreflightKey(url, headers), succeeded)
	p.entries.Purge()
}

// InvalidateAll forgets every outcome. It must run whenever the credential
// used to build request headers changes.
func (p *PreflightCache) InvalidateAll() {
	p.entries.Clear()
}

// Stats reports occupancy
func (p *PreflightCache) Stats() Stats {
	return p.entries.Stats()
}
