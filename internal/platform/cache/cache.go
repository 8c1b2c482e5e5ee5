// Package cache provides the bounded TTL caches used in front of the vendor API.
package cache

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key is absent or expired
var ErrNotFound = errors.New("cache: key not found")

// Cache stores raw response payloads. Capacity and TTL are fixed when the
// cache is constructed.
type Cache interface {
	// Get retrieves a payload, or ErrNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a payload, replacing any previous value for key
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes a key
	Delete(ctx context.Context, key string) error

	// Clear drops every entry
	Clear(ctx context.Context) error

	// Close releases the backing resources
	Close() error
}

// StatsReporter is implemented by caches that can describe their occupancy.
type StatsReporter interface {
	Stats() Stats
}

// Stats is a read-only snapshot of a bounded cache.
type Stats struct {
	Count              int     `json:"total_items"`
	Capacity           int     `json:"max_size"`
	ExpiredCount       int     `json:"expired_items"`
	UtilizationPercent float64 `json:"utilization_percent"`
}
