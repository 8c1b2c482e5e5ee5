// Package auth persists the vendor session credential so a restart, or
// another process, can reuse it instead of logging in again.
package auth

import (
	"context"
	"errors"
	"time"
)

// DefaultTokenTTL is how long a stored credential stays valid
const DefaultTokenTTL = 24 * time.Hour

// DefaultSource is the source key used for the web session token
const DefaultSource = "skuvault_web"

var (
	// ErrNotFound is returned when no live credential exists for a source
	ErrNotFound = errors.New("credential not found")

	// ErrEmptyToken is returned by Put for an empty token
	ErrEmptyToken = errors.New("empty token")
)

// Credential is an opaque bearer token with an absolute expiry
type Credential struct {
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expiresAt"`
	Source    string            `json:"source"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Valid reports whether the credential is usable at now
func (c *Credential) Valid(now time.Time) bool {
	return c != nil && c.Token != "" && now.Before(c.ExpiresAt)
}

// TokenStore holds at most one credential per source. Get only returns a
// credential that has not expired; expired records are left in place.
type TokenStore interface {
	Get(ctx context.Context, source string) (*Credential, error)
	Put(ctx context.Context, token, source string, ttl time.Duration, metadata map[string]string) (*Credential, error)
	Invalidate(ctx context.Context, source string) error
}

// Option configures a store
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the clock used for expiry
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// newCredential builds the record written by Put
func newCredential(token, source string, ttl time.Duration, metadata map[string]string, now time.Time) (*Credential, error) {
	if token == "" {
		return nil, ErrEmptyToken
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	var md map[string]string
	if len(metadata) > 0 {
		md = make(map[string]string, len(metadata))
		for k, v := range metadata {
			md[k] = v
		}
	}

	return &Credential{
		Token:     token,
		ExpiresAt: now.Add(ttl),
		Source:    source,
		Metadata:  md,
	}, nil
}
