package auth

import (
	"context"
	"sync"
	"time"
)

// MemoryTokenStore keeps credentials in process memory
type MemoryTokenStore struct {
	mu    sync.RWMutex
	creds map[string]Credential
	now   func() time.Time
}

// NewMemoryTokenStore creates an empty in-memory store
func NewMemoryTokenStore(opts ...Option) *MemoryTokenStore {
	o := buildOptions(opts)
	return &MemoryTokenStore{
		creds: make(map[string]Credential),
		now:   o.now,
	}
}

// Get returns the live credential for source
func (s *MemoryTokenStore) Get(_ context.Context, source string) (*Credential, error) {
	s.mu.RLock()
	cred, ok := s.creds[source]
	s.mu.RUnlock()

	if !ok || !cred.Valid(s.now()) {
		return nil, ErrNotFound
	}
	return &cred, nil
}

// Put replaces the credential for source
func (s *MemoryTokenStore) Put(_ context.Context, token, source string, ttl time.Duration, metadata map[string]string) (*Credential, error) {
	cred, err := newCredential(token, source, ttl, metadata, s.now())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.creds[source] = *cred
	s.mu.Unlock()

	return cred, nil
}

// Invalidate deletes the credential for source
func (s *MemoryTokenStore) Invalidate(_ context.Context, source string) error {
	s.mu.Lock()
	delete(s.creds, source)
	s.mu.Unlock()
	return nil
}
