package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces credential keys
const DefaultRedisPrefix = "wavepick:token:"

// RedisTokenStore shares credentials between processes. Writes are
// last-writer-wins. Keys carry a Redis TTL a little past ExpiresAt so
// abandoned credentials disappear on their own.
type RedisTokenStore struct {
	client    *redis.Client
	keyPrefix string
	now       func() time.Time
}

// NewRedisTokenStoreWithClient creates a token store on an existing client
func NewRedisTokenStoreWithClient(client *redis.Client, prefix string, opts ...Option) *RedisTokenStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	o := buildOptions(opts)
	return &RedisTokenStore{
		client:    client,
		keyPrefix: prefix,
		now:       o.now,
	}
}

func (s *RedisTokenStore) key(source string) string {
	return s.keyPrefix + source
}

// Get returns the live credential for source
func (s *RedisTokenStore) Get(ctx context.Context, source string) (*Credential, error) {
	data, err := s.client.Get(ctx, s.key(source)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credential: %w", err)
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("failed to decode credential: %w", err)
	}
	if !cred.Valid(s.now()) {
		return nil, ErrNotFound
	}
	return &cred, nil
}

// Put replaces the credential for source
func (s *RedisTokenStore) Put(ctx context.Context, token, source string, ttl time.Duration, metadata map[string]string) (*Credential, error) {
	cred, err := newCredential(token, source, ttl, metadata, s.now())
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(cred)
	if err != nil {
		return nil, fmt.Errorf("failed to encode credential: %w", err)
	}

	// Keep the record an hour past expiry; Get still hides it once expired
	keyTTL := cred.ExpiresAt.Sub(s.now()) + time.Hour
	if err := s.client.Set(ctx, s.key(source), data, keyTTL).Err(); err != nil {
		return nil, fmt.Errorf("failed to store credential: %w", err)
	}
	return cred, nil
}

// Invalidate deletes the credential for source
func (s *RedisTokenStore) Invalidate(ctx context.Context, source string) error {
	if err := s.client.Del(ctx, s.key(source)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate credential: %w", err)
	}
	return nil
}
