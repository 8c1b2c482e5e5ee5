package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	ldb_opt "github.com/syndtr/goleveldb/leveldb/opt"
)

var credentialPrefix = []byte("credential:")

// LevelDBTokenStore persists credentials as JSON in a local LevelDB so they
// survive restarts
type LevelDBTokenStore struct {
	db  *leveldb.DB
	now func() time.Time

	// serialises read-modify-write on the same source
	mu sync.Mutex
}

// OpenLevelDBTokenStore opens (or creates) the database at path
func OpenLevelDBTokenStore(path string, opts ...Option) (*LevelDBTokenStore, error) {
	opt := &ldb_opt.Options{
		ErrorIfExist:   false,
		ErrorIfMissing: false,
	}

	db, err := leveldb.OpenFile(path, opt)
	if err != nil {
		return nil, fmt.Errorf("open token store %s: %w", path, err)
	}

	o := buildOptions(opts)
	return &LevelDBTokenStore{db: db, now: o.now}, nil
}

func credentialKey(source string) []byte {
	return append(append([]byte{}, credentialPrefix...), source...)
}

// Get returns the live credential for source
func (s *LevelDBTokenStore) Get(ctx context.Context, source string) (*Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := s.db.Get(credentialKey(source), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read credential: %w", err)
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("decode credential: %w", err)
	}
	if !cred.Valid(s.now()) {
		return nil, ErrNotFound
	}
	return &cred, nil
}

// Put replaces the credential for source
func (s *LevelDBTokenStore) Put(ctx context.Context, token, source string, ttl time.Duration, metadata map[string]string) (*Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cred, err := newCredential(token, source, ttl, metadata, s.now())
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(cred)
	if err != nil {
		return nil, fmt.Errorf("encode credential: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Put(credentialKey(source), data, &ldb_opt.WriteOptions{Sync: true}); err != nil {
		return nil, fmt.Errorf("write credential: %w", err)
	}
	return cred, nil
}

// Invalidate deletes the credential for source
func (s *LevelDBTokenStore) Invalidate(ctx context.Context, source string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Delete(credentialKey(source), &ldb_opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

// Close releases the database
func (s *LevelDBTokenStore) Close() error {
	return s.db.Close()
}
