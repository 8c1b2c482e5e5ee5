package auth

import (
	"context"
	"errors"
	"time"

	"github.com/agatticelli/wavepick-sync/internal/platform/observability"
)

// InstrumentedStore records metrics and logs for every operation on the
// wrapped store
type InstrumentedStore struct {
	next    TokenStore
	backend string
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewInstrumentedStore wraps next. backend labels the metrics.
func NewInstrumentedStore(next TokenStore, backend string, logger *observability.Logger, metrics *observability.Metrics) *InstrumentedStore {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &InstrumentedStore{
		next:    next,
		backend: backend,
		logger:  logger.Component("token_store"),
		metrics: metrics,
	}
}

func (s *InstrumentedStore) Get(ctx context.Context, source string) (*Credential, error) {
	cred, err := s.next.Get(ctx, source)
	// a miss is not a failure
	var opErr error
	if err != nil && !errors.Is(err, ErrNotFound) {
		opErr = err
		s.logger.LogError(ctx, "token lookup failed", err, "source", source, "backend", s.backend)
	}
	s.metrics.RecordTokenOp(ctx, s.backend, "get", opErr)
	return cred, err
}

func (s *InstrumentedStore) Put(ctx context.Context, token, source string, ttl time.Duration, metadata map[string]string) (*Credential, error) {
	cred, err := s.next.Put(ctx, token, source, ttl, metadata)
	s.metrics.RecordTokenOp(ctx, s.backend, "put", err)
	if err != nil {
		s.logger.LogError(ctx, "token store failed", err, "source", source, "backend", s.backend)
		return nil, err
	}
	s.logger.LogInfo(ctx, "token stored",
		"source", source,
		"backend", s.backend,
		"expires_at", cred.ExpiresAt,
	)
	return cred, nil
}

func (s *InstrumentedStore) Invalidate(ctx context.Context, source string) error {
	err := s.next.Invalidate(ctx, source)
	s.metrics.RecordTokenOp(ctx, s.backend, "invalidate", err)
	if err != nil {
		s.logger.LogError(ctx, "token invalidation failed", err, "source", source, "backend", s.backend)
		return err
	}
	s.logger.LogInfo(ctx, "token invalidated", "source", source, "backend", s.backend)
	return nil
}
