package skuvault

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/agatticelli/wavepick-sync/internal/auth"
	"github.com/agatticelli/wavepick-sync/internal/platform/cache"
	"github.com/agatticelli/wavepick-sync/internal/platform/observability"
)

const (
	DefaultDirectionsCacheSize = 100
	DefaultDirectionsCacheTTL  = time.Hour
	DefaultSessionsCacheSize   = 50
	DefaultSessionsCacheTTL    = 30 * time.Second

	cacheDirections = "directions"
	cacheSessions   = "sessions"
)

// CacheSize is the capacity and freshness of one response cache
type CacheSize struct {
	MaxSize int
	TTL     time.Duration
}

// Service is the read side of the vendor API: sessions and directions
// behind response caches, plus the login state those calls need.
//
// Fetch* methods return explicit errors. The remaining query methods are
// the public boundary and log failures, returning empty results.
type Service struct {
	client   *Client
	tokens   auth.TokenStore
	source   string
	tokenTTL time.Duration

	cacheMu         sync.RWMutex
	directions      cache.Cache
	directionsL2    cache.Cache
	directionsCache *cache.MemoryCache
	sessions        cache.Cache

	group         singleflight.Group
	authenticated atomic.Bool

	bgMu  sync.Mutex
	bg    errgroup.Group
	bgErr error

	logger  *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// ServiceConfig holds service configuration
type ServiceConfig struct {
	Client   *Client
	TokenTTL time.Duration // auth.DefaultTokenTTL when zero

	Directions CacheSize
	Sessions   CacheSize

	// Optional shared tiers layered under the in-memory caches
	DirectionsL2 cache.Cache
	SessionsL2   cache.Cache

	Logger  *observability.Logger
	Metrics *observability.Metrics
	Now     func() time.Time
}

// NewService creates a service on top of an existing client
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = auth.DefaultTokenTTL
	}
	if cfg.Directions.MaxSize <= 0 {
		cfg.Directions.MaxSize = DefaultDirectionsCacheSize
	}
	if cfg.Directions.TTL <= 0 {
		cfg.Directions.TTL = DefaultDirectionsCacheTTL
	}
	if cfg.Sessions.MaxSize <= 0 {
		cfg.Sessions.MaxSize = DefaultSessionsCacheSize
	}
	if cfg.Sessions.TTL <= 0 {
		cfg.Sessions.TTL = DefaultSessionsCacheTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNopLogger()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Service{
		client:       cfg.Client,
		tokens:       cfg.Client.tokens,
		source:       cfg.Client.source,
		tokenTTL:     cfg.TokenTTL,
		directionsL2: cfg.DirectionsL2,
		logger:       cfg.Logger.Component("skuvault_service"),
		metrics:      cfg.Metrics,
		now:          cfg.Now,
	}
	s.setDirectionsCache(cfg.Directions)
	s.sessions = layer(cache.NewMemoryCache(cfg.Sessions.MaxSize, cfg.Sessions.TTL), cfg.SessionsL2)
	return s, nil
}

func layer(l1 *cache.MemoryCache, l2 cache.Cache) cache.Cache {
	if l2 == nil {
		return l1
	}
	return cache.NewLayeredCache(l1, l2)
}

func (s *Service) setDirectionsCache(size CacheSize) {
	mem := cache.NewMemoryCache(size.MaxSize, size.TTL)
	s.cacheMu.Lock()
	s.directionsCache = mem
	s.directions = layer(mem, s.directionsL2)
	s.cacheMu.Unlock()
}

func (s *Service) directionsStore() cache.Cache {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.directions
}

// Client returns the underlying request pipeline
func (s *Service) Client() *Client {
	return s.client
}

// Authenticated reports whether a credential has been adopted
func (s *Service) Authenticated() bool {
	return s.authenticated.Load()
}

// cached returns the payload for key, fetching and storing it on a miss.
// Concurrent misses for one key share a single fetch. Payloads that fail
// validate are not stored.
func (s *Service) cached(ctx context.Context, store cache.Cache, name, key string, fetch func(context.Context) ([]byte, error), validate func([]byte) error) ([]byte, error) {
	if data, err := store.Get(ctx, key); err == nil {
		s.metrics.RecordCacheLookup(ctx, name, true)
		s.logger.LogDebug(ctx, "cache hit", "cache", name, "key", key)
		return data, nil
	}
	s.metrics.RecordCacheLookup(ctx, name, false)

	// The shared fetch outlives any one caller; each caller stops waiting
	// when its own context ends.
	fctx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(name+"|"+key, func() (any, error) {
		data, err := fetch(fctx)
		if err != nil {
			return nil, err
		}
		if err := validate(data); err != nil {
			return nil, err
		}
		if err := store.Set(fctx, key, data); err != nil {
			s.logger.LogWarn(fctx, "cache store failed", "cache", name, "key", key, "error", err)
		}
		return data, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		if r.Shared {
			s.logger.LogDebug(ctx, "coalesced fetch", "cache", name, "key", key)
		}
		return r.Val.([]byte), nil
	}
}

// FetchSessions lists sessions matching q
func (s *Service) FetchSessions(ctx context.Context, q SessionQuery) ([]Session, error) {
	if !s.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	payload := q.payload()
	data, err := s.cached(ctx, s.sessions, cacheSessions, q.cacheKey(),
		func(ctx context.Context) ([]byte, error) {
			return s.client.PostJSON(ctx, sessionsPath, payload)
		},
		func(data []byte) error {
			_, err := parseSessions(data, s.now())
			return err
		},
	)
	if err != nil {
		return nil, err
	}
	return parseSessions(data, s.now())
}

// ListSessions lists sessions. Limit defaults to 100; State names or wire
// values are accepted in q.States.
func (s *Service) ListSessions(ctx context.Context, q SessionQuery) []Session {
	if len(q.States) > 0 {
		states, err := StatesByNames(q.States)
		if err != nil {
			s.logger.LogError(ctx, "invalid session states", err, "states", q.States)
			return nil
		}
		q.States = states
	}
	sessions, err := s.FetchSessions(ctx, q)
	if err != nil {
		s.logger.LogError(ctx, "list sessions failed", err)
		return nil
	}
	return sessions
}

// SessionsBySaleID lists sessions in any state whose orders include saleID
func (s *Service) SessionsBySaleID(ctx context.Context, saleID string) []Session {
	sessions, err := s.FetchSessions(ctx, SessionQuery{
		Limit:  DefaultSessionLimit,
		SaleID: saleID,
	})
	if err != nil {
		s.logger.LogError(ctx, "sessions by sale id failed", err, "sale_id", saleID)
		return nil
	}
	return sessions
}

// FetchDirections returns the parsed directions of a picklist. Raw
// payloads are cached per picklist id.
func (s *Service) FetchDirections(ctx context.Context, picklistID string) (*Directions, error) {
	if picklistID == "" {
		return nil, fmt.Errorf("picklist id is required")
	}
	if !s.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	data, err := s.cached(ctx, s.directionsStore(), cacheDirections, picklistID,
		func(ctx context.Context) ([]byte, error) {
			return s.client.PostJSON(ctx, directionsPath(picklistID), directionsRequest{IncludeBinsInfo: true})
		},
		func(data []byte) error {
			_, err := parseDirections(data, picklistID, s.now())
			return err
		},
	)
	if err != nil {
		return nil, err
	}
	return parseDirections(data, picklistID, s.now())
}

// SessionDirections returns the directions of a picklist, or nil on failure
func (s *Service) SessionDirections(ctx context.Context, picklistID string) []Direction {
	d, err := s.FetchDirections(ctx, picklistID)
	if err != nil {
		s.logger.LogError(ctx, "get directions failed", err, "picklist_id", picklistID)
		return nil
	}
	return d.Items
}

// DirectionsCacheStats reports the in-memory directions cache
func (s *Service) DirectionsCacheStats() cache.Stats {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.directionsCache.Stats()
}

// InvalidateDirections drops one picklist's payload, or every payload when
// picklistID is empty
func (s *Service) InvalidateDirections(ctx context.Context, picklistID string) error {
	store := s.directionsStore()
	if picklistID == "" {
		return store.Clear(ctx)
	}
	return store.Delete(ctx, picklistID)
}

// ResetDirectionsCache replaces the in-memory directions cache with an
// empty one of the given size and TTL
func (s *Service) ResetDirectionsCache(maxSize int, ttl time.Duration) {
	if maxSize <= 0 {
		maxSize = DefaultDirectionsCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultDirectionsCacheTTL
	}
	s.setDirectionsCache(CacheSize{MaxSize: maxSize, TTL: ttl})
	s.logger.Info("directions cache reset", "max_size", maxSize, "ttl", ttl.String())
}

// ClearCaches drops every cached response
func (s *Service) ClearCaches(ctx context.Context) error {
	return errors.Join(
		s.directionsStore().Clear(ctx),
		s.sessions.Clear(ctx),
	)
}
