// Package app assembles the sync pipeline from configuration. It is shared
// by the long-running syncer and the scheduled Lambda.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/agatticelli/wavepick-sync/internal/auth"
	"github.com/agatticelli/wavepick-sync/internal/notification"
	platformaws "github.com/agatticelli/wavepick-sync/internal/platform/aws"
	"github.com/agatticelli/wavepick-sync/internal/platform/cache"
	"github.com/agatticelli/wavepick-sync/internal/platform/config"
	"github.com/agatticelli/wavepick-sync/internal/platform/observability"
	"github.com/agatticelli/wavepick-sync/internal/platform/resilience"
	"github.com/agatticelli/wavepick-sync/internal/skuvault"
	"github.com/agatticelli/wavepick-sync/internal/store"
	"github.com/agatticelli/wavepick-sync/internal/syncer"
)

// publisher is satisfied by both the SNS publisher and the no-op one
type publisher interface {
	syncer.Publisher
	CircuitBreakerState() string
}

// App holds the wired components
type App struct {
	Logger    *observability.Logger
	Metrics   *observability.Metrics
	Client    *skuvault.Client
	Service   *skuvault.Service
	Syncer    *syncer.Syncer
	Orders    store.OrderStore
	Publisher publisher
	Warmer    *cache.Warmer

	closers []func(context.Context) error
}

// Build wires every component described by cfg. Callers must Close the
// returned App.
func Build(ctx context.Context, cfg *config.Config, logger *observability.Logger) (_ *App, err error) {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	a := &App{Logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	if err := a.buildObservability(ctx, cfg); err != nil {
		return nil, err
	}

	var redisClient *redis.Client
	if cfg.TokenStore.Backend == "redis" || cfg.Cache.L2Enabled {
		redisClient, err = cache.NewRedisClient(cache.RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		a.onClose(func(context.Context) error { return redisClient.Close() })
	}

	tokens, err := a.buildTokenStore(cfg, redisClient)
	if err != nil {
		return nil, err
	}

	a.Client, err = skuvault.NewClient(skuvault.ClientConfig{
		BaseURL:        cfg.SkuVault.APIBaseURL,
		Origin:         cfg.SkuVault.Origin,
		UserAgent:      cfg.SkuVault.UserAgent,
		Partition:      cfg.SkuVault.Partition,
		Timeout:        cfg.SkuVault.RequestTimeout,
		PreflightHosts: cfg.SkuVault.PreflightHosts,
		MaxRetries:     cfg.Retry.MaxRetries,
		RetryDelay:     cfg.Retry.RetryDelay,
		MaxDelay:       cfg.Retry.MaxDelay,
		Tokens:         tokens,
		Source:         cfg.TokenStore.Source,
		RateLimiter:    resilience.NewRateLimiter(cfg.RateLimit.RequestDelay),
		Preflight:      cache.NewPreflightCache(cfg.Cache.Preflight.MaxSize, cfg.Cache.Preflight.TTL),
		Logger:         logger,
		Metrics:        a.Metrics,
		Tracer:         observability.NewTracer(cfg.Observability.ServiceName),
	})
	if err != nil {
		return nil, fmt.Errorf("skuvault client: %w", err)
	}

	svcCfg := skuvault.ServiceConfig{
		Client:     a.Client,
		TokenTTL:   cfg.TokenStore.TTL,
		Directions: skuvault.CacheSize{MaxSize: cfg.Cache.Directions.MaxSize, TTL: cfg.Cache.Directions.TTL},
		Sessions:   skuvault.CacheSize{MaxSize: cfg.Cache.Sessions.MaxSize, TTL: cfg.Cache.Sessions.TTL},
		Logger:     logger,
		Metrics:    a.Metrics,
	}
	if cfg.Cache.L2Enabled {
		svcCfg.DirectionsL2 = cache.NewRedisCache(redisClient, cfg.Cache.L2Prefix+"directions:", cfg.Cache.Directions.TTL)
		svcCfg.SessionsL2 = cache.NewRedisCache(redisClient, cfg.Cache.L2Prefix+"sessions:", cfg.Cache.Sessions.TTL)
	}
	a.Service, err = skuvault.NewService(svcCfg)
	if err != nil {
		return nil, fmt.Errorf("skuvault service: %w", err)
	}
	a.onClose(func(context.Context) error { return a.Service.Close() })

	if err := a.buildAWS(ctx, cfg); err != nil {
		return nil, err
	}

	a.Syncer, err = syncer.New(syncer.Config{
		Source:    a.Service,
		Store:     a.Orders,
		Publisher: a.Publisher,
		Query: skuvault.SessionQuery{
			Limit:          cfg.Sync.Limit,
			SortDescending: true,
			States:         cfg.Sync.States,
		},
		Workers: cfg.Sync.Workers,
		Logger:  logger,
		Metrics: a.Metrics,
		Tracer:  observability.NewTracer(cfg.Observability.ServiceName),
	})
	if err != nil {
		return nil, fmt.Errorf("syncer: %w", err)
	}

	if cfg.Sync.Warmup {
		a.Warmer = cache.NewWarmer(logger, cache.DefaultWarmupConfig())
		a.Warmer.RegisterProvider(a.Syncer)
	}

	return a, nil
}

func (a *App) buildObservability(ctx context.Context, cfg *config.Config) error {
	obs := cfg.Observability

	provider := observability.NewNoopMeterProvider()
	if obs.Metrics.Enabled {
		p, err := observability.NewMeterProvider(observability.MeterProviderConfig{
			ServiceName:  obs.ServiceName,
			Prometheus:   true,
			OTLPEndpoint: obs.Metrics.OTLPEndpoint,
		})
		if err != nil {
			return fmt.Errorf("meter provider: %w", err)
		}
		provider = p
		a.onClose(p.Shutdown)
	}
	a.Metrics = observability.NewMetrics(provider)

	tp, err := observability.NewTracerProvider(ctx, observability.TracingConfig{
		ServiceName: obs.ServiceName,
		Environment: obs.Environment,
		Endpoint:    obs.Tracing.Endpoint,
		Enabled:     obs.Tracing.Enabled,
		SampleRatio: obs.Tracing.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("tracer provider: %w", err)
	}
	a.onClose(tp.Shutdown)
	return nil
}

func (a *App) buildTokenStore(cfg *config.Config, redisClient *redis.Client) (auth.TokenStore, error) {
	var next auth.TokenStore
	switch cfg.TokenStore.Backend {
	case "leveldb":
		db, err := auth.OpenLevelDBTokenStore(cfg.TokenStore.Path)
		if err != nil {
			return nil, err
		}
		a.onClose(func(context.Context) error { return db.Close() })
		next = db
	case "redis":
		next = auth.NewRedisTokenStoreWithClient(redisClient, cfg.TokenStore.Prefix)
	case "memory":
		next = auth.NewMemoryTokenStore()
	default:
		return nil, fmt.Errorf("invalid token store backend: %s", cfg.TokenStore.Backend)
	}
	return auth.NewInstrumentedStore(next, cfg.TokenStore.Backend, a.Logger, a.Metrics), nil
}

// buildAWS picks DynamoDB and SNS when they are configured and falls back
// to the in-memory store and the no-op publisher otherwise
func (a *App) buildAWS(ctx context.Context, cfg *config.Config) error {
	a.Orders = store.NewMemoryOrderStore()
	a.Publisher = notification.NewNoOpPublisher(a.Logger)
	if cfg.AWS.OrdersTable == "" && cfg.AWS.SNSTopicARN == "" {
		a.Logger.Warn("no AWS resources configured, orders are kept in memory")
		return nil
	}

	awsCfg, err := platformaws.LoadAWSConfig(ctx, platformaws.Config{
		Region:   cfg.AWS.Region,
		Endpoint: cfg.AWS.Endpoint,
	})
	if err != nil {
		return fmt.Errorf("load AWS config: %w", err)
	}

	if cfg.AWS.OrdersTable != "" {
		dynamo := platformaws.NewDynamoClient(platformaws.DynamoClientConfig{
			AWSConfig: awsCfg,
			Logger:    a.Logger,
			Metrics:   a.Metrics,
		})
		orders, err := store.NewDynamoOrderStore(dynamo, cfg.AWS.OrdersTable)
		if err != nil {
			return err
		}
		a.Orders = orders
	}

	if cfg.AWS.SNSTopicARN != "" {
		snsClient := platformaws.NewSNSClient(platformaws.SNSClientConfig{
			AWSConfig: awsCfg,
			Logger:    a.Logger,
			Metrics:   a.Metrics,
		})
		pub, err := notification.NewPublisher(notification.PublisherConfig{
			SNSClient: snsClient,
			TopicARN:  cfg.AWS.SNSTopicARN,
			Logger:    a.Logger,
			Tracer:    observability.NewTracer(cfg.Observability.ServiceName),
		})
		if err != nil {
			return err
		}
		a.Publisher = pub
	}
	return nil
}

// Authenticate adopts a cached token when the service is not logged in
func (a *App) Authenticate(ctx context.Context) bool {
	if a.Service.Authenticated() {
		return true
	}
	return a.Service.UseCachedToken(ctx)
}

// RunOnce authenticates from the token store, warms the caches when
// configured and runs one sync pass
func (a *App) RunOnce(ctx context.Context) (syncer.Result, error) {
	if !a.Authenticate(ctx) {
		return syncer.Result{}, skuvault.ErrNotAuthenticated
	}
	if a.Warmer != nil {
		if res := a.Warmer.Warmup(ctx); res.HasErrors() {
			a.Logger.LogWarn(ctx, "cache warmup incomplete", "errors", res.Errors)
		}
	}
	return a.Syncer.Run(ctx)
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of creation
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
