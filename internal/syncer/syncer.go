// Package syncer pulls wave-picking sessions from the vendor, derives the
// order in every cart spot and reconciles it into the canonical store.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/agatticelli/wavepick-sync/internal/notification"
	"github.com/agatticelli/wavepick-sync/internal/platform/observability"
	"github.com/agatticelli/wavepick-sync/internal/platform/worker"
	"github.com/agatticelli/wavepick-sync/internal/session"
	"github.com/agatticelli/wavepick-sync/internal/skuvault"
	"github.com/agatticelli/wavepick-sync/internal/store"
)

// ErrOrderNotFound is returned by LatestOrderState when the vendor no
// longer reports the order
var ErrOrderNotFound = errors.New("syncer: order not found upstream")

// SessionSource is the vendor read side
type SessionSource interface {
	FetchSessions(ctx context.Context, q skuvault.SessionQuery) ([]skuvault.Session, error)
	FetchDirections(ctx context.Context, picklistID string) (*skuvault.Directions, error)
}

// Publisher announces reconciled orders
type Publisher interface {
	PublishOrdersUpdated(ctx context.Context, events []notification.OrderEvent) error
}

// SessionResult is the outcome of syncing one session
type SessionResult struct {
	SessionID int64
	Orders    int
	Created   int
}

// Result summarizes one sync pass
type Result struct {
	Sessions int
	Orders   int
	Created  int
	Failed   int
	Duration time.Duration
}

// Syncer reconciles vendor sessions into the order store
type Syncer struct {
	source    SessionSource
	store     store.OrderStore
	publisher Publisher
	query     skuvault.SessionQuery
	workers   int

	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  observability.Tracer
	now     func() time.Time
}

// Config holds syncer configuration
type Config struct {
	Source    SessionSource
	Store     store.OrderStore
	Publisher Publisher // optional

	// Query selects the sessions of a pass
	Query   skuvault.SessionQuery
	Workers int

	Logger  *observability.Logger
	Metrics *observability.Metrics
	Tracer  observability.Tracer
	Now     func() time.Time
}

// New creates a syncer
func New(cfg Config) (*Syncer, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("session source is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("order store is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNopLogger()
	}
	if cfg.Publisher == nil {
		cfg.Publisher = notification.NewNoOpPublisher(cfg.Logger)
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoopTracer()
	}
	if cfg.Now == nil {
		cfg.Now = session.Now
	}

	return &Syncer{
		source:    cfg.Source,
		store:     cfg.Store,
		publisher: cfg.Publisher,
		query:     cfg.Query,
		workers:   cfg.Workers,
		logger:    cfg.Logger.Component("syncer"),
		metrics:   cfg.Metrics,
		tracer:    cfg.Tracer,
		now:       cfg.Now,
	}, nil
}

// Run performs one pass: list sessions, then sync each on the worker pool.
// A failing session is counted and logged; only a failed listing aborts.
func (s *Syncer) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	ctx, span := s.tracer.StartSpan(ctx, "Syncer.Run")
	defer span.End()

	sessions, err := s.source.FetchSessions(ctx, s.query)
	if err != nil {
		span.NoticeError(err)
		return Result{}, fmt.Errorf("list sessions: %w", err)
	}

	jobs := make([]worker.Job[SessionResult], 0, len(sessions))
	for _, sess := range sessions {
		if sess.PicklistID == "" {
			continue
		}
		jobs = append(jobs, worker.Job[SessionResult]{
			ID: strconv.FormatInt(sess.SessionID, 10),
			Execute: func(ctx context.Context) (SessionResult, error) {
				return s.SyncSession(ctx, sess)
			},
		})
	}

	pool := worker.NewPool[SessionResult](ctx, s.workers, len(jobs))
	results := pool.SubmitAndWait(jobs)
	pool.Close()

	res := Result{Sessions: len(jobs)}
	for _, r := range results {
		if r.Err != nil {
			res.Failed++
			s.logger.LogError(ctx, "session sync failed", r.Err, "session_id", r.JobID)
			continue
		}
		res.Orders += r.Value.Orders
		res.Created += r.Value.Created
	}
	// Jobs that never ran because ctx ended count as failures
	res.Failed += len(jobs) - len(results)
	res.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Int("sync.sessions", res.Sessions),
		attribute.Int("sync.failed", res.Failed),
	)
	s.metrics.RecordSync(ctx, res.Sessions, res.Failed, res.Duration)
	s.logger.LogInfo(ctx, "sync pass completed",
		"sessions", res.Sessions,
		"orders", res.Orders,
		"created", res.Created,
		"failed", res.Failed,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, ctx.Err()
}

// SyncSession reconciles every order of one session into the store and
// publishes the written orders
func (s *Syncer) SyncSession(ctx context.Context, sess skuvault.Session) (SessionResult, error) {
	res := SessionResult{SessionID: sess.SessionID}

	d, err := s.source.FetchDirections(ctx, sess.PicklistID)
	if err != nil {
		return res, fmt.Errorf("session %d directions: %w", sess.SessionID, err)
	}

	orders := session.Build(sess, d)
	events := make([]notification.OrderEvent, 0, len(orders))
	for _, incoming := range orders {
		canonical, created, err := s.reconcile(ctx, incoming)
		if err != nil {
			return res, fmt.Errorf("session %d spot %d: %w", sess.SessionID, incoming.SpotNumber, err)
		}
		res.Orders++
		if created {
			res.Created++
		}
		events = append(events, notification.NewOrderEvent(canonical, created, canonical.UpdatedAt))
	}

	if err := s.publisher.PublishOrdersUpdated(ctx, events); err != nil {
		// The store already holds the result; the next pass republishes
		s.logger.LogWarn(ctx, "publish order events failed",
			"session_id", sess.SessionID,
			"events", len(events),
			"error", err,
		)
	}
	return res, nil
}

// reconcile merges incoming into the stored order, creating it when absent
func (s *Syncer) reconcile(ctx context.Context, incoming *session.Order) (*session.Order, bool, error) {
	canonical, err := s.store.Get(ctx, incoming.DocumentID)
	created := errors.Is(err, store.ErrNotFound)
	if err != nil && !created {
		return nil, false, fmt.Errorf("load order: %w", err)
	}

	if created {
		canonical = incoming
		canonical.UpdatedAt = s.now()
	} else {
		session.MergeAt(canonical, incoming, s.now())
	}

	if err := s.store.Put(ctx, canonical); err != nil {
		return nil, false, fmt.Errorf("store order: %w", err)
	}
	s.metrics.RecordMerge(ctx, created)
	return canonical, created, nil
}

// LatestOrderState re-derives order from the vendor's current data: the
// sessions of its sale, the one with its session id, and the order in
// its spot. DocumentID, SavedCustomField2 and ShipmentID are kept from
// order.
func (s *Syncer) LatestOrderState(ctx context.Context, order *session.Order) (*session.Order, error) {
	if order.SaleID == "" {
		return nil, fmt.Errorf("sale id is required")
	}

	sessions, err := s.source.FetchSessions(ctx, skuvault.SessionQuery{
		Limit:  skuvault.DefaultSessionLimit,
		SaleID: order.SaleID,
	})
	if err != nil {
		return nil, fmt.Errorf("sessions for sale %s: %w", order.SaleID, err)
	}

	var match *skuvault.Session
	for i := range sessions {
		if sessions[i].SessionID == order.SessionID {
			match = &sessions[i]
			break
		}
	}
	if match == nil {
		return nil, fmt.Errorf("%w: session %d for sale %s", ErrOrderNotFound, order.SessionID, order.SaleID)
	}
	if match.PicklistID == "" {
		return nil, fmt.Errorf("%w: session %d has no picklist", ErrOrderNotFound, match.SessionID)
	}

	d, err := s.source.FetchDirections(ctx, match.PicklistID)
	if err != nil {
		return nil, fmt.Errorf("session %d directions: %w", match.SessionID, err)
	}

	for _, latest := range session.Build(*match, d) {
		if latest.SpotNumber != order.SpotNumber {
			continue
		}
		latest.DocumentID = order.DocumentID
		latest.SavedCustomField2 = order.SavedCustomField2
		latest.ShipmentID = order.ShipmentID
		if latest.OrderNumber == "" {
			latest.OrderNumber = order.OrderNumber
		}
		latest.UpdatedAt = s.now()
		return latest, nil
	}
	return nil, fmt.Errorf("%w: spot %d in session %d", ErrOrderNotFound, order.SpotNumber, match.SessionID)
}

// Name implements cache.WarmupProvider
func (s *Syncer) Name() string {
	return "active_sessions"
}

// Warmup prefetches the session listing and the directions of the
// sessions still being picked
func (s *Syncer) Warmup(ctx context.Context) error {
	sessions, err := s.source.FetchSessions(ctx, s.query)
	if err != nil {
		return err
	}
	var errs []error
	for _, sess := range sessions {
		if sess.PicklistID == "" || sess.Status != skuvault.StateActive {
			continue
		}
		if _, err := s.source.FetchDirections(ctx, sess.PicklistID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
