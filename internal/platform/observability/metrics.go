package observability

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// Metrics holds the instruments recorded by the sync pipeline. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	provider MeterProvider

	apiCalls     Counter
	apiDuration  Histogram
	apiRetries   Counter
	preflight    Counter
	cacheLookups Counter
	tokenOps     Counter
	merges       Counter
	syncRuns     Counter
	syncDuration Histogram
	publishes    Counter
	breakerState Gauge
}

// NewMetrics builds the instrument set on top of provider
func NewMetrics(provider MeterProvider) *Metrics {
	if provider == nil {
		provider = NewNoopMeterProvider()
	}

	meter := provider.Meter("wavepick")

	return &Metrics{
		provider:     provider,
		apiCalls:     meter.Counter("wavepick.api.calls", "Vendor API requests by endpoint and outcome"),
		apiDuration:  meter.Histogram("wavepick.api.duration", "Vendor API request duration in milliseconds"),
		apiRetries:   meter.Counter("wavepick.api.retries", "Vendor API retries after a failed attempt"),
		preflight:    meter.Counter("wavepick.preflight", "CORS preflight lookups and negotiations"),
		cacheLookups: meter.Counter("wavepick.cache.lookups", "Response cache lookups by cache and result"),
		tokenOps:     meter.Counter("wavepick.token_store.operations", "Token store operations"),
		merges:       meter.Counter("wavepick.reconcile.merges", "Session order reconciliations"),
		syncRuns:     meter.Counter("wavepick.sync.sessions", "Sessions processed by the syncer"),
		syncDuration: meter.Histogram("wavepick.sync.duration", "Sync pass duration in milliseconds", 500, 1000, 5000, 15000, 30000, 60000, 120000, 300000),
		publishes:    meter.Counter("wavepick.notifications", "Order update notifications"),
		breakerState: meter.Gauge("wavepick.circuit_breaker.state", "Circuit breaker state (0=closed, 1=open, 2=half-open)"),
	}
}

// RecordAPICall records one vendor request attempt
func (m *Metrics) RecordAPICall(ctx context.Context, endpoint, status string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("endpoint", endpoint),
		attribute.String("status", status),
	}
	m.apiCalls.Inc(ctx, attrs...)
	m.apiDuration.Record(ctx, float64(duration.Milliseconds()), attrs...)
}

// RecordRetry records a retry of a vendor request
func (m *Metrics) RecordRetry(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	m.apiRetries.Inc(ctx, attribute.String("endpoint", endpoint))
}

// RecordPreflight records a preflight outcome: hit, success, failure or error
func (m *Metrics) RecordPreflight(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.preflight.Inc(ctx, attribute.String("outcome", outcome))
}

// RecordCacheLookup records a response cache hit or miss
func (m *Metrics) RecordCacheLookup(ctx context.Context, cacheName string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.Inc(ctx, attribute.String("cache", cacheName), attribute.String("result", result))
}

// RecordTokenOp records a token store operation
func (m *Metrics) RecordTokenOp(ctx context.Context, backend, op string, err error) {
	if m == nil {
		return
	}
	m.tokenOps.Inc(ctx,
		attribute.String("backend", backend),
		attribute.String("op", op),
		attribute.Bool("error", err != nil),
	)
}

// RecordMerge records a reconciliation; created is true when no canonical
// record existed yet
func (m *Metrics) RecordMerge(ctx context.Context, created bool) {
	if m == nil {
		return
	}
	m.merges.Inc(ctx, attribute.Bool("created", created))
}

// RecordSync records a completed sync pass
func (m *Metrics) RecordSync(ctx context.Context, sessions, failed int, duration time.Duration) {
	if m == nil {
		return
	}
	m.syncRuns.Add(ctx, int64(sessions-failed), attribute.String("status", "ok"))
	m.syncRuns.Add(ctx, int64(failed), attribute.String("status", "failed"))
	m.syncDuration.Record(ctx, float64(duration.Milliseconds()))
}

// RecordPublish records an order notification
func (m *Metrics) RecordPublish(ctx context.Context, transport, status string) {
	if m == nil {
		return
	}
	m.publishes.Inc(ctx, attribute.String("transport", transport), attribute.String("status", status))
}

// SetCircuitBreakerState sets circuit breaker state for a dependency
func (m *Metrics) SetCircuitBreakerState(ctx context.Context, service string, state int64) {
	if m == nil {
		return
	}
	m.breakerState.Record(ctx, state, attribute.String("service", service))
}

// Handler returns the HTTP handler for Prometheus metrics
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return NewNoopMeterProvider().Handler()
	}
	return m.provider.Handler()
}
