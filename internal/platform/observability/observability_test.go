package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_ComponentAndError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, "info", "json").Component("syncer")

	logger.LogDebug(context.Background(), "hidden")
	logger.LogError(context.Background(), "sync pass failed", errors.New("boom"), "session_id", 4512)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "sync pass failed", line["msg"])
	assert.Equal(t, "syncer", line["component"])
	assert.Equal(t, "boom", line["error"])
	assert.Equal(t, float64(4512), line["session_id"])
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", ParseLogLevel("DEBUG").String())
	assert.Equal(t, "WARN", ParseLogLevel("warn").String())
	assert.Equal(t, "INFO", ParseLogLevel("verbose").String())
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.RecordAPICall(ctx, "sessions", "200", time.Millisecond)
		m.RecordRetry(ctx, "sessions")
		m.RecordPreflight(ctx, "hit")
		m.RecordCacheLookup(ctx, "directions", true)
		m.RecordTokenOp(ctx, "memory", "get", nil)
		m.RecordMerge(ctx, true)
		m.RecordSync(ctx, 3, 1, time.Second)
		m.RecordPublish(ctx, "sns", "ok")
		m.SetCircuitBreakerState(ctx, "sns", 1)
	})
	assert.NotNil(t, m.Handler())
}

func TestMetrics_PrometheusHandler(t *testing.T) {
	provider, err := NewMeterProvider(MeterProviderConfig{
		ServiceName: "wavepick-sync-test",
		Prometheus:  true,
	})
	require.NoError(t, err)
	defer provider.Shutdown(context.Background())

	m := NewMetrics(provider)
	m.RecordAPICall(context.Background(), "sessions", "200", 40*time.Millisecond)
	m.RecordMerge(context.Background(), false)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "wavepick")
}

func TestMeterProvider_PrivateRegistries(t *testing.T) {
	ctx := context.Background()
	scrape := func(p MeterProvider) string {
		rec := httptest.NewRecorder()
		p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		return rec.Body.String()
	}

	first, err := NewMeterProvider(MeterProviderConfig{ServiceName: "first"})
	require.NoError(t, err)
	defer first.Shutdown(ctx)
	second, err := NewMeterProvider(MeterProviderConfig{ServiceName: "second", Prometheus: true})
	require.NoError(t, err)
	defer second.Shutdown(ctx)

	first.Meter("test").Counter("wavepick.first.total", "first only").Inc(ctx)
	second.Meter("test").Histogram("wavepick.second.latency", "second only").Record(ctx, 30)

	assert.Contains(t, scrape(first), "wavepick_first_total")
	assert.NotContains(t, scrape(first), "wavepick_second_latency")

	body := scrape(second)
	assert.NotContains(t, body, "wavepick_first_total")
	assert.Contains(t, body, `le="25"`, "default vendor latency buckets apply")
	assert.Contains(t, body, `le="30000"`)
}

func TestNoopMeterProvider_Handler(t *testing.T) {
	p := NewNoopMeterProvider()
	p.Meter("x").Counter("c", "").Add(context.Background(), 2)
	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNoopTracer(t *testing.T) {
	ctx, span := NewNoopTracer().StartSpan(context.Background(), "op")
	assert.NotNil(t, ctx)
	span.NoticeError(errors.New("ignored"))
	span.End()
}
