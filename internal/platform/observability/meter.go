package observability

import (
	"context"
	"fmt"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

// VendorLatencyBuckets are the histogram bounds, in milliseconds, used when
// an instrument does not name its own. They span a cached preflight up to a
// request that ran into the client timeout.
var VendorLatencyBuckets = []float64{25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}

// MeterProvider hands out meters and serves the scrape endpoint.
type MeterProvider interface {
	Meter(name string) Meter
	Shutdown(ctx context.Context) error

	// Handler serves /metrics; 404 when nothing is scrapeable
	Handler() http.Handler
}

// Meter creates the instruments recorded by Metrics.
type Meter interface {
	Counter(name, description string) Counter
	Gauge(name, description string) Gauge
	Histogram(name, description string, buckets ...float64) Histogram
}

// Counter is a monotonically increasing count.
type Counter interface {
	Add(ctx context.Context, value int64, attrs ...attribute.KeyValue)
	Inc(ctx context.Context, attrs ...attribute.KeyValue)
}

// Gauge records the latest integer value, such as a breaker state.
type Gauge interface {
	Record(ctx context.Context, value int64, attrs ...attribute.KeyValue)
}

// Histogram records a distribution in milliseconds.
type Histogram interface {
	Record(ctx context.Context, value float64, attrs ...attribute.KeyValue)
}

// MeterProviderConfig selects the exporters. Prometheus is served on the
// provider's Handler; OTLP pushes to OTLPEndpoint when set. With neither,
// Prometheus is used.
type MeterProviderConfig struct {
	ServiceName string
	Version     string

	Prometheus   bool
	OTLPEndpoint string
	OTLPHeaders  map[string]string
	OTLPInsecure bool
}

type otelMeterProvider struct {
	provider *sdkmetric.MeterProvider
	registry *promclient.Registry // nil without Prometheus
}

// NewMeterProvider builds an OTel SDK provider for the wavepick
// instruments. Prometheus collectors go to a private registry so several
// providers can live in one process.
func NewMeterProvider(cfg MeterProviderConfig) (MeterProvider, error) {
	ctx := context.Background()

	res, err := resource.New(ctx,
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	p := &otelMeterProvider{}

	if cfg.Prometheus || cfg.OTLPEndpoint == "" {
		p.registry = promclient.NewRegistry()
		exp, err := otelprom.New(otelprom.WithRegisterer(p.registry))
		if err != nil {
			return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(exp))
	}

	if cfg.OTLPEndpoint != "" {
		otlpOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpointURL(cfg.OTLPEndpoint)}
		if len(cfg.OTLPHeaders) > 0 {
			otlpOpts = append(otlpOpts, otlpmetricgrpc.WithHeaders(cfg.OTLPHeaders))
		}
		if cfg.OTLPInsecure {
			otlpOpts = append(otlpOpts, otlpmetricgrpc.WithInsecure())
		}
		exp, err := otlpmetricgrpc.New(ctx, otlpOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)))
	}

	p.provider = sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(p.provider)
	return p, nil
}

func (p *otelMeterProvider) Meter(name string) Meter {
	return &otelMeter{meter: p.provider.Meter(name)}
}

func (p *otelMeterProvider) Shutdown(ctx context.Context) error {
	return p.provider.Shutdown(ctx)
}

func (p *otelMeterProvider) Handler() http.Handler {
	if p.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

type otelMeter struct {
	meter metric.Meter
}

// Instrument creation only fails on invalid names, which are constants
// here; a failed instrument degrades to a no-op.
func (m *otelMeter) Counter(name, description string) Counter {
	c, err := m.meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		return noopInstrument{}
	}
	return otelCounter{c}
}

func (m *otelMeter) Gauge(name, description string) Gauge {
	g, err := m.meter.Int64Gauge(name, metric.WithDescription(description))
	if err != nil {
		return noopInstrument{}
	}
	return otelGauge{g}
}

func (m *otelMeter) Histogram(name, description string, buckets ...float64) Histogram {
	if len(buckets) == 0 {
		buckets = VendorLatencyBuckets
	}
	h, err := m.meter.Float64Histogram(name,
		metric.WithDescription(description),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(buckets...),
	)
	if err != nil {
		return noopHistogram{}
	}
	return otelHistogram{h}
}

type otelCounter struct{ metric.Int64Counter }

func (c otelCounter) Add(ctx context.Context, value int64, attrs ...attribute.KeyValue) {
	c.Int64Counter.Add(ctx, value, metric.WithAttributes(attrs...))
}

func (c otelCounter) Inc(ctx context.Context, attrs ...attribute.KeyValue) {
	c.Add(ctx, 1, attrs...)
}

type otelGauge struct{ metric.Int64Gauge }

func (g otelGauge) Record(ctx context.Context, value int64, attrs ...attribute.KeyValue) {
	g.Int64Gauge.Record(ctx, value, metric.WithAttributes(attrs...))
}

type otelHistogram struct{ metric.Float64Histogram }

func (h otelHistogram) Record(ctx context.Context, value float64, attrs ...attribute.KeyValue) {
	h.Float64Histogram.Record(ctx, value, metric.WithAttributes(attrs...))
}

// noopInstrument serves as both a Counter and a Gauge
type noopInstrument struct{}

func (noopInstrument) Add(context.Context, int64, ...attribute.KeyValue)    {}
func (noopInstrument) Inc(context.Context, ...attribute.KeyValue)           {}
func (noopInstrument) Record(context.Context, int64, ...attribute.KeyValue) {}

type noopHistogram struct{}

func (noopHistogram) Record(context.Context, float64, ...attribute.KeyValue) {}

type noopMeterProvider struct{}

// NewNoopMeterProvider returns a provider whose instruments record nothing
// and whose Handler answers 404.
func NewNoopMeterProvider() MeterProvider {
	return noopMeterProvider{}
}

func (noopMeterProvider) Meter(string) Meter               { return noopMeterProvider{} }
func (noopMeterProvider) Shutdown(context.Context) error   { return nil }
func (noopMeterProvider) Handler() http.Handler            { return http.NotFoundHandler() }
func (noopMeterProvider) Counter(_, _ string) Counter      { return noopInstrument{} }
func (noopMeterProvider) Gauge(_, _ string) Gauge          { return noopInstrument{} }
func (noopMeterProvider) Histogram(_, _ string, _ ...float64) Histogram {
	return noopHistogram{}
}
