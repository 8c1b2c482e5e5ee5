package notification

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/agatticelli/wavepick-sync/internal/platform/aws"
	"github.com/agatticelli/wavepick-sync/internal/platform/observability"
)

// Publisher publishes order events to SNS
type Publisher struct {
	snsClient *aws.SNSClient
	topicARN  string
	logger    *observability.Logger
	tracer    observability.Tracer
}

// PublisherConfig holds publisher configuration
type PublisherConfig struct {
	SNSClient *aws.SNSClient
	TopicARN  string
	Logger    *observability.Logger
	Tracer    observability.Tracer
}

// NewPublisher creates a new order event publisher
func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	if cfg.SNSClient == nil {
		return nil, fmt.Errorf("SNS client is required")
	}
	if cfg.TopicARN == "" {
		return nil, fmt.Errorf("SNS topic ARN is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNopLogger()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoopTracer()
	}

	return &Publisher{
		snsClient: cfg.SNSClient,
		topicARN:  cfg.TopicARN,
		logger:    cfg.Logger.Component("publisher"),
		tracer:    cfg.Tracer,
	}, nil
}

// PublishOrderUpdated publishes one order event
func (p *Publisher) PublishOrderUpdated(ctx context.Context, event OrderEvent) error {
	ctx, span := p.tracer.StartSpan(ctx, "Publisher.PublishOrderUpdated",
		observability.WithAttributes(
			attribute.String("document_id", event.Order.DocumentID),
			attribute.Bool("created", event.Created),
		),
	)
	defer span.End()

	if err := p.snsClient.Publish(ctx, p.topicARN, event, event.attributes()); err != nil {
		span.NoticeError(err)
		return fmt.Errorf("publish order %s: %w", event.Order.DocumentID, err)
	}

	p.logger.LogDebug(ctx, "published order event",
		"document_id", event.Order.DocumentID,
		"created", event.Created,
	)
	return nil
}

// PublishOrdersUpdated publishes events with the SNS batch API
func (p *Publisher) PublishOrdersUpdated(ctx context.Context, events []OrderEvent) error {
	if len(events) == 0 {
		return nil
	}
	start := time.Now()

	messages := make([]aws.Message, 0, len(events))
	for _, e := range events {
		messages = append(messages, aws.Message{Body: e, Attributes: e.attributes()})
	}
	if err := p.snsClient.PublishBatch(ctx, p.topicARN, messages); err != nil {
		return fmt.Errorf("publish %d order events: %w", len(events), err)
	}

	p.logger.LogInfo(ctx, "batch publish completed",
		"total", len(events),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// CircuitBreakerState returns the current circuit breaker state
func (p *Publisher) CircuitBreakerState() string {
	return p.snsClient.CircuitBreakerState().String()
}

// ResetCircuitBreaker manually resets the circuit breaker
func (p *Publisher) ResetCircuitBreaker() {
	p.snsClient.ResetCircuitBreaker()
	p.logger.Info("reset SNS circuit breaker")
}
