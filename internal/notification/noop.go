package notification

import (
	"context"

	"github.com/agatticelli/wavepick-sync/internal/platform/observability"
)

// NoOpPublisher logs order events instead of publishing them.
// Used when no SNS topic is configured.
type NoOpPublisher struct {
	logger *observability.Logger
}

// NewNoOpPublisher creates a new no-op publisher
func NewNoOpPublisher(logger *observability.Logger) *NoOpPublisher {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &NoOpPublisher{logger: logger}
}

// PublishOrderUpdated logs the event
func (p *NoOpPublisher) PublishOrderUpdated(ctx context.Context, event OrderEvent) error {
	p.logger.LogDebug(ctx, "order updated (SNS disabled)",
		"document_id", event.Order.DocumentID,
		"sale_id", event.Order.SaleID,
		"session_status", event.Order.SessionStatus.String(),
		"created", event.Created,
	)
	return nil
}

// PublishOrdersUpdated logs every event
func (p *NoOpPublisher) PublishOrdersUpdated(ctx context.Context, events []OrderEvent) error {
	for _, e := range events {
		if err := p.PublishOrderUpdated(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// CircuitBreakerState returns "closed" since there's no circuit breaker
func (p *NoOpPublisher) CircuitBreakerState() string {
	return "closed"
}

// ResetCircuitBreaker is a no-op
func (p *NoOpPublisher) ResetCircuitBreaker() {}
