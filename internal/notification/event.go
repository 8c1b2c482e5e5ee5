package notification

import (
	"time"

	"github.com/agatticelli/wavepick-sync/internal/session"
)

// EventOrderUpdated is published after a canonical order is written
const EventOrderUpdated = "session_order.updated"

// OrderEvent is the message body of an order notification
type OrderEvent struct {
	EventType    string         `json:"event_type"`
	Created      bool           `json:"created"`
	CustomField2 string         `json:"custom_field_2,omitempty"`
	OccurredAt   time.Time      `json:"occurred_at"`
	Order        *session.Order `json:"order"`
}

// NewOrderEvent wraps order in an update event
func NewOrderEvent(order *session.Order, created bool, now time.Time) OrderEvent {
	return OrderEvent{
		EventType:    EventOrderUpdated,
		Created:      created,
		CustomField2: order.CustomField2(),
		OccurredAt:   now,
		Order:        order,
	}
}

// attributes are the SNS message attributes subscribers filter on
func (e OrderEvent) attributes() map[string]string {
	attrs := map[string]string{
		"event_type": e.EventType,
		"created":    boolString(e.Created),
	}
	if e.Order != nil && e.Order.SessionStatus != "" {
		attrs["session_status"] = string(e.Order.SessionStatus)
	}
	return attrs
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
