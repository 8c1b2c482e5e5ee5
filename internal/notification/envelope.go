package notification

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
)

// ErrUnexpectedEvent is returned for envelopes that do not carry an order
// event
var ErrUnexpectedEvent = errors.New("notification: unexpected event")

// DecodeSQSBody extracts the order event from the body of an SQS message
// delivered by an SNS subscription
func DecodeSQSBody(body string) (OrderEvent, error) {
	var entity events.SNSEntity
	if err := json.Unmarshal([]byte(body), &entity); err != nil {
		return OrderEvent{}, fmt.Errorf("parse SNS envelope: %w", err)
	}

	var event OrderEvent
	if err := json.Unmarshal([]byte(entity.Message), &event); err != nil {
		return OrderEvent{}, fmt.Errorf("parse order event: %w", err)
	}
	if event.EventType != EventOrderUpdated || event.Order == nil {
		return OrderEvent{}, fmt.Errorf("%w: %q", ErrUnexpectedEvent, event.EventType)
	}
	return event, nil
}
