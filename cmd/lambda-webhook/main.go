package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/agatticelli/wavepick-sync/internal/notification"
	"github.com/agatticelli/wavepick-sync/internal/platform/observability"
	"github.com/agatticelli/wavepick-sync/internal/platform/resilience"
)

const userAgent = "wavepick-sync-webhook/1.0"

// HTTPError represents a non-2xx webhook response
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("webhook failed with status %d", e.StatusCode)
}

// isRetryableError retries 5xx responses, 429 and transport errors
func isRetryableError(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500 || httpErr.StatusCode == http.StatusTooManyRequests
	}
	return true
}

type handler struct {
	httpClient *http.Client
	url        string
	retry      resilience.RetryConfig
	logger     *observability.Logger
}

// Handle forwards every order event in the batch to the webhook
func (h *handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	var failures []events.SQSBatchItemFailure

	for _, record := range sqsEvent.Records {
		event, err := notification.DecodeSQSBody(record.Body)
		if err != nil {
			h.logger.LogError(ctx, "failed to decode record", err, "message_id", record.MessageId)
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
			continue
		}

		url := h.url
		if attr, ok := record.MessageAttributes["webhookURL"]; ok && attr.StringValue != nil && url == "" {
			url = *attr.StringValue
		}
		if url == "" {
			h.logger.LogWarn(ctx, "no webhook URL configured, skipping record", "message_id", record.MessageId)
			continue
		}

		err = resilience.RetryIf(ctx, h.retry, isRetryableError, func(ctx context.Context) error {
			return h.send(ctx, url, event)
		})
		if err != nil {
			h.logger.LogError(ctx, "webhook delivery failed", err,
				"message_id", record.MessageId,
				"document_id", event.Order.DocumentID,
				"url", maskURL(url),
			)
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
			continue
		}
		h.logger.LogDebug(ctx, "webhook sent", "document_id", event.Order.DocumentID, "url", maskURL(url))
	}

	h.logger.LogInfo(ctx, "batch processed",
		"records", len(sqsEvent.Records),
		"failed", len(failures),
	)
	return events.SQSEventResponse{BatchItemFailures: failures}, nil
}

// send makes a single POST of event
func (h *handler) send(ctx context.Context, url string, event notification.OrderEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return resilience.Permanent(fmt.Errorf("failed to marshal payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return resilience.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Idempotency-Key", fmt.Sprintf("%s@%d", event.Order.DocumentID, event.OccurredAt.UnixMilli()))

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
}

// maskURL masks sensitive parts of URL for logging
func maskURL(url string) string {
	if len(url) > 30 {
		return url[:15] + "..." + url[len(url)-10:]
	}
	return url
}

func main() {
	logger := observability.NewLogger("info", "json")
	h := &handler{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		url:        os.Getenv("WEBHOOK_URL"),
		retry: resilience.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			Jitter:      0.1,
		},
		logger: logger.Component("order_webhook"),
	}
	logger.Info("webhook lambda initialized", "configured", h.url != "")
	lambda.Start(h.Handle)
}
