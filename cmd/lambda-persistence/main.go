package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/google/uuid"

	"github.com/agatticelli/wavepick-sync/internal/notification"
	platformaws "github.com/agatticelli/wavepick-sync/internal/platform/aws"
	"github.com/agatticelli/wavepick-sync/internal/platform/observability"
	"github.com/agatticelli/wavepick-sync/internal/session"
)

const (
	defaultTable     = "wavepick-order-events"
	defaultRetention = 30 * 24 * time.Hour
)

// archiveRecord is one order event in the audit table. Records expire
// through the table's ttl attribute.
type archiveRecord struct {
	EventID      string         `dynamodbav:"event_id"`
	DocumentID   string         `dynamodbav:"document_id"`
	EventType    string         `dynamodbav:"event_type"`
	Created      bool           `dynamodbav:"created"`
	CustomField2 string         `dynamodbav:"custom_field_2,omitempty"`
	OccurredAt   time.Time      `dynamodbav:"occurred_at"`
	Order        *session.Order `dynamodbav:"order"`
	TTL          int64          `dynamodbav:"ttl"`
}

type handler struct {
	dynamo    *platformaws.DynamoClient
	table     string
	retention time.Duration
	logger    *observability.Logger
	now       func() time.Time
	newID     func() string
}

// Handle archives every order event in the batch. Failed records are
// reported so SQS retries only those.
func (h *handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	var failures []events.SQSBatchItemFailure
	fail := func(id string) {
		failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: id})
	}

	for _, record := range sqsEvent.Records {
		event, err := notification.DecodeSQSBody(record.Body)
		if err != nil {
			h.logger.LogError(ctx, "failed to decode record", err, "message_id", record.MessageId)
			fail(record.MessageId)
			continue
		}

		rec := archiveRecord{
			EventID:      h.newID(),
			DocumentID:   event.Order.DocumentID,
			EventType:    event.EventType,
			Created:      event.Created,
			CustomField2: event.CustomField2,
			OccurredAt:   event.OccurredAt,
			Order:        event.Order,
			TTL:          h.now().Add(h.retention).Unix(),
		}
		if err := h.dynamo.PutItem(ctx, h.table, rec); err != nil {
			h.logger.LogError(ctx, "failed to archive order event", err,
				"message_id", record.MessageId,
				"document_id", rec.DocumentID,
			)
			fail(record.MessageId)
			continue
		}
		h.logger.LogDebug(ctx, "order event archived", "event_id", rec.EventID, "document_id", rec.DocumentID)
	}

	h.logger.LogInfo(ctx, "batch processed",
		"records", len(sqsEvent.Records),
		"failed", len(failures),
	)
	return events.SQSEventResponse{BatchItemFailures: failures}, nil
}

func main() {
	ctx := context.Background()
	logger := observability.NewLogger(envOr("LOG_LEVEL", "info"), "json")

	awsCfg, err := platformaws.LoadAWSConfig(ctx, platformaws.Config{
		Region:   envOr("AWS_REGION", "us-east-1"),
		Endpoint: os.Getenv("AWS_ENDPOINT_URL"),
	})
	if err != nil {
		panic(fmt.Sprintf("failed to load AWS config: %v", err))
	}

	retention := defaultRetention
	if v := os.Getenv("ARCHIVE_RETENTION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			retention = d
		}
	}

	h := &handler{
		dynamo:    platformaws.NewDynamoClient(platformaws.DynamoClientConfig{AWSConfig: awsCfg, Logger: logger}),
		table:     envOr("TABLE_NAME", defaultTable),
		retention: retention,
		logger:    logger.Component("order_archive"),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	logger.Info("archive lambda initialized", "table", h.table, "retention", retention)
	lambda.Start(h.Handle)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
