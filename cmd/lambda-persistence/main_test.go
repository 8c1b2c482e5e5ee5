package main

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agatticelli/wavepick-sync/internal/notification"
	platformaws "github.com/agatticelli/wavepick-sync/internal/platform/aws"
	"github.com/agatticelli/wavepick-sync/internal/platform/observability"
	"github.com/agatticelli/wavepick-sync/internal/platform/resilience"
	"github.com/agatticelli/wavepick-sync/internal/session"
)

type fakeTable struct {
	mu    sync.Mutex
	items []*dynamodb.PutItemInput
	fail  bool
}

func (f *fakeTable) GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{}, nil
}

func (f *fakeTable) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("throttled")
	}
	f.items = append(f.items, in)
	return &dynamodb.PutItemOutput{}, nil
}

var now = time.Date(2026, 3, 1, 16, 0, 0, 0, time.UTC)

func newHandler(table *fakeTable) *handler {
	return &handler{
		dynamo: platformaws.NewDynamoClient(platformaws.DynamoClientConfig{
			Client:      table,
			RetryConfig: &resilience.RetryConfig{MaxAttempts: 1},
		}),
		table:     "events",
		retention: 24 * time.Hour,
		logger:    observability.NewNopLogger(),
		now:       func() time.Time { return now },
		newID:     func() string { return "evt-1" },
	}
}

func sqsRecord(t *testing.T, id string, event any) events.SQSMessage {
	t.Helper()
	msg, err := json.Marshal(event)
	require.NoError(t, err)
	body, err := json.Marshal(map[string]string{"Message": string(msg)})
	require.NoError(t, err)
	return events.SQSMessage{MessageId: id, Body: string(body)}
}

func TestHandle_ArchivesEvents(t *testing.T) {
	table := &fakeTable{}
	order := &session.Order{DocumentID: "session-4512-spot-1", SaleID: "SALE-1", SessionID: 4512, SpotNumber: 1}
	event := notification.NewOrderEvent(order, true, now)

	resp, err := newHandler(table).Handle(context.Background(), events.SQSEvent{
		Records: []events.SQSMessage{
			sqsRecord(t, "m-1", event),
			{MessageId: "m-2", Body: "garbage"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []events.SQSBatchItemFailure{{ItemIdentifier: "m-2"}}, resp.BatchItemFailures)

	require.Len(t, table.items, 1)
	var rec archiveRecord
	require.NoError(t, attributevalue.UnmarshalMap(table.items[0].Item, &rec))
	assert.Equal(t, "evt-1", rec.EventID)
	assert.Equal(t, "session-4512-spot-1", rec.DocumentID)
	assert.Equal(t, "4512  #1", rec.CustomField2)
	assert.Equal(t, now.Add(24*time.Hour).Unix(), rec.TTL)
	assert.Equal(t, "SALE-1", rec.Order.SaleID)
}

func TestHandle_ReportsWriteFailures(t *testing.T) {
	table := &fakeTable{fail: true}
	event := notification.NewOrderEvent(&session.Order{DocumentID: "d"}, false, now)

	resp, err := newHandler(table).Handle(context.Background(), events.SQSEvent{
		Records: []events.SQSMessage{sqsRecord(t, "m-1", event)},
	})
	require.NoError(t, err)
	assert.Equal(t, []events.SQSBatchItemFailure{{ItemIdentifier: "m-1"}}, resp.BatchItemFailures)
}
