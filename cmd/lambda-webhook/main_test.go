package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agatticelli/wavepick-sync/internal/notification"
	"github.com/agatticelli/wavepick-sync/internal/platform/observability"
	"github.com/agatticelli/wavepick-sync/internal/platform/resilience"
	"github.com/agatticelli/wavepick-sync/internal/session"
)

func newHandler(url string) *handler {
	return &handler{
		httpClient: &http.Client{Timeout: time.Second},
		url:        url,
		retry: resilience.RetryConfig{
			MaxAttempts: 3,
			Sleep:       func(context.Context, time.Duration) error { return nil },
		},
		logger: observability.NewNopLogger(),
	}
}

func record(t *testing.T, id string) events.SQSMessage {
	t.Helper()
	event := notification.NewOrderEvent(&session.Order{DocumentID: "session-1-spot-1", SessionID: 1, SpotNumber: 1}, true, time.Unix(1772380800, 0))
	msg, err := json.Marshal(event)
	require.NoError(t, err)
	body, err := json.Marshal(map[string]string{"Message": string(msg)})
	require.NoError(t, err)
	return events.SQSMessage{MessageId: id, Body: string(body)}
}

func TestHandle_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		var got notification.OrderEvent
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, "1  #1", got.CustomField2)
		assert.Equal(t, "session-1-spot-1@1772380800000", r.Header.Get("Idempotency-Key"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	resp, err := newHandler(srv.URL).Handle(context.Background(), events.SQSEvent{
		Records: []events.SQSMessage{record(t, "m-1")},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHandle_ClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	resp, err := newHandler(srv.URL).Handle(context.Background(), events.SQSEvent{
		Records: []events.SQSMessage{record(t, "m-1"), {MessageId: "m-2", Body: "{}"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []events.SQSBatchItemFailure{{ItemIdentifier: "m-1"}, {ItemIdentifier: "m-2"}}, resp.BatchItemFailures)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHandle_NoURLSkips(t *testing.T) {
	resp, err := newHandler("").Handle(context.Background(), events.SQSEvent{
		Records: []events.SQSMessage{record(t, "m-1")},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
}

func TestMaskURL(t *testing.T) {
	assert.Equal(t, "https://hooks.e...0123456789", maskURL("https://hooks.example.com/abc/0123456789"))
	assert.Equal(t, "https://x.io", maskURL("https://x.io"))
}
