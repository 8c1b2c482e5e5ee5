package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/agatticelli/wavepick-sync/internal/app"
	"github.com/agatticelli/wavepick-sync/internal/platform/config"
	"github.com/agatticelli/wavepick-sync/internal/platform/observability"
	"github.com/agatticelli/wavepick-sync/internal/syncer"
)

// Summary is returned to the scheduler for each invocation
type Summary struct {
	Sessions   int   `json:"sessions"`
	Orders     int   `json:"orders"`
	Created    int   `json:"created"`
	Failed     int   `json:"failed"`
	DurationMS int64 `json:"duration_ms"`
}

type runner interface {
	RunOnce(ctx context.Context) (syncer.Result, error)
}

type handler struct {
	app    runner
	logger *observability.Logger
}

// Handle runs one sync pass per scheduled event
func (h *handler) Handle(ctx context.Context, event events.CloudWatchEvent) (Summary, error) {
	h.logger.LogInfo(ctx, "scheduled sync started", "event_id", event.ID, "time", event.Time)

	res, err := h.app.RunOnce(ctx)
	if err != nil {
		h.logger.LogError(ctx, "scheduled sync failed", err, "event_id", event.ID)
		return Summary{}, err
	}
	return Summary{
		Sessions:   res.Sessions,
		Orders:     res.Orders,
		Created:    res.Created,
		Failed:     res.Failed,
		DurationMS: res.Duration.Milliseconds(),
	}, nil
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load(os.Getenv("WAVEPICK_CONFIG"))
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	logger := observability.NewLogger(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	// Built once per container; caches and the rate limiter survive warm
	// invocations
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		panic(fmt.Sprintf("failed to build application: %v", err))
	}

	h := &handler{app: a, logger: logger.Component("lambda_sync")}
	lambda.Start(h.Handle)
}
