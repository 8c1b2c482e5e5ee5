package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agatticelli/wavepick-sync/internal/app"
	"github.com/agatticelli/wavepick-sync/internal/platform/config"
	"github.com/agatticelli/wavepick-sync/internal/platform/observability"
	"github.com/agatticelli/wavepick-sync/internal/skuvault"
)

// unhealthyAfter is the number of consecutive vendor failures /healthz tolerates
const unhealthyAfter = 5

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	once := flag.Bool("once", false, "run a single sync pass and exit")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Println("Loading configuration...")
	cfg := config.MustLoad(*configPath)

	logger := observability.NewLogger(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.LogError(ctx, "failed to build application", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		if err := a.Close(shutdownCtx); err != nil {
			logger.LogError(shutdownCtx, "shutdown failed", err)
		}
	}()

	if *once {
		if _, err := a.RunOnce(ctx); err != nil {
			logger.LogError(ctx, "sync failed", err)
			os.Exit(1)
		}
		return
	}

	server := startHTTPServer(cfg.HTTP.Port, a, logger)

	logger.Info("starting wave-pick syncer", "interval", cfg.Sync.Interval)
	runLoop(ctx, a, cfg.Sync.Interval, logger)

	logger.Info("shutdown signal received, gracefully stopping...")
	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.LogError(shutdownCtx, "HTTP server shutdown failed", err)
	}
	logger.Info("application stopped")
}

// runLoop runs a pass immediately and then on every tick until ctx ends
func runLoop(ctx context.Context, a *app.App, interval time.Duration, logger *observability.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := a.RunOnce(ctx); err != nil {
			if errors.Is(err, skuvault.ErrNotAuthenticated) {
				logger.LogWarn(ctx, "no usable token, waiting for login")
			} else if ctx.Err() == nil {
				logger.LogError(ctx, "sync pass failed", err)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// startHTTPServer serves health, readiness and metrics
func startHTTPServer(port int, a *app.App, logger *observability.Logger) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		health := a.Client.Health()
		status := http.StatusOK
		if !health.Healthy(unhealthyAfter) {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]any{
			"vendor":           health,
			"authenticated":    a.Service.Authenticated(),
			"directions_cache": a.Service.DirectionsCacheStats(),
			"preflight_cache":  a.Client.PreflightStats(),
			"publisher":        a.Publisher.CircuitBreakerState(),
		})
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if !a.Service.Authenticated() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unauthenticated"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	mux.Handle("/metrics", a.Metrics.Handler())

	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", "address", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.LogError(context.Background(), "HTTP server error", err)
		}
	}()
	return server
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
