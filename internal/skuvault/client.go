// Package skuvault talks to the SkuVault wave-picking API: a rate-limited,
// retrying HTTP client that negotiates CORS preflight, plus the session and
// directions endpoints built on it.
package skuvault

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/agatticelli/wavepick-sync/internal/auth"
	"github.com/agatticelli/wavepick-sync/internal/platform/cache"
	"github.com/agatticelli/wavepick-sync/internal/platform/observability"
	"github.com/agatticelli/wavepick-sync/internal/platform/resilience"
)

const (
	DefaultBaseURL    = "https://lmdb.skuvault.com"
	DefaultOrigin     = "https://v2.skuvault.com"
	DefaultPartition  = "default"
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultRetryDelay = time.Second

	maxResponseBytes = 16 << 20
	maxErrorBody     = 512
)

// Client is the resilient request pipeline. Every attempt waits on the
// shared rate limiter, negotiates CORS preflight when the target needs it,
// and carries fresh auth headers. Failed attempts (transport error or
// status >= 400) are retried with delay RetryDelay * 2^attempt.
//
// The client reads the credential from the token store on every request
// and never writes to it.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	origin         string
	originHost     string
	userAgent      string
	partition      string
	preflightHosts map[string]bool

	limiter   *resilience.RateLimiter
	preflight *cache.PreflightCache
	tokens    auth.TokenStore
	source    string

	maxRetries int
	retryDelay time.Duration
	maxDelay   time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
	now        func() time.Time

	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  observability.Tracer

	tokenMu   sync.Mutex
	lastToken string

	healthMu sync.RWMutex
	health   Health
}

// ClientConfig holds client configuration
type ClientConfig struct {
	BaseURL   string
	Origin    string
	UserAgent string
	Partition string
	Timeout   time.Duration

	// PreflightHosts lists API hosts that require CORS negotiation. When
	// empty, any host other than Origin's does.
	PreflightHosts []string

	MaxRetries int
	RetryDelay time.Duration
	MaxDelay   time.Duration // 0 = uncapped

	// Tokens is required; Source selects the credential (auth.DefaultSource)
	Tokens auth.TokenStore
	Source string

	RateLimiter *resilience.RateLimiter
	Preflight   *cache.PreflightCache
	HTTPClient  *http.Client

	Logger  *observability.Logger
	Metrics *observability.Metrics
	Tracer  observability.Tracer

	// Sleep replaces the backoff wait. Now replaces the clock used for tid.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

// NewClient creates a client
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if cfg.Origin == "" {
		cfg.Origin = DefaultOrigin
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Mozilla/5.0 (compatible; wavepick-sync)"
	}
	if cfg.Partition == "" {
		cfg.Partition = DefaultPartition
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Source == "" {
		cfg.Source = auth.DefaultSource
	}
	if cfg.RateLimiter == nil {
		cfg.RateLimiter = resilience.NewRateLimiter(0)
	}
	if cfg.Preflight == nil {
		cfg.Preflight = cache.NewPreflightCache(cache.DefaultPreflightCapacity, cache.DefaultPreflightTTL)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNopLogger()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoopTracer()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	originHost := ""
	if u, err := url.Parse(cfg.Origin); err == nil {
		originHost = u.Hostname()
	}

	hosts := make(map[string]bool, len(cfg.PreflightHosts))
	for _, h := range cfg.PreflightHosts {
		hosts[strings.ToLower(h)] = true
	}

	return &Client{
		httpClient:     cfg.HTTPClient,
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		origin:         strings.TrimRight(cfg.Origin, "/"),
		originHost:     originHost,
		userAgent:      cfg.UserAgent,
		partition:      cfg.Partition,
		preflightHosts: hosts,
		limiter:        cfg.RateLimiter,
		preflight:      cfg.Preflight,
		tokens:         cfg.Tokens,
		source:         cfg.Source,
		maxRetries:     cfg.MaxRetries,
		retryDelay:     cfg.RetryDelay,
		maxDelay:       cfg.MaxDelay,
		sleep:          cfg.Sleep,
		now:            cfg.Now,
		logger:         cfg.Logger.Component("skuvault_client"),
		metrics:        cfg.Metrics,
		tracer:         cfg.Tracer,
	}, nil
}

// PostJSON sends payload as JSON to path and returns the raw response body
func (c *Client) PostJSON(ctx context.Context, path string, payload any) ([]byte, error) {
	return c.Do(ctx, http.MethodPost, path, payload)
}

// Do sends one logical request through the pipeline. A nil payload sends no
// body. Failures after the last attempt are returned as *RequestError.
func (c *Client) Do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	op := method + " " + path

	ctx, span := c.tracer.StartSpan(ctx, "skuvault.request",
		observability.WithSpanKind(trace.SpanKindClient),
		observability.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("skuvault.path", path),
		),
	)
	defer span.End()

	cred, err := c.credential(ctx)
	if err != nil {
		span.NoticeError(err)
		return nil, err
	}

	var body []byte
	if payload != nil {
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", op, err)
		}
	}

	target := c.baseURL + path
	attempts := 0
	lastStatus := 0

	retryCfg := resilience.RetryConfig{
		MaxAttempts: c.maxRetries + 1,
		BaseDelay:   c.retryDelay,
		MaxDelay:    c.maxDelay,
		Sleep:       c.sleep,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			c.metrics.RecordRetry(ctx, path)
			c.logger.LogWarn(ctx, "retrying request",
				"op", op,
				"attempt", attempt+1,
				"max_attempts", c.maxRetries+1,
				"delay_ms", delay.Milliseconds(),
				"error", err,
			)
		},
	}
	// Every attempt failure is retried while the caller is still waiting
	retryable := func(error) bool { return ctx.Err() == nil }

	data, err := resilience.RetryIfWithResult(ctx, retryCfg, retryable, func(ctx context.Context) ([]byte, error) {
		attempts++
		data, status, err := c.attempt(ctx, method, target, path, cred.Token, body)
		lastStatus = status
		return data, err
	})
	if err != nil {
		reqErr := &RequestError{Op: op, Attempts: attempts, StatusCode: lastStatus, Err: err}
		span.NoticeError(reqErr)
		c.logger.LogError(ctx, "request failed", reqErr,
			"op", op,
			"attempts", attempts,
			"status", lastStatus,
		)
		return nil, reqErr
	}

	span.SetAttributes(attribute.Int("skuvault.attempts", attempts))
	return data, nil
}

// attempt performs one rate-limited send. status is 0 on transport failure.
func (c *Client) attempt(ctx context.Context, method, target, path, token string, body []byte) ([]byte, int, error) {
	if err := c.limiter.Throttle(ctx); err != nil {
		return nil, 0, fmt.Errorf("rate limiter: %w", err)
	}

	headers := c.requestHeaders(token, c.now(), body != nil)

	if c.needsPreflight(method, target) {
		c.negotiatePreflight(ctx, method, target, headers)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header = headers

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		c.metrics.RecordAPICall(ctx, path, "transport_error", duration)
		c.recordHealth(0, err, duration)
		return nil, 0, fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	status := resp.StatusCode

	if status >= http.StatusBadRequest {
		statusErr := &StatusError{StatusCode: status, Body: truncate(string(data), maxErrorBody)}
		c.metrics.RecordAPICall(ctx, path, strconv.Itoa(status), duration)
		c.recordHealth(status, statusErr, duration)
		return nil, status, statusErr
	}
	if readErr != nil {
		c.metrics.RecordAPICall(ctx, path, "transport_error", duration)
		c.recordHealth(status, readErr, duration)
		return nil, status, fmt.Errorf("read body: %w", readErr)
	}

	c.metrics.RecordAPICall(ctx, path, "success", duration)
	c.recordHealth(status, nil, duration)
	c.logger.LogDebug(ctx, "request completed",
		"method", method,
		"path", path,
		"status", status,
		"duration_ms", duration.Milliseconds(),
	)
	return data, status, nil
}

// credential loads the active credential and clears the preflight cache
// when it differs from the one used last
func (c *Client) credential(ctx context.Context) (*auth.Credential, error) {
	cred, err := c.tokens.Get(ctx, c.source)
	if errors.Is(err, auth.ErrNotFound) {
		return nil, ErrNotAuthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotAuthenticated, err)
	}

	c.tokenMu.Lock()
	changed := cred.Token != c.lastToken
	c.lastToken = cred.Token
	c.tokenMu.Unlock()

	if changed {
		c.InvalidatePreflight(ctx, "credential_changed")
	}
	return cred, nil
}

// InvalidatePreflight forgets every preflight outcome
func (c *Client) InvalidatePreflight(ctx context.Context, reason string) {
	cleared := c.preflight.Stats().Count
	c.preflight.InvalidateAll()
	if cleared > 0 {
		c.logger.LogInfo(ctx, "preflight cache invalidated", "reason", reason, "cleared_entries", cleared)
	}
}

// ForgetCredential drops the remembered token so the next request counts
// as a credential change
func (c *Client) ForgetCredential() {
	c.tokenMu.Lock()
	c.lastToken = ""
	c.tokenMu.Unlock()
}

func (c *Client) needsPreflight(method, target string) bool {
	if method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions {
		return false
	}
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if len(c.preflightHosts) > 0 {
		return c.preflightHosts[host]
	}
	return c.originHost != "" && host != c.originHost
}

// negotiatePreflight makes sure a preflight outcome is cached for target.
// The outcome is informational: a failure is logged and the request is
// still sent. Transport errors are not cached.
func (c *Client) negotiatePreflight(ctx context.Context, method, target string, headers http.Header) {
	if ok, found := c.preflight.Lookup(target, headers); found {
		c.metrics.RecordPreflight(ctx, "hit")
		if !ok {
			c.logger.LogDebug(ctx, "cached preflight failure", "url", target)
		}
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodOptions, target, nil)
	if err != nil {
		c.logger.LogWarn(ctx, "preflight build failed", "url", target, "error", err)
		return
	}
	req.Header = c.preflightHeaders(method, headers)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordPreflight(ctx, "error")
		c.logger.LogWarn(ctx, "preflight request failed", "url", target, "error", err)
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()

	succeeded := resp.StatusCode >= 200 && resp.StatusCode < 300
	c.preflight.Store(target, headers, succeeded)

	if succeeded {
		c.metrics.RecordPreflight(ctx, "success")
		c.logger.LogDebug(ctx, "preflight negotiated", "url", target, "cache_size", c.preflight.Stats().Count)
		return
	}
	c.metrics.RecordPreflight(ctx, "failure")
	c.logger.LogWarn(ctx, "preflight rejected", "url", target, "status", resp.StatusCode)
}

// PreflightStats reports preflight cache occupancy
func (c *Client) PreflightStats() cache.Stats {
	return c.preflight.Stats()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
