package resilience

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"
)

var (
	// ErrRateLimitExceeded is returned when a reservation cannot be made
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// RateLimiter enforces a minimum delay between consecutive outbound requests.
// One limiter is shared by every caller in the process; waiters are served in
// arrival order.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a limiter that lets one request through per
// minDelay. A non-positive delay disables limiting.
func NewRateLimiter(minDelay time.Duration) *RateLimiter {
	limit := rate.Inf
	if minDelay > 0 {
		limit = rate.Every(minDelay)
	}
	return &RateLimiter{limiter: rate.NewLimiter(limit, 1)}
}

// Wait blocks until the minimum delay since the previous request has elapsed
// or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if err := rl.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Join(ErrRateLimitExceeded, err)
	}
	return nil
}

// Throttle suspends the caller until its turn to issue a request
func (rl *RateLimiter) Throttle(ctx context.Context) error {
	return rl.Wait(ctx)
}
