package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

// recordSleep captures backoff delays instead of sleeping
func recordSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
}

func TestRetryWithResult_ExponentialDelays(t *testing.T) {
	var delays []time.Duration
	cfg := RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		Sleep:       recordSleep(&delays),
	}

	calls := 0
	_, err := RetryWithResult(context.Background(), cfg, func(ctx context.Context) (string, error) {
		calls++
		return "", errors.New("status 503")
	})

	if !errors.Is(err, ErrMaxAttempts) {
		t.Fatalf("Expected ErrMaxAttempts, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 attempts, got %d", calls)
	}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}
	if len(delays) != len(want) {
		t.Fatalf("Expected delays %v, got %v", want, delays)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("delay %d: expected %v, got %v", i, want[i], delays[i])
		}
	}

	t.Log("✓ backoff doubles per attempt and stops after MaxAttempts")
}

func TestRetryWithResult_SucceedsAfterFailure(t *testing.T) {
	var delays []time.Duration
	var retried []int
	cfg := RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Sleep:       recordSleep(&delays),
		OnRetry: func(attempt int, delay time.Duration, err error) {
			retried = append(retried, attempt)
		},
	}

	calls := 0
	val, err := RetryWithResult(context.Background(), cfg, func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("transient")
		}
		return 7, nil
	})
	if err != nil || val != 7 {
		t.Fatalf("Expected 7, got %d, %v", val, err)
	}
	if len(delays) != 1 || delays[0] != time.Second {
		t.Errorf("Expected one 1s delay, got %v", delays)
	}
	if len(retried) != 1 || retried[0] != 0 {
		t.Errorf("Expected OnRetry for attempt 0, got %v", retried)
	}
}

func TestRetryIf_StopsOnPermanentError(t *testing.T) {
	calls := 0
	err := RetryIf(context.Background(), RetryConfig{MaxAttempts: 5, Sleep: recordSleep(new([]time.Duration))}, IsRetryable, func(ctx context.Context) error {
		calls++
		return Permanent(errors.New("bad request"))
	})
	if err == nil {
		t.Fatal("Expected error")
	}
	if calls != 1 {
		t.Errorf("Expected a single attempt, got %d", calls)
	}
}

func TestRetry_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{
		MaxAttempts: 5,
		BaseDelay:   time.Hour,
	}

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- Retry(ctx, cfg, func(ctx context.Context) error {
			calls++
			return errors.New("down")
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Retry did not return after cancellation")
	}
}

func TestCalculateBackoff(t *testing.T) {
	if d := calculateBackoff(3, time.Second, 0, 0); d != 8*time.Second {
		t.Errorf("Expected uncapped 8s, got %v", d)
	}
	if d := calculateBackoff(10, time.Second, 5*time.Second, 0); d != 5*time.Second {
		t.Errorf("Expected cap at 5s, got %v", d)
	}
	for i := 0; i < 100; i++ {
		d := calculateBackoff(0, time.Second, 0, 0.2)
		if d < 800*time.Millisecond || d > 1200*time.Millisecond {
			t.Fatalf("jittered delay %v out of ±20%% range", d)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("503"), true},
		{"permanent", Permanent(errors.New("400")), false},
		{"circuit open", ErrCircuitOpen, false},
		{"canceled", context.Canceled, false},
	}
	for _, tc := range cases {
		if got := IsRetryable(tc.err); got != tc.want {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}
