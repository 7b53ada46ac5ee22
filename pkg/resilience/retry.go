package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"
)

// Backoff describes a bounded exponential retry schedule. Zero values take
// the defaults: 3 attempts starting at 100ms, doubling, capped at 10s,
// with 10% jitter.
type Backoff struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
	Factor   float64
	Jitter   float64
	// Retryable reports whether an error is worth another attempt. Nil
	// retries every error.
	Retryable func(error) bool
}

func (b Backoff) normalized() Backoff {
	if b.Attempts <= 0 {
		b.Attempts = 3
	}
	if b.Initial <= 0 {
		b.Initial = 100 * time.Millisecond
	}
	if b.Max <= 0 {
		b.Max = 10 * time.Second
	}
	if b.Factor < 1 {
		b.Factor = 2
	}
	if b.Jitter <= 0 {
		b.Jitter = 0.1
	}
	return b
}

// Delay is the pause after the given failed attempt, counting from 1.
func (b Backoff) Delay(attempt int) time.Duration {
	b = b.normalized()
	d := float64(b.Initial) * math.Pow(b.Factor, float64(attempt-1))
	d += d * b.Jitter * (2*rand.Float64() - 1)
	return time.Duration(min(max(d, float64(b.Initial)/2), float64(b.Max)))
}

// Retry calls fn until it succeeds, the schedule is exhausted, the error is
// not retryable, or ctx ends. The final error wraps fn's last error.
func Retry(ctx context.Context, name string, b Backoff, fn func(ctx context.Context) error) error {
	b = b.normalized()
	logger := slog.Default().With("component", "retry", "operation", name)
	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(ctx); err == nil {
			if attempt > 1 {
				logger.Info("succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		if b.Retryable != nil && !b.Retryable(err) {
			return fmt.Errorf("%s: permanent failure: %w", name, err)
		}
		if attempt == b.Attempts {
			return fmt.Errorf("%s: gave up after %d attempts: %w", name, attempt, err)
		}
		delay := b.Delay(attempt)
		logger.Warn("attempt failed, retrying", "attempt", attempt, "max_attempts", b.Attempts, "error", err, "next_delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: retry aborted: %w", name, ctx.Err())
		}
	}
}
