package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/errors"
)

var errBackend = errors.New("backend unavailable")

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(cfg BreakerConfig) (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b := NewBreaker("redis", cfg)
	b.now = clock.now
	return b, clock
}

func TestBreakerTransitions(t *testing.T) {
	var transitions []State
	b, clock := newTestBreaker(BreakerConfig{
		Threshold:     2,
		Cooldown:      time.Second,
		OnStateChange: func(_ string, to State) { transitions = append(transitions, to) },
	})
	fail := func() error { return errBackend }
	ok := func() error { return nil }

	assert.ErrorIs(t, b.Do(fail), errBackend)
	assert.Equal(t, StateClosed, b.State())
	assert.ErrorIs(t, b.Do(fail), errBackend)
	assert.Equal(t, StateOpen, b.State())

	called := false
	err := b.Do(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	clock.advance(time.Second)
	require.NoError(t, b.Do(ok))
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	b, clock := newTestBreaker(BreakerConfig{Threshold: 1, Cooldown: time.Second})
	_ = b.Do(func() error { return errBackend })
	clock.advance(2 * time.Second)
	_ = b.Do(func() error { return errBackend })
	assert.Equal(t, StateOpen, b.State())

	// The cool-down restarts from the failed probe.
	clock.advance(500 * time.Millisecond)
	assert.ErrorIs(t, b.Do(func() error { return nil }), ErrCircuitOpen)

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerNeutralErrors(t *testing.T) {
	errMiss := errors.New("miss")
	b, _ := newTestBreaker(BreakerConfig{
		Threshold: 1,
		Neutral:   func(err error) bool { return errors.Is(err, errMiss) },
	})
	for range 3 {
		v, err := Call(b, func() ([]byte, error) { return nil, errMiss })
		assert.Nil(t, v)
		assert.ErrorIs(t, err, errMiss)
	}
	assert.Equal(t, StateClosed, b.State())

	v, err := Call(b, func() (string, error) { return "hit", nil })
	require.NoError(t, err)
	assert.Equal(t, "hit", v)
}

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Initial: 100 * time.Millisecond, Max: time.Second, Factor: 2, Jitter: 0.1}
	for attempt, want := range map[int]time.Duration{1: 100 * time.Millisecond, 2: 200 * time.Millisecond, 3: 400 * time.Millisecond} {
		d := b.Delay(attempt)
		assert.InDelta(t, float64(want), float64(d), float64(want)/10+1, "attempt %d", attempt)
	}
	assert.Equal(t, time.Second, b.Delay(10))
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), "connect", Backoff{Attempts: 4, Initial: time.Millisecond}, func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errBackend
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryGivesUp(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), "connect", Backoff{Attempts: 2, Initial: time.Millisecond}, func(context.Context) error {
		attempts++
		return errBackend
	})
	assert.ErrorIs(t, err, errBackend)
	assert.Equal(t, 2, attempts)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), "query", Backoff{
		Attempts:  5,
		Initial:   time.Millisecond,
		Retryable: func(err error) bool { return !errors.Is(err, apperrors.ErrInvalidInput) },
	}, func(context.Context) error {
		attempts++
		return apperrors.ErrInvalidInput
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Equal(t, 1, attempts)
}

func TestRetryHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, "connect", Backoff{Attempts: 3, Initial: time.Second}, func(context.Context) error {
		return errBackend
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithTimeout(t *testing.T) {
	err := WithTimeout(context.Background(), 10*time.Millisecond, "reload", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	err = WithTimeout(context.Background(), time.Second, "reload", func(context.Context) error { return errBackend })
	assert.ErrorIs(t, err, errBackend)

	err = WithTimeout(context.Background(), 0, "reload", func(context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestWithTimeoutWaitsForOutcome(t *testing.T) {
	finished := false
	err := WithTimeout(context.Background(), 5*time.Millisecond, "reload", func(context.Context) error {
		time.Sleep(30 * time.Millisecond)
		finished = true
		return nil
	})
	assert.NoError(t, err, "a late success is still a success")
	assert.True(t, finished)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = WithTimeout(ctx, time.Second, "reload", func(ctx context.Context) error { return ctx.Err() })
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, apperrors.ErrTimeout)
}
