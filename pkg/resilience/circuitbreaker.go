// Package resilience provides the fault-tolerance primitives the service
// wraps its optional backends with: a circuit breaker around the Redis
// result cache, exponential-backoff retry for PostgreSQL and Kafka, and a
// context-based timeout for index reloads.
package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the breaker refuses calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the breaker phase. The numeric values are exported as the
// circuit_breaker_state gauge.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a Breaker. Zero values take the defaults: five
// failures, 30s cool-down, one probe.
type BreakerConfig struct {
	Threshold int
	Cooldown  time.Duration
	Probes    int
	// Neutral marks errors that are answers rather than faults, such as a
	// cache miss. They neither trip nor heal the breaker.
	Neutral func(error) bool
	// OnStateChange runs under the breaker lock after every transition and
	// must not call back into the breaker.
	OnStateChange func(name string, to State)
}

// Breaker stops calling a failing backend after Threshold consecutive
// faults, then lets Probes trial calls through once Cooldown has passed.
type Breaker struct {
	name   string
	cfg    BreakerConfig
	now    func() time.Time
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  int
}

func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 1
	}
	return &Breaker{
		name:   name,
		cfg:    cfg,
		now:    time.Now,
		logger: slog.Default().With("component", "circuit-breaker", "name", name),
	}
}

// Call runs fn through b and returns its result. A refused call returns
// the zero value and an error wrapping ErrCircuitOpen.
func Call[T any](b *Breaker, fn func() (T, error)) (T, error) {
	if err := b.allow(); err != nil {
		var zero T
		return zero, err
	}
	v, err := fn()
	b.record(err)
	return v, err
}

// Do is Call for functions without a result.
func (b *Breaker) Do(fn func() error) error {
	_, err := Call(b, func() (struct{}, error) { return struct{}{}, fn() })
	return err
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset closes the breaker and forgets past failures.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures, b.probing = 0, 0
	b.transition(StateClosed)
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateOpen:
		wait := b.cfg.Cooldown - b.now().Sub(b.openedAt)
		if wait > 0 {
			return fmt.Errorf("%w: %s (retry in %v)", ErrCircuitOpen, b.name, wait.Round(time.Millisecond))
		}
		b.transition(StateHalfOpen)
		b.probing = 1
		b.logger.Info("circuit half-open, probing backend")
	case StateHalfOpen:
		if b.probing >= b.cfg.Probes {
			return fmt.Errorf("%w: %s (probe in flight)", ErrCircuitOpen, b.name)
		}
		b.probing++
	}
	return nil
}

func (b *Breaker) record(err error) {
	if err != nil && b.cfg.Neutral != nil && b.cfg.Neutral(err) {
		err = nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		b.failures = 0
		if b.state == StateHalfOpen {
			b.probing = 0
			b.transition(StateClosed)
			b.logger.Info("circuit closed, backend recovered")
		}
		return
	}
	b.failures++
	switch {
	case b.state == StateHalfOpen:
		b.trip()
		b.logger.Warn("probe failed, circuit re-opened", "error", err)
	case b.state == StateClosed && b.failures >= b.cfg.Threshold:
		b.trip()
		b.logger.Warn("circuit opened", "consecutive_failures", b.failures, "error", err)
	}
}

func (b *Breaker) trip() {
	b.openedAt = b.now()
	b.probing = 0
	b.transition(StateOpen)
}

func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	b.state = to
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.name, to)
	}
}
