// Package ratelimit implements an in-memory token-bucket limiter keyed by
// caller, used to bound query and reload traffic per client.
package ratelimit

import (
	"sync"
	"time"
)

const sweepEvery = 5 * time.Minute

type bucket struct {
	tokens float64
	seen   time.Time
}

// refill tops the bucket up for the time since it was last seen, capped at
// capacity.
func (b *bucket) refill(now time.Time, perSecond, capacity float64) {
	b.tokens = min(capacity, b.tokens+now.Sub(b.seen).Seconds()*perSecond)
	b.seen = now
}

// Limiter hands out limit tokens per window to every key. Buckets refill
// continuously rather than resetting at window boundaries.
type Limiter struct {
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket

	done     chan struct{}
	stopOnce sync.Once
}

// New starts a limiter and its idle-key sweeper. Call Stop when done.
func New(window time.Duration) *Limiter {
	l := &Limiter{
		window:  window,
		now:     time.Now,
		buckets: make(map[string]*bucket),
		done:    make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

// Allow consumes a token for key if one is available.
func (l *Limiter) Allow(key string, limit int) bool {
	ok, _ := l.Take(key, limit)
	return ok
}

// Take consumes a token for key. When none is available it reports how long
// until the next one refills. A non-positive limit always succeeds and
// keeps no state.
func (l *Limiter) Take(key string, limit int) (bool, time.Duration) {
	if limit <= 0 {
		return true, 0
	}
	capacity := float64(limit)
	perSecond := capacity / l.window.Seconds()

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: capacity, seen: now}
		l.buckets[key] = b
	}
	b.refill(now, perSecond, capacity)

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	missing := (1 - b.tokens) / perSecond
	return false, time.Duration(missing * float64(time.Second))
}

// Reset forgets key, giving it a full bucket on its next request.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	delete(l.buckets, key)
	l.mu.Unlock()
}

// Len is the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.done) })
}

func (l *Limiter) sweepLoop() {
	t := time.NewTicker(sweepEvery)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			l.sweep()
		case <-l.done:
			return
		}
	}
}

// sweep drops keys idle for two windows. Their buckets are full again, so
// forgetting them changes nothing.
func (l *Limiter) sweep() {
	cutoff := l.now().Add(-2 * l.window)
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if b.seen.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}
