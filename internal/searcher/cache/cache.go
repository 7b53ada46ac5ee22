// Package cache memoises search results per index version. Keys combine the
// index fingerprint with the analysed query terms and the result limit, so
// a rebuilt or reloaded index never serves stale results and queries that
// tokenize identically share an entry.
package cache

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/bm25"
	"github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/resilience"
)

const keyPrefix = "bm25:search:"

type QueryCache struct {
	store   Store
	ttl     time.Duration
	breaker *resilience.Breaker
	metrics *metrics.Metrics
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New wraps store. m may be nil.
func New(store Store, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	c := &QueryCache{
		store:   store,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
	c.breaker = resilience.NewBreaker("query-cache", resilience.BreakerConfig{
		Threshold: 5,
		Cooldown:  30 * time.Second,
		Neutral:   isMiss,
		OnStateChange: func(name string, to resilience.State) {
			if m != nil {
				m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})
	return c
}

// Key builds the cache key for a query against the index identified by
// fingerprint. terms must be the distinct analysed terms in query order.
func Key(fingerprint string, terms []string, limit int) string {
	h := blake3.New()
	h.Write([]byte(strconv.Itoa(limit)))
	for _, t := range terms {
		h.Write([]byte{0})
		h.Write([]byte(t))
	}
	sum := h.Sum(nil)
	return keyPrefix + fingerprint + ":" + hex.EncodeToString(sum[:16])
}

// Get returns the cached results for key. Backend errors count as misses.
func (c *QueryCache) Get(ctx context.Context, key string) ([]bm25.Result, bool) {
	data, err := resilience.Call(c.breaker, func() ([]byte, error) {
		return c.store.Get(ctx, key)
	})
	if err != nil {
		if !isMiss(err) {
			c.logger.Warn("cache get failed", "key", key, "error", err)
		}
		c.recordMiss()
		return nil, false
	}
	var results []bm25.Result
	if err := json.Unmarshal(data, &results); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.recordMiss()
		return nil, false
	}
	c.recordHit()
	c.logger.Debug("cache hit", "key", key)
	return results, true
}

func (c *QueryCache) Set(ctx context.Context, key string, results []bm25.Result) {
	data, err := json.Marshal(results)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Do(func() error {
		return c.store.Set(ctx, key, data, c.ttl)
	})
	if err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns cached results for key or computes, stores and
// returns them. Concurrent misses for the same key share one computation.
// The boolean reports a cache hit. The shared result is stored even if the
// request that started the computation has gone away, since other callers
// are waiting on it.
func (c *QueryCache) GetOrCompute(ctx context.Context, key string, compute func() []bm25.Result) ([]bm25.Result, bool) {
	if results, ok := c.Get(ctx, key); ok {
		return results, true
	}
	val, _, _ := c.group.Do(key, func() (any, error) {
		results := compute()
		c.Set(context.WithoutCancel(ctx), key, results)
		return results, nil
	})
	return val.([]bm25.Result), false
}

// Invalidate drops every cached result, or only those of one index when
// fingerprint is not empty.
func (c *QueryCache) Invalidate(ctx context.Context, fingerprint string) error {
	pattern := keyPrefix + "*"
	if fingerprint != "" {
		pattern = keyPrefix + fingerprint + ":*"
	}
	deleted, err := c.store.FlushByPattern(ctx, pattern)
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "pattern", pattern, "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) recordHit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *QueryCache) recordMiss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}
