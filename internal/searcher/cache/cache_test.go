package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/bm25"
	"github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/metrics"
)

var sample = []bm25.Result{
	{ID: bm25.IntID(7), Score: 1.2345678901234567},
	{ID: bm25.TextID("doc-b"), Score: 0.5},
}

func TestKey(t *testing.T) {
	a := Key("fp1", []string{"alpha", "beta"}, 10)
	assert.Equal(t, a, Key("fp1", []string{"alpha", "beta"}, 10))
	assert.NotEqual(t, a, Key("fp2", []string{"alpha", "beta"}, 10))
	assert.NotEqual(t, a, Key("fp1", []string{"alpha", "beta"}, 11))
	assert.NotEqual(t, a, Key("fp1", []string{"beta", "alpha"}, 10))
	assert.NotEqual(t, Key("fp1", []string{"ab"}, 1), Key("fp1", []string{"a", "b"}, 1))
	assert.Contains(t, a, "bm25:search:fp1:")
}

func TestGetSetRoundTrip(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	c := New(NewLocalStore(100, time.Minute), time.Minute, m)
	ctx := context.Background()
	key := Key("fp", []string{"q"}, 10)

	_, ok := c.Get(ctx, key)
	assert.False(t, ok)

	c.Set(ctx, key, sample)
	got, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, sample, got)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMissesTotal))
}

func TestGetOrComputeCollapsesConcurrentMisses(t *testing.T) {
	c := New(NewLocalStore(100, time.Minute), time.Minute, nil)
	key := Key("fp", []string{"q"}, 5)

	var calls atomic.Int32
	release := make(chan struct{})
	compute := func() []bm25.Result {
		calls.Add(1)
		<-release
		return sample
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, _ := c.GetOrCompute(context.Background(), key, compute)
			assert.Equal(t, sample, got)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.LessOrEqual(t, calls.Load(), int32(2))

	got, hit := c.GetOrCompute(context.Background(), key, compute)
	assert.True(t, hit)
	assert.Equal(t, sample, got)
}

func TestInvalidate(t *testing.T) {
	store := NewLocalStore(100, time.Minute)
	c := New(store, time.Minute, nil)
	ctx := context.Background()
	c.Set(ctx, Key("old", []string{"a"}, 1), sample)
	c.Set(ctx, Key("old", []string{"b"}, 1), sample)
	c.Set(ctx, Key("new", []string{"a"}, 1), sample)

	require.NoError(t, c.Invalidate(ctx, "old"))
	assert.Equal(t, 1, store.Len())
	_, ok := c.Get(ctx, Key("new", []string{"a"}, 1))
	assert.True(t, ok)

	require.NoError(t, c.Invalidate(ctx, ""))
	assert.Equal(t, 0, store.Len())
}

type brokenStore struct{ calls atomic.Int32 }

func (b *brokenStore) Get(context.Context, string) ([]byte, error) {
	b.calls.Add(1)
	return nil, errors.New("connection reset")
}

func (b *brokenStore) Set(context.Context, string, []byte, time.Duration) error {
	b.calls.Add(1)
	return errors.New("connection reset")
}

func (b *brokenStore) FlushByPattern(context.Context, string) (int64, error) {
	return 0, errors.New("connection reset")
}

func TestBackendFailuresDegradeToCompute(t *testing.T) {
	store := &brokenStore{}
	m := metrics.New(prometheus.NewRegistry())
	c := New(store, time.Minute, m)

	for i := 0; i < 10; i++ {
		got, hit := c.GetOrCompute(context.Background(), Key("fp", []string{"q"}, 1), func() []bm25.Result { return sample })
		assert.False(t, hit)
		assert.Equal(t, sample, got)
	}
	// The breaker opens after five consecutive failures and stops calling
	// the backend.
	assert.Equal(t, int32(5), store.calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("query-cache")))

	assert.Error(t, c.Invalidate(context.Background(), ""))
}

// ctxStore refuses writes on a finished context, as a network store would.
type ctxStore struct{ *LocalStore }

func (s ctxStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.LocalStore.Set(ctx, key, value, ttl)
}

func TestGetOrComputeStoresAfterCallerCancels(t *testing.T) {
	store := ctxStore{NewLocalStore(10, time.Minute)}
	c := New(store, time.Minute, nil)
	key := Key("fp", []string{"q"}, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got, hit := c.GetOrCompute(ctx, key, func() []bm25.Result { return sample })
	assert.False(t, hit)
	assert.Equal(t, sample, got)
	assert.Equal(t, 1, store.Len())

	got, hit = c.GetOrCompute(context.Background(), key, func() []bm25.Result { return nil })
	assert.True(t, hit)
	assert.Equal(t, sample, got)
}

func TestLocalStoreExpires(t *testing.T) {
	s := NewLocalStore(10, 10*time.Millisecond)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "k", []byte("v"), 0))
	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)

	time.Sleep(30 * time.Millisecond)
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}
