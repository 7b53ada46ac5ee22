package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	pkgredis "github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/redis"
)

// ErrMiss is returned by a Store when a key is absent.
var ErrMiss = errors.New("cache miss")

// Store is the byte-oriented backend behind a QueryCache. *redis.Client
// satisfies it; LocalStore is the in-process fallback.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

var _ Store = (*pkgredis.Client)(nil)

func isMiss(err error) bool {
	return errors.Is(err, ErrMiss) || pkgredis.IsNilError(err)
}

// LocalStore is a bounded in-process LRU with a fixed TTL, used when Redis
// is not configured.
type LocalStore struct {
	lru *expirable.LRU[string, []byte]
}

// NewLocalStore keeps at most size entries, each for ttl. The per-call TTL
// passed to Set is ignored.
func NewLocalStore(size int, ttl time.Duration) *LocalStore {
	return &LocalStore{lru: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

func (s *LocalStore) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := s.lru.Get(key)
	if !ok {
		return nil, ErrMiss
	}
	return v, nil
}

func (s *LocalStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.lru.Add(key, value)
	return nil
}

// FlushByPattern supports the trailing-"*" prefix patterns QueryCache uses.
func (s *LocalStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	prefix := strings.TrimSuffix(pattern, "*")
	var deleted int64
	for _, key := range s.lru.Keys() {
		if strings.HasPrefix(key, prefix) && s.lru.Remove(key) {
			deleted++
		}
	}
	return deleted, nil
}

func (s *LocalStore) Len() int {
	return s.lru.Len()
}
