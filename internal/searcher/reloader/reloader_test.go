package reloader

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/bm25-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/bm25-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/bm25"
	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/errors"
)

func newEngine(t *testing.T) *bm25.Engine {
	t.Helper()
	e, err := bm25.New(bm25.DefaultParams(), bm25.WithSegmenter(tokenizer.Simple{}))
	require.NoError(t, err)
	return e
}

// saveCorpus builds docs with a scratch engine and writes them to path.
func saveCorpus(t *testing.T, path string, docs ...string) string {
	t.Helper()
	e := newEngine(t)
	require.NoError(t, e.Build(docs, nil))
	require.NoError(t, e.Save(path))
	return e.Stats().Fingerprint
}

func TestReloadSwapsIndexAndDropsStaleResults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.bm25")
	engine := newEngine(t)
	require.NoError(t, engine.Build([]string{"alpha beta"}, nil))

	store := cache.NewLocalStore(100, time.Minute)
	qc := cache.New(store, time.Minute, nil)
	ctx := context.Background()
	oldFP := engine.Stats().Fingerprint
	qc.Set(ctx, cache.Key(oldFP, []string{"alpha"}, 10), []bm25.Result{{ID: bm25.IntID(0), Score: 1}})

	newFP := saveCorpus(t, path, "gamma", "gamma delta")
	r := New(engine, qc, path, time.Second)
	out, err := r.Reload(ctx)
	require.NoError(t, err)

	assert.True(t, out.Changed)
	assert.Equal(t, oldFP, out.Previous)
	assert.Equal(t, newFP, out.Current)
	assert.Equal(t, 2, out.Documents)
	assert.Equal(t, 0, store.Len())
	assert.Len(t, engine.Search("gamma", 10), 2)
}

func TestReloadSameFileKeepsCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.bm25")
	saveCorpus(t, path, "alpha", "beta")
	engine, err := bm25.Load(path, bm25.WithSegmenter(tokenizer.Simple{}))
	require.NoError(t, err)

	store := cache.NewLocalStore(100, time.Minute)
	qc := cache.New(store, time.Minute, nil)
	qc.Set(context.Background(), cache.Key(engine.Stats().Fingerprint, []string{"alpha"}, 10), nil)

	out, err := New(engine, qc, path, time.Second).Reload(context.Background())
	require.NoError(t, err)
	assert.False(t, out.Changed)
	assert.Equal(t, 1, store.Len())
}

func TestReloadFailureKeepsServing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.bm25")
	require.NoError(t, os.WriteFile(path, []byte("not an index"), 0o644))
	engine := newEngine(t)
	require.NoError(t, engine.Build([]string{"alpha"}, nil))

	_, err := New(engine, nil, path, time.Second).Reload(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrFormat)
	assert.Len(t, engine.Search("alpha", 10), 1)
}

// slowEngine stalls before every reload.
type slowEngine struct {
	*bm25.Engine
	delay time.Duration
}

func (e slowEngine) ReloadContext(ctx context.Context, path string) error {
	time.Sleep(e.delay)
	return e.Engine.ReloadContext(ctx, path)
}

func TestReloadTimeoutKeepsPreviousIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.bm25")
	saveCorpus(t, path, "gamma", "gamma delta")
	engine := newEngine(t)
	require.NoError(t, engine.Build([]string{"alpha beta"}, nil))
	oldFP := engine.Stats().Fingerprint

	store := cache.NewLocalStore(100, time.Minute)
	qc := cache.New(store, time.Minute, nil)
	qc.Set(context.Background(), cache.Key(oldFP, []string{"alpha"}, 10), []bm25.Result{{ID: bm25.IntID(0), Score: 1}})

	r := New(slowEngine{Engine: engine, delay: 200 * time.Millisecond}, qc, path, 50*time.Millisecond)
	_, err := r.Reload(context.Background())
	require.ErrorIs(t, err, apperrors.ErrTimeout)

	// Nothing finishes the reload behind the caller's back.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, oldFP, engine.Stats().Fingerprint)
	assert.Empty(t, engine.Search("gamma", 10))
	assert.Len(t, engine.Search("alpha", 10), 1)
	assert.Equal(t, 1, store.Len(), "results of the still-active index stay cached")
}

func TestHandleMessage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.bm25")
	fp := saveCorpus(t, path, "alpha", "alpha beta", "gamma")
	engine := newEngine(t)
	r := New(engine, nil, path, time.Second)

	msg, err := json.Marshal(Notification{Path: path, Fingerprint: fp, Documents: 3})
	require.NoError(t, err)
	require.NoError(t, r.HandleMessage(context.Background(), []byte("corpus"), msg))
	assert.Equal(t, fp, engine.Stats().Fingerprint)

	// A second notification for the active index does not read the file.
	require.NoError(t, os.Remove(path))
	require.NoError(t, r.HandleMessage(context.Background(), nil, msg))

	// An unknown fingerprint forces a reload, which now fails.
	msg, err = json.Marshal(Notification{Fingerprint: "other"})
	require.NoError(t, err)
	assert.ErrorIs(t, r.HandleMessage(context.Background(), nil, msg), apperrors.ErrIO)

	assert.Error(t, r.HandleMessage(context.Background(), nil, []byte("{")))
	assert.Equal(t, fp, engine.Stats().Fingerprint)
}
