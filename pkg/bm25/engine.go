// Package bm25 is an in-memory BM25 search engine for mixed Chinese and
// Latin text.
//
// An Engine indexes a corpus with Build, answers Search and Scores, and
// persists the index with Save and Load. The active index is an immutable
// snapshot published with a single atomic store, so queries may run
// concurrently with each other and with Build or Reload; every query sees
// either the old index or the new one, never a mix.
package bm25

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bm25-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/bm25-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/bm25-search/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/metrics"
)

type Engine struct {
	segmenter tokenizer.Segmenter
	workers   int
	metrics   *metrics.Metrics
	logger    *slog.Logger

	// writeMu serializes Build and Reload and guards params.
	writeMu sync.Mutex
	params  Params
	current atomic.Pointer[index.Snapshot]
}

// New returns an engine holding an empty index. Invalid params are rejected
// with ErrInvalidParams.
func New(params Params, opts ...Option) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	o := collectOptions(opts)
	if o.segmenter == nil {
		mixed, err := tokenizer.NewMixed()
		if err != nil {
			return nil, err
		}
		o.segmenter = mixed
	}
	e := newEngine(params, o)

	empty, err := index.Build(nil, nil, e.buildOptions(params))
	if err != nil {
		return nil, err
	}
	e.publish(empty)
	return e, nil
}

// Load reads an index file written by Save and returns an engine serving
// it. Parameters and the lowercase policy come from the file. Without
// WithSegmenter the engine rebuilds the segmenter the file was indexed
// with; with it, the two must agree.
func Load(path string, opts ...Option) (*Engine, error) {
	e := newEngine(DefaultParams(), collectOptions(opts))

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	start := time.Now()
	snap, err := e.readIndex(path)
	if err != nil {
		return nil, err
	}
	if e.segmenter == nil {
		seg, err := tokenizer.ForName(snap.SegmenterName())
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v; load it with WithSegmenter", apperrors.ErrInvalidInput, path, err)
		}
		e.segmenter = seg
	}
	if err := e.install(context.Background(), path, snap, start); err != nil {
		return nil, err
	}
	return e, nil
}

func newEngine(params Params, o options) *Engine {
	return &Engine{
		segmenter: o.segmenter,
		workers:   o.workers,
		metrics:   o.metrics,
		logger:    o.logger,
		params:    params,
	}
}

// Build replaces the index with one built from docs. ids may be nil, in
// which case a document's position becomes its identifier; otherwise it
// must have exactly one entry per document or ErrLengthMismatch is
// returned. On error the previous index stays active.
func (e *Engine) Build(docs []string, ids []ID) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	start := time.Now()
	snap, err := index.Build(docs, ids, e.buildOptions(e.params))
	if err != nil {
		e.observeBuild("failure", 0, time.Since(start))
		e.logger.Warn("index build rejected", "documents", len(docs), "error", err)
		return err
	}
	e.publish(snap)
	e.observeBuild("success", len(docs), time.Since(start))
	e.logger.Info("index built",
		"documents", snap.DocCount(),
		"terms", snap.TermCount(),
		"avg_doc_len", snap.AvgDocLen(),
		"fingerprint", snap.Fingerprint(),
		"duration", time.Since(start),
	)
	return nil
}

// Save writes the active index to path atomically.
func (e *Engine) Save(path string) error {
	snap := e.current.Load()
	header, err := segment.Save(path, snap)
	if err != nil {
		e.logger.Error("saving index failed", "path", path, "error", err)
		return err
	}
	e.logger.Info("index saved",
		"path", path,
		"documents", header.DocCount,
		"terms", header.TermCount,
		"payload_bytes", header.PayloadLen,
	)
	return nil
}

// Reload replaces the active index with the one stored at path. The file is
// fully validated before the swap; on error the previous index stays
// active.
func (e *Engine) Reload(path string) error {
	return e.ReloadContext(context.Background(), path)
}

// ReloadContext is Reload bounded by ctx. Reading the file is not
// interruptible, but once ctx is done the loaded index is discarded, so an
// error always means the previous index is still active.
func (e *Engine) ReloadContext(ctx context.Context, path string) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	start := time.Now()
	if err := ctx.Err(); err != nil {
		return err
	}
	snap, err := e.readIndex(path)
	if err != nil {
		return err
	}
	return e.install(ctx, path, snap, start)
}

// readIndex loads and validates path. Callers hold writeMu.
func (e *Engine) readIndex(path string) (*index.Snapshot, error) {
	snap, _, err := segment.Load(path)
	if err != nil {
		e.observeLoad("failure")
		e.logger.Error("loading index failed", "path", path, "error", err)
		return nil, err
	}
	return snap, nil
}

// install publishes snap unless ctx is done or snap was segmented
// differently from this engine. Callers hold writeMu.
func (e *Engine) install(ctx context.Context, path string, snap *index.Snapshot, start time.Time) error {
	if err := e.checkSegmenter(path, snap); err != nil {
		e.observeLoad("failure")
		e.logger.Error("index rejected", "path", path, "error", err)
		return err
	}
	if err := ctx.Err(); err != nil {
		e.observeLoad("failure")
		e.logger.Warn("index load abandoned", "path", path, "error", context.Cause(ctx))
		return fmt.Errorf("index load abandoned: %w", err)
	}

	p := snap.Params()
	e.params = Params{K1: p.K1, B: p.B, Lowercase: snap.Lowercase()}
	e.publish(snap)
	e.observeLoad("success")
	e.logger.Info("index loaded",
		"path", path,
		"documents", snap.DocCount(),
		"terms", snap.TermCount(),
		"segmenter", snap.SegmenterName(),
		"fingerprint", snap.Fingerprint(),
		"duration", time.Since(start),
	)
	return nil
}

// checkSegmenter rejects an index whose terms were produced by another
// segmenter: its queries would no longer match what was indexed. Custom
// segmenters carry no comparable name and are trusted.
func (e *Engine) checkSegmenter(path string, snap *index.Snapshot) error {
	stored, current := snap.SegmenterName(), tokenizer.NameOf(e.segmenter)
	if stored == current || stored == tokenizer.CustomName || current == tokenizer.CustomName {
		return nil
	}
	return apperrors.Formatf("%s was segmented with %q but the engine uses %q", path, stored, current)
}

// Search returns up to topK documents ranked by BM25 score, highest first,
// ties broken by build order. Documents matching no query term are never
// returned. A non-positive topK or a query with no terms yields an empty
// result.
func (e *Engine) Search(query string, topK int) []Result {
	return e.View().Search(query, topK)
}

// Scores returns the BM25 score of every document for query, in build
// order. The result always has one entry per document.
func (e *Engine) Scores(query string) []float64 {
	return e.View().Scores(query)
}

func (e *Engine) Stats() Stats {
	return e.View().Stats()
}

// Params returns the parameters the next Build will use.
func (e *Engine) Params() Params {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return e.params
}

// View pins the active index. Every call on the returned view sees the same
// snapshot, even if the engine is rebuilt in between.
func (e *Engine) View() *View {
	return &View{engine: e, snap: e.current.Load()}
}

func (e *Engine) publish(snap *index.Snapshot) {
	e.current.Store(snap)
	if e.metrics != nil {
		e.metrics.IndexDocuments.Set(float64(snap.DocCount()))
		e.metrics.IndexTerms.Set(float64(snap.TermCount()))
	}
}

func (e *Engine) buildOptions(p Params) index.BuildOptions {
	return index.BuildOptions{
		Params:   p.index(),
		Analyzer: tokenizer.NewAnalyzer(e.segmenter, p.Lowercase),
		Workers:  e.workers,
	}
}

func (e *Engine) observeLoad(status string) {
	if e.metrics != nil {
		e.metrics.IndexLoadsTotal.WithLabelValues(status).Inc()
	}
}

func (e *Engine) observeBuild(status string, docs int, d time.Duration) {
	if e.metrics == nil {
		return
	}
	e.metrics.IndexBuildsTotal.WithLabelValues(status).Inc()
	if status == "success" {
		e.metrics.DocsIndexedTotal.Add(float64(docs))
		e.metrics.IndexBuildDuration.Observe(d.Seconds())
	}
}
