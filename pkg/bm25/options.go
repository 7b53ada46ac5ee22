package bm25

import (
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/bm25-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/metrics"
)

// Option configures an Engine.
type Option func(*options)

type options struct {
	segmenter tokenizer.Segmenter
	workers   int
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// WithSegmenter replaces the default mixed Chinese/Latin segmenter. Loading
// an index built with a differently named segmenter fails with ErrFormat.
func WithSegmenter(s tokenizer.Segmenter) Option {
	return func(o *options) {
		o.segmenter = s
	}
}

// WithBuildWorkers bounds the number of documents segmented concurrently
// during Build. Zero or negative means GOMAXPROCS.
func WithBuildWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// collectOptions applies opts. The segmenter stays nil unless given, so
// New and Load can pick their own defaults.
func collectOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.logger = o.logger.With("component", "bm25")
	return o
}
