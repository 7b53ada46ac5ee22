// Package reloader swaps the searcher's active index for the file on disk
// and drops cached results that belong to the replaced index. It serves
// both the HTTP reload endpoint and Kafka reload notifications.
package reloader

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bm25-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/bm25"
	"github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/resilience"
)

// Notification is published by the build command after it saves an index.
type Notification struct {
	Path        string    `json:"path"`
	Fingerprint string    `json:"fingerprint"`
	Documents   int       `json:"documents"`
	Terms       int       `json:"terms"`
	BuiltAt     time.Time `json:"built_at"`
}

// Engine is the part of *bm25.Engine the reloader drives.
type Engine interface {
	View() *bm25.View
	ReloadContext(ctx context.Context, path string) error
}

// Outcome describes a completed reload.
type Outcome struct {
	Previous  string `json:"previous_fingerprint"`
	Current   string `json:"fingerprint"`
	Documents int    `json:"documents"`
	Terms     int    `json:"terms"`
	Changed   bool   `json:"changed"`
}

type Reloader struct {
	engine  Engine
	cache   *cache.QueryCache
	path    string
	timeout time.Duration
	logger  *slog.Logger
}

// New returns a Reloader that always loads path. qc may be nil when result
// caching is disabled.
func New(engine Engine, qc *cache.QueryCache, path string, timeout time.Duration) *Reloader {
	return &Reloader{
		engine:  engine,
		cache:   qc,
		path:    path,
		timeout: timeout,
		logger:  slog.Default().With("component", "index-reloader"),
	}
}

func (r *Reloader) Path() string {
	return r.path
}

// Reload loads the index file and, when its content differs from the
// active index, invalidates cached results of the previous index. It waits
// for the engine even past the timeout, so an error always means the
// previous index keeps serving.
func (r *Reloader) Reload(ctx context.Context) (Outcome, error) {
	previous := r.engine.View().Fingerprint()

	err := resilience.WithTimeout(ctx, r.timeout, "index reload", func(ctx context.Context) error {
		return r.engine.ReloadContext(ctx, r.path)
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("reloading %s: %w", r.path, err)
	}

	stats := r.engine.View().Stats()
	out := Outcome{
		Previous:  previous,
		Current:   stats.Fingerprint,
		Documents: stats.Documents,
		Terms:     stats.Terms,
		Changed:   stats.Fingerprint != previous,
	}
	if out.Changed && r.cache != nil {
		if err := r.cache.Invalidate(ctx, previous); err != nil {
			// Stale entries are unreachable under the new fingerprint and
			// expire on their own.
			r.logger.Warn("dropping cached results failed", "fingerprint", previous, "error", err)
		}
	}
	r.logger.Info("index reloaded",
		"path", r.path,
		"previous", previous,
		"current", out.Current,
		"documents", out.Documents,
	)
	return out, nil
}

// HandleMessage is a kafka.MessageHandler for reload notifications. A
// notification whose fingerprint is already active is acknowledged without
// touching the file.
func (r *Reloader) HandleMessage(ctx context.Context, key, value []byte) error {
	n, err := kafka.DecodeJSON[Notification](value)
	if err != nil {
		return err
	}
	log := r.logger.With("key", string(key), "notified_fingerprint", n.Fingerprint)

	if n.Fingerprint != "" && n.Fingerprint == r.engine.View().Fingerprint() {
		log.Debug("index already active")
		return nil
	}
	if n.Path != "" && n.Path != r.path {
		log.Warn("notification names a different index file, reloading the configured one",
			"notified_path", n.Path,
			"path", r.path,
		)
	}

	out, err := r.Reload(ctx)
	if err != nil {
		return err
	}
	if n.Fingerprint != "" && out.Current != n.Fingerprint {
		log.Warn("loaded index differs from the notified build", "fingerprint", out.Current)
	}
	return nil
}
