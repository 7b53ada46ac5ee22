package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bm25-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/bm25-search/internal/searcher/reloader"
	"github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/bm25"
	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/tracing"
)

// Index is the part of *bm25.Engine the handlers read.
type Index interface {
	View() *bm25.View
}

type Limits struct {
	DefaultTopK int
	MaxTopK     int
}

type Handler struct {
	index    Index
	cache    *cache.QueryCache
	reloader *reloader.Reloader
	metrics  *metrics.Metrics
	limits   Limits
	logger   *slog.Logger
}

// New wires the search endpoints. queryCache, rl and m may each be nil.
func New(idx Index, queryCache *cache.QueryCache, rl *reloader.Reloader, m *metrics.Metrics, limits Limits) *Handler {
	if limits.DefaultTopK <= 0 {
		limits.DefaultTopK = bm25.DefaultTopK
	}
	if limits.MaxTopK < limits.DefaultTopK {
		limits.MaxTopK = limits.DefaultTopK
	}
	return &Handler{
		index:    idx,
		cache:    queryCache,
		reloader: rl,
		metrics:  m,
		limits:   limits,
		logger:   slog.Default().With("component", "search-handler"),
	}
}

// Register mounts the query endpoints on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/scores", h.Scores)
	mux.HandleFunc("GET /api/v1/index/stats", h.Stats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
}

// RegisterAdmin mounts the reload endpoint. It is kept apart from the
// query endpoints because a reload may outlast the per-request timeout.
func (h *Handler) RegisterAdmin(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/index/reload", h.Reload)
}

type SearchResponse struct {
	Query       string        `json:"query"`
	Terms       []string      `json:"terms"`
	Limit       int           `json:"limit"`
	Results     []bm25.Result `json:"results"`
	CacheHit    bool          `json:"cache_hit"`
	Fingerprint string        `json:"fingerprint"`
	TookMs      float64       `json:"took_ms"`
}

type ScoresResponse struct {
	Query       string    `json:"query"`
	Scores      []float64 `json:"scores"`
	Fingerprint string    `json:"fingerprint"`
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query, err := queryParam(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	limit, err := h.limitParam(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	ctx, span := tracing.Start(ctx, "search", middleware.GetRequestID(ctx))
	defer func() {
		span.End()
		span.Log(ctx, log, slog.LevelDebug)
	}()

	// One view serves the whole request so the cache key and the results
	// always describe the same index.
	view := h.index.View()
	fingerprint := view.Fingerprint()
	_, analyze := tracing.StartChild(ctx, "analyze")
	terms := view.Terms(query)
	analyze.SetAttr("terms", len(terms))
	analyze.End()

	rank := func(ctx context.Context) []bm25.Result {
		_, s := tracing.StartChild(ctx, "rank")
		defer s.End()
		return view.Search(query, limit)
	}

	var results []bm25.Result
	cacheHit := false
	cacheStatus := "disabled"
	if h.cache != nil && len(terms) > 0 {
		cctx, lookup := tracing.StartChild(ctx, "cache")
		key := cache.Key(fingerprint, terms, limit)
		results, cacheHit = h.cache.GetOrCompute(cctx, key, func() []bm25.Result {
			return rank(cctx)
		})
		lookup.SetAttr("hit", cacheHit)
		lookup.End()
		cacheStatus = "miss"
		if cacheHit {
			cacheStatus = "hit"
		}
	} else {
		results = rank(ctx)
	}
	span.SetAttr("returned", len(results))
	if results == nil {
		results = []bm25.Result{}
	}

	took := time.Since(start)
	if h.metrics != nil {
		h.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(took.Seconds())
	}
	log.Info("search completed",
		"query", query,
		"terms", len(terms),
		"returned", len(results),
		"cache_hit", cacheHit,
		"latency_ms", took.Milliseconds(),
	)

	h.writeJSON(w, http.StatusOK, SearchResponse{
		Query:       query,
		Terms:       nonNil(terms),
		Limit:       limit,
		Results:     results,
		CacheHit:    cacheHit,
		Fingerprint: fingerprint,
		TookMs:      float64(took.Microseconds()) / 1000,
	})
}

func (h *Handler) Scores(w http.ResponseWriter, r *http.Request) {
	query, err := queryParam(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	view := h.index.View()
	h.writeJSON(w, http.StatusOK, ScoresResponse{
		Query:       query,
		Scores:      view.Scores(query),
		Fingerprint: view.Fingerprint(),
	})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.index.View().Stats())
}

// Reload re-reads the configured index file. The file location is fixed
// by configuration and cannot be chosen by the caller.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	if h.reloader == nil {
		h.writeError(w, apperrors.New(apperrors.ErrUnavailable, http.StatusServiceUnavailable, "reloading is disabled"))
		return
	}
	log := logger.FromContext(r.Context())
	out, err := h.reloader.Reload(r.Context())
	if err != nil {
		log.Error("index reload failed",
			"path", h.reloader.Path(),
			"error", err,
		)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// writeError answers with the status apperrors assigns to err. AppErrors
// carry their own client-facing message.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	msg := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	h.writeJSON(w, apperrors.HTTPStatusCode(err), map[string]string{"error": msg})
}

func queryParam(r *http.Request) (string, error) {
	if !r.URL.Query().Has("q") {
		return "", apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query parameter 'q' is required")
	}
	return r.URL.Query().Get("q"), nil
}

// limitParam reads the optional limit, clamped to MaxTopK.
func (h *Handler) limitParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return h.limits.DefaultTopK, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "limit must be a positive integer, got %q", raw)
	}
	return min(n, h.limits.MaxTopK), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
