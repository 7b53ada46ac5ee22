// Package metrics defines the Prometheus collectors shared by the engine,
// the result cache and the HTTP service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bm25"

var (
	latencyBuckets = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}
	httpBuckets    = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
)

type Metrics struct {
	// HTTP surface.
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	RateLimitedTotal     *prometheus.CounterVec

	// Queries.
	SearchQueriesTotal *prometheus.CounterVec
	SearchLatency      *prometheus.HistogramVec
	SearchResultsCount prometheus.Histogram

	// Result cache.
	CacheHitsTotal      prometheus.Counter
	CacheMissesTotal    prometheus.Counter
	CircuitBreakerState *prometheus.GaugeVec

	// Index lifecycle.
	DocsIndexedTotal   prometheus.Counter
	IndexBuildsTotal   *prometheus.CounterVec
	IndexBuildDuration prometheus.Histogram
	IndexLoadsTotal    *prometheus.CounterVec
	IndexDocuments     prometheus.Gauge
	IndexTerms         prometheus.Gauge
}

// New creates every collector on reg, or on prometheus.DefaultRegisterer
// when reg is nil. Registering twice on one registry panics, so tests use
// a fresh prometheus.NewRegistry() each.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: httpBuckets,
		}, []string{"method", "path"}),
		HTTPRequestsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "HTTP requests currently being served.",
		}),
		RateLimitedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-client rate limit, by scope.",
		}, []string{"scope"}),

		SearchQueriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_queries_total",
			Help:      "Search queries by outcome (hit, zero_result, empty_query).",
		}, []string{"result_type"}),
		SearchLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_latency_seconds",
			Help:      "Search latency by cache status (hit, miss, disabled).",
			Buckets:   latencyBuckets,
		}, []string{"cache_status"}),
		SearchResultsCount: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_results_count",
			Help:      "Results returned per search.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
		}),

		CacheHitsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Result cache hits.",
		}),
		CacheMissesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Result cache misses, including backend failures.",
		}),
		CircuitBreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
		}, []string{"name"}),

		DocsIndexedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "docs_indexed_total",
			Help:      "Documents indexed across all builds.",
		}),
		IndexBuildsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_builds_total",
			Help:      "Index builds by status.",
		}, []string{"status"}),
		IndexBuildDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "index_build_duration_seconds",
			Help:      "Wall time of successful and failed builds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		IndexLoadsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_loads_total",
			Help:      "Index file loads and reloads by status.",
		}, []string{"status"}),
		IndexDocuments: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_documents",
			Help:      "Documents in the serving index.",
		}),
		IndexTerms: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_terms",
			Help:      "Distinct terms in the serving index.",
		}),
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor serves g.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
