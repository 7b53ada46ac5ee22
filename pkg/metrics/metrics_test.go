package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.IndexBuildsTotal.WithLabelValues("success").Inc()
	m.IndexDocuments.Set(42)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexBuildsTotal.WithLabelValues("success")))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.IndexDocuments))

	// A second set on a fresh registry must not panic on duplicate names.
	assert.NotPanics(t, func() { New(prometheus.NewRegistry()) })
	assert.Panics(t, func() { New(reg) })
}

func TestHandlerForExposesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.CacheHitsTotal.Add(3)
	m.RateLimitedTotal.WithLabelValues("reload").Inc()

	rec := httptest.NewRecorder()
	HandlerFor(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "bm25_cache_hits_total 3"))
	assert.True(t, strings.Contains(body, `bm25_rate_limited_total{scope="reload"} 1`))
}
