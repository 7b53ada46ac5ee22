package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/ratelimit"
)

// RateLimit returns middleware that allows each client address limit
// requests per limiter window. scope separates budgets that share one
// limiter. A non-positive limit disables the check. m may be nil.
func RateLimit(limiter *ratelimit.Limiter, m *metrics.Metrics, scope string, limit int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ok, wait := limiter.Take(scope+":"+clientAddr(r), limit); !ok {
				if m != nil {
					m.RateLimitedTotal.WithLabelValues(scope).Inc()
				}
				w.Header().Set("Retry-After", strconv.Itoa(max(1, int(math.Ceil(wait.Seconds())))))
				writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
