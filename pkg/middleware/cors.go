package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORSConfig controls cross-origin access to the query API.
type CORSConfig struct {
	AllowOrigins []string
	AllowMethods []string
	AllowHeaders []string
	MaxAge       int // seconds
}

// DefaultCORSConfig allows read-only browser access from origins.
func DefaultCORSConfig(origins ...string) CORSConfig {
	return CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodOptions},
		AllowHeaders: []string{"Content-Type", RequestIDHeader},
		MaxAge:       86400,
	}
}

// CORS answers preflight requests and sets cross-origin headers for the
// configured origins. With no origins it does nothing; go-chi/cors would
// otherwise allow every origin.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	if len(cfg.AllowOrigins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowOrigins,
		AllowedMethods: cfg.AllowMethods,
		AllowedHeaders: cfg.AllowHeaders,
		ExposedHeaders: []string{RequestIDHeader},
		MaxAge:         cfg.MaxAge,
	})
}
