// Package api provides the trading process's own internal admin mux:
// /healthz and /metrics, nothing else. A REST control surface around
// strategies, backtests, execution orders, and portfolio belongs to an
// external collaborator and is out of scope for this core — a process
// supervisor or container orchestrator is the only intended caller of
// this mux.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sherwood-quant/core/config"
	"github.com/sherwood-quant/core/engine"
	"github.com/sherwood-quant/core/tracing"
)

// NewRouter builds the admin mux for an SG/OE process.
//
// Args:
//   - cfg: Process configuration (used for the trading mode reported by /healthz)
//   - eng: Trading engine instance this process is running (may be nil)
//
// Returns:
//   - http.Handler: The configured admin mux
func NewRouter(cfg *config.Config, eng *engine.TradingEngine) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(TraceMiddleware)
	r.Use(middleware.RealIP)
	r.Use(zerologLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Second))

	h := NewHandler(cfg, eng)

	r.Get("/healthz", h.HealthHandler)
	r.Get("/metrics", h.MetricsHandler)

	return r
}

// zerologLogger is middleware that logs requests using zerolog.
// Includes the trace_id from context for request correlation.
func zerologLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger := tracing.Logger(r.Context())
		logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request completed")
	})
}
