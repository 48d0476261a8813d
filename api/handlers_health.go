// Package api exposes the trading process's own internal admin mux:
// /healthz and /metrics. A REST control surface around
// strategies/backtests/execution/portfolio belongs to an external
// collaborator, out of scope here — this package only answers "is this
// process alive and what is it doing", for a process supervisor or an
// operator's health check to consume.
package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/sherwood-quant/core/config"
	"github.com/sherwood-quant/core/engine"
)

// Handler serves the admin mux. It holds just enough state to answer
// health/metrics: the engine it's reporting on and the config it's
// reporting the trading mode from.
type Handler struct {
	config    *config.Config
	engine    *engine.TradingEngine
	startTime time.Time
}

// NewHandler builds a Handler for the given config and engine. eng may
// be nil before the trading loop has started.
func NewHandler(cfg *config.Config, eng *engine.TradingEngine) *Handler {
	return &Handler{config: cfg, engine: eng, startTime: time.Now()}
}

// HealthHandler reports whether the engine loop is running and which
// trading mode the process is configured for.
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)

	if h.engine != nil && h.engine.IsRunning() {
		checks["trading_engine"] = "running"
	} else {
		checks["trading_engine"] = "stopped"
	}

	status := "ok"
	if checks["trading_engine"] != "running" {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    status,
		"mode":      string(h.config.TradingMode),
		"timestamp": time.Now(),
		"checks":    checks,
	})
}

// MetricsHandler returns basic runtime statistics. This intentionally
// stops short of a Prometheus exposition format — the admin mux backs
// an operator's own health check, not a scrape target feeding a
// dashboard on the (out-of-scope) REST control surface.
func (h *Handler) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	metrics := map[string]interface{}{
		"goroutines": runtime.NumGoroutine(),
		"memory": map[string]uint64{
			"alloc":       m.Alloc,
			"total_alloc": m.TotalAlloc,
			"sys":         m.Sys,
			"num_gc":      uint64(m.NumGC),
		},
		"uptime_seconds": time.Since(h.startTime).Seconds(),
		"timestamp":      time.Now(),
	}

	writeJSON(w, http.StatusOK, metrics)
}

// writeJSON writes v as a JSON body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
