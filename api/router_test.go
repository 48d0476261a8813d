package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sherwood-quant/core/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{TradingMode: config.ModeDryRun}
}

func TestNewRouter_HealthzReportsStoppedEngine(t *testing.T) {
	router := NewRouter(testConfig(t), nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "dry_run", body["mode"])

	checks, ok := body["checks"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "stopped", checks["trading_engine"])
}

func TestNewRouter_MetricsReportsUptime(t *testing.T) {
	router := NewRouter(testConfig(t), nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "goroutines")
	assert.Contains(t, body, "memory")
	assert.Contains(t, body, "uptime_seconds")
}

func TestNewRouter_UnknownRouteNotFound(t *testing.T) {
	router := NewRouter(testConfig(t), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/strategies", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
