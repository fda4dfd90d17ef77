package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jroosing/chaingate/internal/api/handlers"
	"github.com/jroosing/chaingate/internal/api/models"
	"github.com/jroosing/chaingate/internal/cache"
	"github.com/jroosing/chaingate/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRouter(h *handlers.Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/health", h.Health)
	r.GET("/status", h.Status)
	r.GET("/status/events", h.Events)
	return r
}

func TestHealth(t *testing.T) {
	h := handlers.New(&config.Config{}, nil)
	r := setupTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Greater(t, resp.Timestamp, int64(0))
}

func TestStatus_NoRuntimeComponentsWired(t *testing.T) {
	h := handlers.New(&config.Config{}, nil)
	r := setupTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "chaingate", resp.Service)
	assert.NotEmpty(t, resp.Uptime)
}

func TestStatus_ReportsCacheCounters(t *testing.T) {
	h := handlers.New(&config.Config{}, nil)
	bundle := cache.NewBundle(10, 10, 10)
	bundle.Counters.DegradedHits()
	h.SetCache(bundle)
	r := setupTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.HeadFresh)
	assert.Equal(t, int64(0), resp.Cache.Hits)
}

func TestEvents_NoAuditLog(t *testing.T) {
	h := handlers.New(&config.Config{}, nil)
	r := setupTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/status/events", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.AuditEventsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Events)
}
