package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixed(status, message string) CheckFunc {
	return func(ctx context.Context) DependencyStatus {
		return DependencyStatus{Status: status, Message: message}
	}
}

func TestHealthChecker_Check(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(h *HealthChecker)
		status string
	}{
		{
			name:   "no checks",
			setup:  func(h *HealthChecker) {},
			status: StatusHealthy,
		},
		{
			name: "all healthy",
			setup: func(h *HealthChecker) {
				h.Register("sync_pool", true, fixed(StatusHealthy, ""))
				h.Register("async_pool", true, fixed(StatusHealthy, ""))
			},
			status: StatusHealthy,
		},
		{
			name: "non-critical unhealthy degrades",
			setup: func(h *HealthChecker) {
				h.Register("sync_pool", true, fixed(StatusHealthy, ""))
				h.Register("queues", false, fixed(StatusUnhealthy, "backlog"))
			},
			status: StatusDegraded,
		},
		{
			name: "degraded check degrades",
			setup: func(h *HealthChecker) {
				h.Register("sync_pool", true, fixed(StatusDegraded, "saturated"))
			},
			status: StatusDegraded,
		},
		{
			name: "critical unhealthy wins",
			setup: func(h *HealthChecker) {
				h.Register("queues", false, fixed(StatusDegraded, ""))
				h.Register("engine", true, fixed(StatusUnhealthy, "closed"))
			},
			status: StatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthChecker("test")
			tt.setup(h)

			status := h.Check(context.Background())
			assert.Equal(t, tt.status, status.Status)
			assert.Equal(t, "test", status.Version)
			for _, dep := range status.Dependencies {
				assert.False(t, dep.Timestamp.IsZero())
			}
		})
	}
}

func TestHealthRoutes(t *testing.T) {
	h := NewHealthChecker("test")
	h.Register("engine", true, fixed(StatusUnhealthy, "closed"))

	router := mux.NewRouter()
	RegisterHealthRoutes(router, h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.Equal(t, "closed", status.Dependencies["engine"].Message)
}
