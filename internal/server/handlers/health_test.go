package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChecker struct {
	err error
}

func (s stubChecker) CheckHealth(ctx context.Context) error {
	return s.err
}

type errorBody struct {
	Error struct {
		Code    string                 `json:"code"`
		Message string                 `json:"message"`
		Details map[string]interface{} `json:"details"`
	} `json:"error"`
}

func TestHealthHandlerReturnsHealthyStatus(t *testing.T) {
	manager := NewHealthManager("1.2.3")
	manager.RegisterChecker("throttle_engine", stubChecker{})

	rec := httptest.NewRecorder()
	manager.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.Equal(t, StatusHealthy, resp.Checks["throttle_engine"])
}

func TestHealthHandlerReturnsServiceUnavailableWhenUnhealthy(t *testing.T) {
	manager := NewHealthManager("1.2.3")
	manager.RegisterChecker("store", stubChecker{err: errors.New("down")})
	manager.RegisterChecker("throttle_engine", stubChecker{})

	rec := httptest.NewRecorder()
	manager.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "SERVICE_UNAVAILABLE", resp.Error.Code)

	checks, ok := resp.Error.Details["checks"].(map[string]interface{})
	require.True(t, ok, "expected checks in error details")
	assert.Equal(t, StatusUnhealthy, checks["store"])
	assert.Equal(t, StatusHealthy, checks["throttle_engine"])
}

func TestReadinessProbeFailsWithProbeName(t *testing.T) {
	manager := NewHealthManager("dev")
	manager.RegisterChecker("throttle_engine", HealthCheckerFunc(func(context.Context) error {
		return errors.New("closed")
	}))

	rec := httptest.NewRecorder()
	manager.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ready", resp.Error.Details["probe"])
	assert.Contains(t, resp.Error.Message, "ready")
}

func TestProbesReturnOK(t *testing.T) {
	manager := NewHealthManager("dev")
	manager.RegisterChecker("telemetry", stubChecker{})

	for name, handler := range map[string]http.HandlerFunc{
		"live":    manager.LivenessHandler,
		"ready":   manager.ReadinessHandler,
		"startup": manager.StartupHandler,
	} {
		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest(http.MethodGet, "/health/"+name, nil))
		assert.Equal(t, http.StatusOK, rec.Code, name)

		var resp ProbeResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp), name)
		assert.Equal(t, StatusHealthy, resp.Status, name)
	}
}

func TestCancelledContextReportsTimeout(t *testing.T) {
	manager := NewHealthManager("dev")
	manager.RegisterChecker("store", stubChecker{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	checks := manager.runHealthChecks(ctx)
	assert.Equal(t, StatusTimeout, checks["store"])
	assert.Equal(t, StatusDegraded, manager.determineOverallStatus(checks))
}

func TestDetermineOverallStatusTreatsTimeoutAsDegraded(t *testing.T) {
	manager := NewHealthManager("dev")

	assert.Equal(t, StatusDegraded, manager.determineOverallStatus(map[string]string{"store": StatusTimeout}))
	assert.Equal(t, StatusUnhealthy, manager.determineOverallStatus(map[string]string{
		"store":           StatusTimeout,
		"throttle_engine": StatusUnhealthy,
	}))
	assert.Equal(t, StatusHealthy, manager.determineOverallStatus(nil))
}

func TestRegisterCheckerIgnoresNilAndListsSorted(t *testing.T) {
	manager := NewHealthManager("dev")
	manager.RegisterChecker("telemetry", stubChecker{})
	manager.RegisterChecker("store", stubChecker{})
	manager.RegisterChecker("missing", nil)

	assert.Equal(t, []string{"store", "telemetry"}, manager.Checkers())
}

func TestGlobalHandlersWithoutManager(t *testing.T) {
	globalMu.Lock()
	previous := globalHealthManager
	globalHealthManager = nil
	globalMu.Unlock()
	t.Cleanup(func() {
		globalMu.Lock()
		globalHealthManager = previous
		globalMu.Unlock()
	})

	rec := httptest.NewRecorder()
	HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	InitHealthManager("9.9.9")
	rec = httptest.NewRecorder()
	LivenessHandler(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
