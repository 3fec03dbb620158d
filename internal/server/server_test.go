package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/throttlegate/throttlegate/internal/core/directory"
	"github.com/throttlegate/throttlegate/internal/core/sla"
	"github.com/throttlegate/throttlegate/internal/core/throttle"
	apperrors "github.com/throttlegate/throttlegate/internal/errors"
	"github.com/throttlegate/throttlegate/internal/metrics"
	"github.com/throttlegate/throttlegate/internal/server/handlers"
)

func newTestEngine(t *testing.T, guestRPS int, opts ...throttle.Option) *throttle.Engine {
	t.Helper()
	tokens := directory.NewStatic(map[string]string{
		"token11": "user1",
		"token2":  "user2",
	})
	limits := sla.NewStatic(map[string]int{"user1": 5, "user2": 2}, 0)

	engine, err := throttle.New(throttle.Config{GuestRPS: guestRPS}, tokens, limits, opts...)
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	return engine
}

func get(t *testing.T, h http.Handler, path string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apperrors.HTTPErrorResponse {
	t.Helper()
	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestServerUsesStandardErrorHandlers(t *testing.T) {
	srv := New("127.0.0.1", 0)

	rec := get(t, srv.Handler(), "/does-not-exist", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, rec).Error.Code)

	req := httptest.NewRequest(http.MethodDelete, "/greetings", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "METHOD_NOT_ALLOWED", decodeError(t, rec).Error.Code)
}

func TestGreetingsWithoutAdmissionPassesThrough(t *testing.T) {
	srv := New("127.0.0.1", 0)

	for i := 0; i < 50; i++ {
		rec := get(t, srv.Handler(), "/greetings", map[string]string{"token": "anything"})
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, handlers.Greeting, rec.Body.String())
	}
}

func TestGreetingsGuestBudgetIsEnforced(t *testing.T) {
	srv := New("127.0.0.1", 0, WithAdmission(newTestEngine(t, 2), ""))

	// A calendar-second boundary between calls would refill the budget;
	// require at least one rejection in a tight burst instead of an exact count.
	rejected := 0
	for i := 0; i < 10; i++ {
		rec := get(t, srv.Handler(), "/greetings", nil)
		if rec.Code == http.StatusTooManyRequests {
			rejected++
			assert.Equal(t, "1", rec.Header().Get("Retry-After"))
			assert.Equal(t, apperrors.CodeTooManyRequests, decodeError(t, rec).Error.Code)
			continue
		}
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Greater(t, rejected, 0)
}

func TestGreetingsUnknownTokenIsUnauthorized(t *testing.T) {
	srv := New("127.0.0.1", 0, WithAdmission(newTestEngine(t, 10), ""))

	rec := get(t, srv.Handler(), "/greetings", map[string]string{"token": "stolen"})

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, apperrors.CodeUnknownIdentity, body.Error.Code)
	assert.NotContains(t, rec.Body.String(), "stolen")
}

func TestGreetingsCustomHeaderResolvesIdentity(t *testing.T) {
	engine := newTestEngine(t, 10)
	srv := New("127.0.0.1", 0, WithAdmission(engine, "X-Api-Token"))

	rec := get(t, srv.Handler(), "/greetings", map[string]string{"X-Api-Token": "token2"})
	require.Equal(t, http.StatusOK, rec.Code)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, engine.Tracker().Wait(ctx, "user2"))

	stats := engine.Stats()
	require.Len(t, stats.Identities, 1)
	assert.Equal(t, "user2", stats.Identities[0].Identity)
	assert.Equal(t, 2, stats.Identities[0].Limit)
}

func TestAdminThrottleReportsEngineStats(t *testing.T) {
	engine := newTestEngine(t, 7)
	srv := New("127.0.0.1", 0, WithAdmission(engine, ""), WithAdminToken("s3cret"))

	rec := get(t, srv.Handler(), "/admin/throttle", map[string]string{"Authorization": "Bearer s3cret"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp handlers.ThrottleStatsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Enabled)
	assert.Equal(t, 7, resp.GuestLimit)
}

func TestAdminThrottleRequiresAdminToken(t *testing.T) {
	engine := newTestEngine(t, 7)

	unset := New("127.0.0.1", 0, WithAdmission(engine, ""))
	assert.Equal(t, http.StatusNotFound, get(t, unset.Handler(), "/admin/throttle", nil).Code)

	srv := New("127.0.0.1", 0, WithAdmission(engine, ""), WithAdminToken("s3cret"))
	for name, header := range map[string]map[string]string{
		"missing": nil,
		"wrong":   {"Authorization": "Bearer guess"},
		"guest":   {"token": "token11"},
	} {
		t.Run(name, func(t *testing.T) {
			rec := get(t, srv.Handler(), "/admin/throttle", header)
			require.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
			assert.Equal(t, apperrors.CodeUnauthorized, decodeError(t, rec).Error.Code)
		})
	}
}

func TestThrottleMetricsEndpoint(t *testing.T) {
	recorder := metrics.NewThrottleRecorder("throttlegate")
	engine := newTestEngine(t, 10, throttle.WithRecorder(recorder))
	srv := New("127.0.0.1", 0,
		WithAdmission(engine, ""),
		WithThrottleMetrics(recorder.Handler()))

	require.Equal(t, http.StatusOK, get(t, srv.Handler(), "/greetings", nil).Code)

	rec := get(t, srv.Handler(), "/metrics/throttle", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "throttlegate_throttle_decisions_total"))
}

func TestAdminSignalEndpointRequiresToken(t *testing.T) {
	srv := New("127.0.0.1", 0)
	req := httptest.NewRequest(http.MethodPost, "/admin/signal", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	srv = New("127.0.0.1", 0, WithAdminToken("s3cret"))
	req = httptest.NewRequest(http.MethodPost, "/admin/signal", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.NotEqual(t, http.StatusNotFound, rec.Code)
	assert.NotEqual(t, http.StatusOK, rec.Code)
}

func TestWithTimeoutsKeepsDefaultsForZero(t *testing.T) {
	srv := New("127.0.0.1", 0, WithTimeouts(5*time.Second, 0, 0))
	assert.Equal(t, 5*time.Second, srv.readTimeout)
	assert.Equal(t, DefaultWriteTimeout, srv.writeTimeout)
	assert.Equal(t, DefaultIdleTimeout, srv.idleTimeout)
}

func TestShutdownBeforeStart(t *testing.T) {
	srv := New("127.0.0.1", 0)
	assert.NoError(t, srv.Shutdown(context.Background()))
}

func TestProfilerMountedOnlyWhenEnabled(t *testing.T) {
	off := New("127.0.0.1", 0)
	rec := httptest.NewRecorder()
	off.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	on := New("127.0.0.1", 0, WithProfiler(true))
	rec = httptest.NewRecorder()
	on.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthEndpointsCanBeDisabled(t *testing.T) {
	srv := New("127.0.0.1", 0, WithHealthEndpoints(false))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
