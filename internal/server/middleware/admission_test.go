package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGate struct {
	mu     sync.Mutex
	tokens []string
	allow  bool
	err    error
}

func (g *fakeGate) IsRequestAllowed(token string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tokens = append(g.tokens, token)
	return g.allow, g.err
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func TestAdmissionAllows(t *testing.T) {
	gate := &fakeGate{allow: true}
	handler := Admission(gate, AdmissionConfig{})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/greetings", nil)
	req.Header.Set("token", " token2 ")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.Equal(t, []string{"token2"}, gate.tokens)
}

func TestAdmissionMissingHeaderIsGuest(t *testing.T) {
	gate := &fakeGate{allow: true}
	handler := Admission(gate, AdmissionConfig{})(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/greetings", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{""}, gate.tokens)
}

func TestAdmissionCustomHeader(t *testing.T) {
	gate := &fakeGate{allow: true}
	handler := Admission(gate, AdmissionConfig{Header: "X-Api-Token"})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/greetings", nil)
	req.Header.Set("X-Api-Token", "token11")
	req.Header.Set("token", "ignored")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, []string{"token11"}, gate.tokens)
}

func TestAdmissionRejectDefaultResponse(t *testing.T) {
	handler := Admission(&fakeGate{allow: false}, AdmissionConfig{})(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/greetings", nil))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "TOO_MANY_REQUESTS", resp.Error.Code)
}

func TestAdmissionRejectUsesCallback(t *testing.T) {
	called := false
	handler := Admission(&fakeGate{allow: false}, AdmissionConfig{
		OnReject: func(w http.ResponseWriter, r *http.Request) {
			called = true
			w.WriteHeader(http.StatusTeapot)
		},
	})(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/greetings", nil))

	assert.True(t, called)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestAdmissionErrorUsesCallback(t *testing.T) {
	boom := errors.New("unknown identity")
	var got error
	handler := Admission(&fakeGate{err: boom}, AdmissionConfig{
		OnError: func(w http.ResponseWriter, r *http.Request, err error) {
			got = err
			w.WriteHeader(http.StatusUnauthorized)
		},
	})(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/greetings", nil))

	assert.ErrorIs(t, got, boom)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdmissionErrorDefaultResponse(t *testing.T) {
	handler := Admission(&fakeGate{err: errors.New("boom")}, AdmissionConfig{})(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/greetings", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAdmissionNilGatePassesThrough(t *testing.T) {
	handler := Admission(nil, AdmissionConfig{})(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/greetings", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRecoveryWritesEnvelope(t *testing.T) {
	setupTelemetry(t)

	handler := RequestID(Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	})))

	req := httptest.NewRequest(http.MethodGet, "/greetings", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "INTERNAL_ERROR", resp.Error.Code)
	assert.Equal(t, "req-1", resp.Error.RequestID)
	assert.NotContains(t, resp.Error.Details, "stack_trace")
}
