package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/errors"

	"github.com/throttlegate/throttlegate/internal/metrics"
)

// Check results reported per component.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
	StatusTimeout   = "timeout"
)

// Probe budgets.
const (
	aggregateTimeout = 5 * time.Second
	livenessTimeout  = 2 * time.Second
	readinessTimeout = 5 * time.Second
	startupTimeout   = 3 * time.Second
)

// HealthResponse represents the aggregate health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ProbeResponse represents individual probe response
type ProbeResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthChecker is implemented by the engine, the store and the Redis SLA
// backend.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// HealthCheckerFunc adapts a plain function to HealthChecker.
type HealthCheckerFunc func(ctx context.Context) error

// CheckHealth calls f.
func (f HealthCheckerFunc) CheckHealth(ctx context.Context) error {
	return f(ctx)
}

// HealthManager runs registered checkers for the health endpoints.
type HealthManager struct {
	mu       sync.RWMutex
	checkers map[string]HealthChecker
	version  string
}

// NewHealthManager creates a new health manager
func NewHealthManager(version string) *HealthManager {
	return &HealthManager{
		checkers: make(map[string]HealthChecker),
		version:  version,
	}
}

// RegisterChecker adds or replaces the checker stored under name.
func (hm *HealthManager) RegisterChecker(name string, checker HealthChecker) {
	if checker == nil {
		return
	}
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checkers[name] = checker
}

// Checkers lists registered checker names in order.
func (hm *HealthManager) Checkers() []string {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	names := make([]string, 0, len(hm.checkers))
	for name := range hm.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (hm *HealthManager) runHealthChecks(ctx context.Context) map[string]string {
	hm.mu.RLock()
	checkers := make(map[string]HealthChecker, len(hm.checkers))
	for name, checker := range hm.checkers {
		checkers[name] = checker
	}
	hm.mu.RUnlock()

	checks := make(map[string]string, len(checkers))
	for name, checker := range checkers {
		if ctx.Err() != nil {
			checks[name] = StatusTimeout
			continue
		}

		start := time.Now()
		err := checker.CheckHealth(ctx)
		metrics.RecordHealthCheck(name, err == nil, time.Since(start))

		switch {
		case err == nil:
			checks[name] = StatusHealthy
		case ctx.Err() != nil:
			checks[name] = StatusTimeout
		default:
			checks[name] = StatusUnhealthy
		}
	}
	return checks
}

func (hm *HealthManager) determineOverallStatus(checks map[string]string) string {
	degraded := false
	for _, status := range checks {
		switch status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded, StatusTimeout:
			degraded = true
		}
	}
	if degraded {
		return StatusDegraded
	}
	return StatusHealthy
}

// evaluate runs every checker under timeout and, when the result is
// unhealthy, writes the 503 envelope. The caller writes the success body.
func (hm *HealthManager) evaluate(w http.ResponseWriter, r *http.Request, probe string, timeout time.Duration) (string, map[string]string, bool) {
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	checks := hm.runHealthChecks(ctx)
	status := hm.determineOverallStatus(checks)
	if status == StatusUnhealthy {
		message := probe + " probe failed"
		if probe == "" {
			message = "aggregate health check failed"
		}
		envelope := errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", message)
		respondWithError(w, r, enrichHealthEnvelope(envelope, probe, status, checks))
		return status, checks, false
	}
	return status, checks, true
}

// HealthHandler reports every check with the running version.
func (hm *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	status, checks, ok := hm.evaluate(w, r, "", aggregateTimeout)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    status,
		Version:   hm.version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	})
}

// LivenessHandler handles liveness probe requests
func (hm *HealthManager) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	hm.probe(w, r, "live", livenessTimeout)
}

// ReadinessHandler fails while the engine is closed or a backing store is
// unreachable, so load balancers stop routing to this instance.
func (hm *HealthManager) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	hm.probe(w, r, "ready", readinessTimeout)
}

// StartupHandler handles startup probe requests
func (hm *HealthManager) StartupHandler(w http.ResponseWriter, r *http.Request) {
	hm.probe(w, r, "startup", startupTimeout)
}

func (hm *HealthManager) probe(w http.ResponseWriter, r *http.Request, name string, timeout time.Duration) {
	status, _, ok := hm.evaluate(w, r, name, timeout)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ProbeResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
	})
}

func enrichHealthEnvelope(envelope *errors.ErrorEnvelope, probe, status string, checks map[string]string) *errors.ErrorEnvelope {
	if envelope == nil {
		return nil
	}

	details := map[string]interface{}{
		"status": status,
	}
	if len(checks) > 0 {
		details["checks"] = checks
	}
	if probe != "" {
		details["probe"] = probe
	}
	envelope = envelope.WithDetails(details)

	contextData := map[string]interface{}{
		"status": status,
	}
	if probe != "" {
		contextData["probe"] = probe
	}

	var failing []string
	for name, result := range checks {
		if result != StatusHealthy {
			failing = append(failing, name)
		}
	}
	if len(failing) > 0 {
		sort.Strings(failing)
		contextData["unhealthy_checks"] = failing
	}

	envelope, _ = envelope.WithContext(contextData)
	return envelope
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

var (
	globalMu            sync.RWMutex
	globalHealthManager *HealthManager
)

// InitHealthManager installs the process-wide health manager.
func InitHealthManager(version string) *HealthManager {
	hm := NewHealthManager(version)
	globalMu.Lock()
	globalHealthManager = hm
	globalMu.Unlock()
	return hm
}

// GetHealthManager returns the global health manager
func GetHealthManager() *HealthManager {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalHealthManager
}

func withGlobal(probe string, fn func(*HealthManager, http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if hm := GetHealthManager(); hm != nil {
			fn(hm, w, r)
			return
		}
		envelope := errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", "health manager not initialized")
		respondWithError(w, r, enrichHealthEnvelope(envelope, probe, "unknown", nil))
	}
}

// Package-level handlers delegate to the global manager.
var (
	HealthHandler    = withGlobal("aggregate", (*HealthManager).HealthHandler)
	LivenessHandler  = withGlobal("live", (*HealthManager).LivenessHandler)
	ReadinessHandler = withGlobal("ready", (*HealthManager).ReadinessHandler)
	StartupHandler   = withGlobal("startup", (*HealthManager).StartupHandler)
)
