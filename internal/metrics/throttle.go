package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/throttlegate/throttlegate/internal/core/throttle"
	"github.com/throttlegate/throttlegate/internal/observability"
)

// Throttle metric names emitted through the gofulmen telemetry system.
const (
	ThrottleDecisionsTotal   = "throttle_decisions_total"
	ThrottleResolutionsTotal = "throttle_resolutions_total"
	ThrottleResolutionMillis = "throttle_resolution_duration_ms"
)

// ThrottleRecorder implements throttle.Recorder.
//
// Collectors live on a private registry served by Handler (mounted at
// /metrics/throttle); counters are mirrored to the gofulmen telemetry system
// when it is initialized so they also reach the main exporter.
//
// Metrics:
//   - <ns>_throttle_decisions_total{path,result}
//   - <ns>_throttle_resolutions_total{outcome}
//   - <ns>_throttle_resolution_duration_seconds{outcome}
//   - <ns>_throttle_cached_identities
//   - <ns>_throttle_pending_resolutions
type ThrottleRecorder struct {
	registry *prometheus.Registry

	decisions         *prometheus.CounterVec
	resolutions       *prometheus.CounterVec
	resolutionSeconds *prometheus.HistogramVec
	cached            prometheus.Gauge
	pending           prometheus.Gauge
}

// NewThrottleRecorder creates and registers the throttle collectors.
func NewThrottleRecorder(namespace string) *ThrottleRecorder {
	if namespace == "" {
		namespace = "throttlegate"
	}

	r := &ThrottleRecorder{
		registry: prometheus.NewRegistry(),

		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "throttle",
				Name:      "decisions_total",
				Help:      "Admission decisions by budget path and result",
			},
			[]string{"path", "result"},
		),

		resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "throttle",
				Name:      "resolutions_total",
				Help:      "Background limit resolutions by outcome",
			},
			[]string{"outcome"},
		),

		// Fetches run from milliseconds (cache/redis) to several seconds
		// (simulated or remote SLA service).
		resolutionSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "throttle",
				Name:      "resolution_duration_seconds",
				Help:      "Time from dispatch to completion of a limit resolution",
				Buckets:   []float64{0.005, 0.025, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"outcome"},
		),

		cached: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "throttle",
			Name:      "cached_identities",
			Help:      "Identities with an installed per-second counter",
		}),

		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "throttle",
			Name:      "pending_resolutions",
			Help:      "Limit resolutions currently in flight",
		}),
	}

	r.registry.MustRegister(r.decisions, r.resolutions, r.resolutionSeconds, r.cached, r.pending)
	return r
}

// RecordDecision counts one admission decision.
func (r *ThrottleRecorder) RecordDecision(path throttle.Path, allowed bool) {
	result := "allowed"
	if !allowed {
		result = "rejected"
	}
	r.decisions.WithLabelValues(string(path), result).Inc()

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			ThrottleDecisionsTotal,
			1,
			map[string]string{
				"path":   string(path),
				"result": result,
			},
		)
	}
}

// RecordResolution counts a finished (or undispatched) limit resolution.
func (r *ThrottleRecorder) RecordResolution(outcome throttle.Outcome, elapsed time.Duration) {
	r.resolutions.WithLabelValues(string(outcome)).Inc()
	if outcome != throttle.OutcomeRejected {
		r.resolutionSeconds.WithLabelValues(string(outcome)).Observe(elapsed.Seconds())
	}

	if observability.TelemetrySystem != nil {
		labels := map[string]string{"outcome": string(outcome)}
		_ = observability.TelemetrySystem.Counter(ThrottleResolutionsTotal, 1, labels)
		if outcome != throttle.OutcomeRejected {
			_ = observability.TelemetrySystem.Histogram(ThrottleResolutionMillis, elapsed, labels)
		}
	}
}

func (r *ThrottleRecorder) SetCachedIdentities(count int) {
	r.cached.Set(float64(count))
}

func (r *ThrottleRecorder) SetPendingResolutions(count int) {
	r.pending.Set(float64(count))
}

// Registry exposes the private registry.
func (r *ThrottleRecorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in Prometheus text format.
func (r *ThrottleRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
