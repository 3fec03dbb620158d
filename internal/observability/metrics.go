package observability

import (
	"fmt"
	"net"
	"strconv"

	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/fulmenhq/gofulmen/telemetry/exporters"
)

// DefaultMetricsPort is used when the exporter port is unknown.
const DefaultMetricsPort = 9090

var (
	// TelemetrySystem is the global telemetry system. Nil until InitMetrics
	// succeeds; every emitter checks for that.
	TelemetrySystem *telemetry.System

	// PrometheusExporter serves the gofulmen metrics.
	PrometheusExporter *exporters.PrometheusExporter

	metricsPort int
)

// InitMetrics starts the Prometheus exporter on port (0 picks a free port)
// and installs a telemetry system that emits to it.
func InitMetrics(serviceName string, port int, namespace ...string) error {
	if port < 0 {
		port = 0
	}
	metricsPort = port

	metricNamespace := serviceName
	if len(namespace) > 0 && namespace[0] != "" {
		metricNamespace = namespace[0]
	}

	exporter := exporters.NewPrometheusExporter(metricNamespace, fmt.Sprintf(":%d", port))
	if err := exporter.Start(); err != nil {
		return fmt.Errorf("start prometheus exporter: %w", err)
	}

	if bound, err := resolvePort(exporter.GetAddr()); err == nil {
		metricsPort = bound
	} else if port == 0 {
		metricsPort = DefaultMetricsPort
	}

	sys, err := telemetry.NewSystem(&telemetry.Config{
		Enabled: true,
		Emitter: exporter,
	})
	if err != nil {
		return fmt.Errorf("telemetry system: %w", err)
	}

	PrometheusExporter = exporter
	TelemetrySystem = sys
	return nil
}

// GetMetricsPort returns the port the Prometheus exporter is listening on
func GetMetricsPort() int {
	return metricsPort
}

func resolvePort(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(portStr)
}
