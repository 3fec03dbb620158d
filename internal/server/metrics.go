package server

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/throttlegate/throttlegate/internal/config"
	apperrors "github.com/throttlegate/throttlegate/internal/errors"
	"github.com/throttlegate/throttlegate/internal/observability"
)

var metricsProxyClient = &http.Client{
	Timeout: 5 * time.Second,
}

// hopHeaders are not forwarded from the exporter response.
var hopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

// metricsTargetPort picks the exporter port: the bound port, then the
// configured one, then the default.
func metricsTargetPort() int {
	if port := observability.GetMetricsPort(); port > 0 {
		return port
	}
	if cfg := config.GetConfig(); cfg != nil && cfg.Metrics.Port > 0 {
		return cfg.Metrics.Port
	}
	return observability.DefaultMetricsPort
}

// MetricsHandler proxies the gofulmen Prometheus exporter so /metrics can be
// scraped on the main listener.
func MetricsHandler(w http.ResponseWriter, r *http.Request) {
	if observability.PrometheusExporter == nil {
		HandleError(w, r, apperrors.NewServiceUnavailableError("Metrics exporter not initialized"))
		return
	}

	metricsURL := fmt.Sprintf("http://127.0.0.1:%d/metrics", metricsTargetPort())
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, metricsURL, nil)
	if err != nil {
		HandleError(w, r, apperrors.WrapInternal(r.Context(), err, "Unable to construct metrics request"))
		return
	}
	if accept := r.Header.Get("Accept"); accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := metricsProxyClient.Do(req)
	if err != nil {
		env := apperrors.WrapServiceUnavailable(r.Context(), err, "Prometheus exporter unavailable")
		env, _ = env.WithContext(map[string]interface{}{"metrics_url": metricsURL})
		HandleError(w, r, env)
		return
	}
	defer func() {
		if err := resp.Body.Close(); err != nil && observability.ServerLogger != nil {
			observability.ServerLogger.Warn("Failed to close metrics response body", zap.Error(err))
		}
	}()

	for key, values := range resp.Header {
		if _, hop := hopHeaders[http.CanonicalHeaderKey(key)]; hop {
			continue
		}
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	if resp.Header.Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	}

	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil && observability.ServerLogger != nil {
		observability.ServerLogger.Warn("Failed to write metrics response", zap.Error(err))
	}
}
