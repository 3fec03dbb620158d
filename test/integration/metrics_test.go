package integration

import (
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/throttlegate/throttlegate/internal/observability"
	"github.com/throttlegate/throttlegate/internal/server"
)

// cleanupMetrics tears down global telemetry state so each test starts clean.
// This matters in sandboxes where lingering exporters can block future binds.
func cleanupMetrics(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		if observability.PrometheusExporter != nil {
			_ = observability.PrometheusExporter.Stop()
			observability.PrometheusExporter = nil
		}
		observability.TelemetrySystem = nil
	})
}

// isPermissionError normalizes OS-specific permission errors (macOS/Linux/BSD)
// so we can gracefully skip when loopback sockets are blocked.
func isPermissionError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EACCES) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{"permission denied", "operation not permitted", "not permitted"} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}

	return false
}

// initMetricsOrSkip attempts to start the metrics exporter; if the environment
// forbids network binds we skip instead of failing the entire suite.
func initMetricsOrSkip(t *testing.T) {
	t.Helper()

	if err := observability.InitMetrics("test", 0, "test"); err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping metrics tests due to sandbox permissions: %v", err)
		}
		require.NoError(t, err)
	}

	cleanupMetrics(t)
}

// newTestServer binds to IPv4 loopback explicitly (avoiding IPv6-only defaults)
// and skips when the sandbox refuses to open sockets.
func newTestServer(t *testing.T, opts ...server.Option) (*httptest.Server, *http.Client) {
	t.Helper()
	srv := server.New("127.0.0.1", 0, opts...)

	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping metrics server setup: %v", err)
		}
		require.NoError(t, err)
	}

	ts := &httptest.Server{
		Listener: listener,
		Config:   &http.Server{Handler: srv.Handler()},
	}
	ts.Start()
	t.Cleanup(ts.Close)
	return ts, ts.Client()
}

// scrapeMetrics fetches the exporter output through the server's proxy.
func scrapeMetrics(t *testing.T, client *http.Client, url string) (int, string, string) {
	t.Helper()
	resp, err := client.Get(url + "/metrics")
	require.NoError(t, err)
	body, readErr := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, readErr)
	return resp.StatusCode, resp.Header.Get("Content-Type"), string(body)
}

func TestMetricsEndpoint_ThrottledGreetingsByRoute(t *testing.T) {
	observability.InitCLILogger("test", false)
	initMetricsOrSkip(t)

	url, client, _ := newAdmissionServer(t, 2, 0)

	const numRequests = 40
	const numWorkers = 8

	requests := make(chan int, numRequests)
	for i := 0; i < numRequests; i++ {
		requests <- i
	}
	close(requests)

	var mu sync.Mutex
	codes := make(map[int]int)
	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer wg.Done()
			for range requests {
				code := greet(t, client, url, "")
				mu.Lock()
				codes[code]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Greater(t, codes[http.StatusTooManyRequests], 0, "guest budget of 2 should throttle a burst of %d", numRequests)
	require.Greater(t, codes[http.StatusOK], 0)
	require.Equal(t, http.StatusUnauthorized, greet(t, client, url, "stolen"))

	status, _, body := scrapeMetrics(t, client, url)
	require.Equal(t, http.StatusOK, status)

	assert.Contains(t, body, `test_http_requests_total{endpoint="/greetings",method="GET",status="200"}`)
	assert.Contains(t, body, `test_http_requests_total{endpoint="/greetings",method="GET",status="429"}`)
	assert.Contains(t, body, `test_http_requests_total{endpoint="/greetings",method="GET",status="401"}`)
	assert.Contains(t, body, `test_http_errors_total{endpoint="/greetings",error_type="client_error",method="GET",status="429"}`)
	assert.Contains(t, body, "test_http_request_duration_ms")
	assert.NotContains(t, body, `endpoint="/unknown"`)
}

func TestMetricsEndpoint_PrometheusFormat(t *testing.T) {
	observability.InitCLILogger("test", false)
	initMetricsOrSkip(t)

	url, client, _ := newAdmissionServer(t, 1, 0)
	require.Equal(t, http.StatusOK, greet(t, client, url, "token2"))

	status, contentType, body := scrapeMetrics(t, client, url)
	require.Equal(t, http.StatusOK, status)
	assert.True(t,
		contentType == "text/plain; version=0.0.4" ||
			contentType == "text/plain; version=0.0.4; charset=utf-8",
		"Expected Prometheus content type, got: %s", contentType)

	metricLines := 0
	for _, line := range strings.Split(strings.TrimSpace(body), "\n") {
		if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			continue
		}
		metricLines++
		if strings.HasPrefix(line, "test_http_requests_total{") {
			assert.GreaterOrEqual(t, len(strings.Fields(line)), 2, "sample line without a value: %q", line)
		}
	}
	assert.Greater(t, metricLines, 0, "Should have actual metric values")
}

func TestMetricsEndpoint_WithTelemetryDisabled(t *testing.T) {
	observability.InitCLILogger("test", false)

	originalExporter := observability.PrometheusExporter
	originalTelemetry := observability.TelemetrySystem
	observability.PrometheusExporter = nil
	observability.TelemetrySystem = nil
	t.Cleanup(func() {
		observability.PrometheusExporter = originalExporter
		observability.TelemetrySystem = originalTelemetry
	})

	originalEnabled := os.Getenv("THROTTLEGATE_METRICS_ENABLED")
	_ = os.Setenv("THROTTLEGATE_METRICS_ENABLED", "false")
	t.Cleanup(func() {
		if originalEnabled != "" {
			_ = os.Setenv("THROTTLEGATE_METRICS_ENABLED", originalEnabled)
		} else {
			_ = os.Unsetenv("THROTTLEGATE_METRICS_ENABLED")
		}
	})

	url, client, _ := newAdmissionServer(t, 1, 0)

	// Admission keeps working without telemetry.
	codes := []int{greet(t, client, url, ""), greet(t, client, url, ""), greet(t, client, url, "")}
	assert.Contains(t, codes, http.StatusTooManyRequests)

	status, _, _ := scrapeMetrics(t, client, url)
	assert.Equal(t, http.StatusServiceUnavailable, status)
}
