package integration

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pacerhq/pacer/internal/config"
	"github.com/pacerhq/pacer/internal/core/gate"
	"github.com/pacerhq/pacer/internal/core/pace"
	"github.com/pacerhq/pacer/internal/observability"
	"github.com/pacerhq/pacer/internal/server"
	"github.com/pacerhq/pacer/internal/server/handlers"
)

// sandboxDenied reports socket errors from environments that forbid
// loopback listeners, so those tests skip instead of failing.
func sandboxDenied(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EACCES) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "permission denied") || strings.Contains(msg, "not permitted")
}

func setupLogging(t *testing.T) {
	t.Helper()
	observability.InitCLILogger("test", false)
	observability.InitServerLogger("test", "info", observability.ProfileStructured)
	handlers.InitHealthManager("test")
}

// startMetrics runs a Prometheus exporter on a free port and tears the
// global telemetry state down afterwards.
func startMetrics(t *testing.T) {
	t.Helper()
	if err := observability.InitMetrics("test", 0, "test"); err != nil {
		if sandboxDenied(err) {
			t.Skipf("metrics exporter cannot bind: %v", err)
		}
		require.NoError(t, err)
	}
	t.Cleanup(func() {
		if observability.PrometheusExporter != nil {
			_ = observability.PrometheusExporter.Stop()
			observability.PrometheusExporter = nil
		}
		observability.TelemetrySystem = nil
	})
}

// startRelay serves a relay with a throttle gate "clicks" and a debounce
// gate "search" on IPv4 loopback.
func startRelay(t *testing.T) (string, *http.Client) {
	t.Helper()
	registry, err := gate.NewRegistry([]gate.Spec{
		{Name: "clicks", Kind: pace.KindThrottle, Window: time.Minute},
		{Name: "search", Kind: pace.KindDebounce, Window: 20 * time.Millisecond},
	})
	require.NoError(t, err)
	t.Cleanup(func() { registry.Close(false) })

	srv, err := server.New(config.ServerConfig{Host: "127.0.0.1"}, registry)
	require.NoError(t, err)

	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if sandboxDenied(err) {
			t.Skipf("relay cannot bind: %v", err)
		}
		require.NoError(t, err)
	}
	ts := &httptest.Server{Listener: listener, Config: &http.Server{Handler: srv.Handler()}}
	ts.Start()
	t.Cleanup(ts.Close)
	return ts.URL, ts.Client()
}

func scrape(t *testing.T, client *http.Client, base string) (*http.Response, string) {
	t.Helper()
	resp, err := client.Get(base + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, err)
	return resp, string(body)
}

func TestRelayMetricsUnderLoad(t *testing.T) {
	setupLogging(t)
	startMetrics(t)
	base, client := startRelay(t)

	const requests = 60
	const workers = 8

	jobs := make(chan int, requests)
	for i := range requests {
		jobs <- i
	}
	close(jobs)

	start := time.Now()
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := range jobs {
				var (
					resp *http.Response
					err  error
				)
				switch n % 4 {
				case 0:
					body := fmt.Sprintf(`{"key":"btn-%d","payload":%d}`, n%3, n)
					resp, err = client.Post(base+"/v1/gates/clicks/events", "application/json", strings.NewReader(body))
				case 1:
					body := fmt.Sprintf(`{"key":"user-%d","payload":{"q":"%d"}}`, n%5, n)
					resp, err = client.Post(base+"/v1/gates/search/events", "application/json", strings.NewReader(body))
				case 2:
					resp, err = client.Post(base+"/v1/gates/missing/events", "application/json", strings.NewReader(`{"key":"a"}`))
				default:
					resp, err = client.Get(base + "/health")
				}
				if err == nil {
					_ = resp.Body.Close()
				}
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	// Let the debounce windows expire so the search gate fires.
	time.Sleep(100 * time.Millisecond)

	resp, metrics := scrape(t, client, base)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	for _, name := range []string{
		"test_http_requests_total",
		"test_http_request_duration_ms",
		"test_gate_outcomes_total",
		"test_errors_by_endpoint",
	} {
		assert.Contains(t, metrics, name)
	}
	assert.Less(t, elapsed, 5*time.Second)
	t.Logf("%d requests in %v", requests, elapsed)
}

func TestMetricsUsePrometheusTextFormat(t *testing.T) {
	setupLogging(t)
	startMetrics(t)
	base, client := startRelay(t)

	resp, err := client.Post(base+"/v1/gates/clicks/events", "application/json", strings.NewReader(`{"key":"a"}`))
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, body := scrape(t, client, base)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain; version=0.0.4"),
		"content type %q", resp.Header.Get("Content-Type"))

	samples := 0
	for _, line := range strings.Split(strings.TrimSpace(body), "\n") {
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		samples++
		assert.GreaterOrEqual(t, len(strings.Fields(line)), 2, "malformed sample %q", line)
	}
	assert.Positive(t, samples)
}

func TestMetricsUnavailableWithoutExporter(t *testing.T) {
	setupLogging(t)

	exporter, system := observability.PrometheusExporter, observability.TelemetrySystem
	observability.PrometheusExporter, observability.TelemetrySystem = nil, nil
	t.Cleanup(func() {
		observability.PrometheusExporter, observability.TelemetrySystem = exporter, system
	})
	t.Setenv("PACER_METRICS_ENABLED", "false")

	base, client := startRelay(t)

	resp, err := client.Post(base+"/v1/gates/clicks/events", "application/json", strings.NewReader(`{"key":"a"}`))
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, _ = scrape(t, client, base)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
