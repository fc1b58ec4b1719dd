package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	c, err := NewCollector(CollectorConfig{
		Namespace:        "scaly",
		Subsystem:        "http",
		DefaultTags:      Tags{"service": "test"},
		EnableLatency:    true,
		EnableThroughput: true,
		EnableQPS:        true,
		EnableErrors:     true,
	})
	if err != nil {
		t.Fatalf("Failed to create collector: %v", err)
	}
	return c
}

// TestCollectorObserve tests the counters for successful and failed requests
func TestCollectorObserve(t *testing.T) {
	c := newTestCollector(t)

	c.Observe("GET", "/users/{id}", 200, 10*time.Millisecond, 128)
	c.Observe("GET", "/users/{id}", 200, 20*time.Millisecond, 64)
	c.Observe("GET", "/users/{id}", 404, time.Millisecond, 0)
	c.Observe("POST", "/users", 0, time.Millisecond, 0)

	if got := testutil.ToFloat64(c.requests.WithLabelValues("GET", "/users/{id}", "200")); got != 2 {
		t.Errorf("Expected 2 requests, got %v", got)
	}
	if got := testutil.ToFloat64(c.throughput.WithLabelValues("GET", "/users/{id}", "200")); got != 192 {
		t.Errorf("Expected 192 bytes, got %v", got)
	}
	if got := testutil.ToFloat64(c.errors.WithLabelValues("GET", "/users/{id}", "404")); got != 1 {
		t.Errorf("Expected 1 client error, got %v", got)
	}
	if got := testutil.ToFloat64(c.errors.WithLabelValues("POST", "/users", "error")); got != 1 {
		t.Errorf("Expected 1 failed dispatch, got %v", got)
	}
	if got := testutil.CollectAndCount(c.latency); got != 3 {
		t.Errorf("Expected 3 latency series, got %d", got)
	}
}

// TestCollectorInFlight tests the in-flight gauge
func TestCollectorInFlight(t *testing.T) {
	c := newTestCollector(t)

	done := c.Begin()
	if got := testutil.ToFloat64(c.inFlight); got != 1 {
		t.Errorf("Expected 1 in flight, got %v", got)
	}
	done()
	if got := testutil.ToFloat64(c.inFlight); got != 0 {
		t.Errorf("Expected 0 in flight, got %v", got)
	}
}

// TestCollectorDisabledMetrics tests that disabled metrics are not registered
func TestCollectorDisabledMetrics(t *testing.T) {
	c, err := NewCollector(CollectorConfig{EnableQPS: true})
	if err != nil {
		t.Fatalf("Failed to create collector: %v", err)
	}
	if c.latency != nil || c.errors != nil || c.throughput != nil {
		t.Error("Expected only the enabled metrics to exist")
	}
	c.Observe("GET", "/", 500, time.Millisecond, 10)
	if got := testutil.ToFloat64(c.requests.WithLabelValues("GET", "/", "500")); got != 1 {
		t.Errorf("Expected 1 request, got %v", got)
	}
}

// TestCollectorDuplicateRegistration tests that a shared registry rejects duplicates
func TestCollectorDuplicateRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	if _, err := NewCollector(CollectorConfig{Registry: registry, EnableQPS: true}); err != nil {
		t.Fatalf("Failed to create first collector: %v", err)
	}
	if _, err := NewCollector(CollectorConfig{Registry: registry, EnableQPS: true}); err == nil {
		t.Error("Expected duplicate registration to fail")
	}
}

// TestCollectorHandler tests the exposition endpoint
func TestCollectorHandler(t *testing.T) {
	c := newTestCollector(t)
	c.Observe("GET", "/ping", 200, time.Millisecond, 4)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	if !strings.Contains(body, `scaly_http_requests_total{method="GET",route="/ping",service="test",status="200"} 1`) {
		t.Errorf("Expected requests_total sample in exposition, got:\n%s", body)
	}
}
