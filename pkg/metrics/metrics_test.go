package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewWithRegistry(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	if m.RequestsTotal == nil {
		t.Error("RequestsTotal is nil")
	}
	if m.RequestDuration == nil {
		t.Error("RequestDuration is nil")
	}
	if m.RateLimitRequests == nil {
		t.Error("RateLimitRequests is nil")
	}
	if m.RateLimitDegraded == nil {
		t.Error("RateLimitDegraded is nil")
	}
	if m.ShortcodeAllocations == nil {
		t.Error("ShortcodeAllocations is nil")
	}
	if m.ShortcodeCollisions == nil {
		t.Error("ShortcodeCollisions is nil")
	}
	if m.StoreOperationDuration == nil {
		t.Error("StoreOperationDuration is nil")
	}
}

func TestMetricsCollection(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewWithRegistry(registry)

	m.RequestsTotal.WithLabelValues("GET", "/{code}", "301").Inc()
	m.RequestsTotal.WithLabelValues("POST", "/shorten", "201").Inc()
	m.RequestsTotal.WithLabelValues("POST", "/shorten", "201").Inc()

	count := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("POST", "/shorten", "201"))
	if count != 2 {
		t.Errorf("Expected 2 POST requests with 201, got %f", count)
	}

	m.ActiveRequests.WithLabelValues("GET").Inc()
	m.ActiveRequests.WithLabelValues("GET").Dec()
	if active := testutil.ToFloat64(m.ActiveRequests.WithLabelValues("GET")); active != 0 {
		t.Errorf("Expected 0 active requests, got %f", active)
	}

	m.ObserveStore("incr", time.Now())
	if n := testutil.CollectAndCount(m.StoreOperationDuration); n != 1 {
		t.Errorf("Expected 1 store histogram series, got %d", n)
	}
}

func TestRecordDecision(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.RecordDecision("/shorten", "fixed_window", DecisionAllowed)
	m.RecordDecision("/shorten", "fixed_window", DecisionDenied)
	m.RecordDecision("/shorten", "fixed_window", DecisionDegraded)
	m.RecordDecision("/api/stats/{code}", "token_bucket", DecisionDegraded)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"allowed", testutil.ToFloat64(m.RateLimitRequests.WithLabelValues("/shorten", "fixed_window", DecisionAllowed)), 1},
		{"denied", testutil.ToFloat64(m.RateLimitRequests.WithLabelValues("/shorten", "fixed_window", DecisionDenied)), 1},
		{"degraded fixed window", testutil.ToFloat64(m.RateLimitDegraded.WithLabelValues("fixed_window")), 1},
		{"degraded token bucket", testutil.ToFloat64(m.RateLimitDegraded.WithLabelValues("token_bucket")), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %f, want %f", tt.got, tt.want)
			}
		})
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.RecordDecision("r", "fixed_window", DecisionAllowed)
	m.ObserveStore("get", time.Now())
}

func TestHandler(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewWithRegistry(registry)
	m.URLsCreated.Inc()

	rec := httptest.NewRecorder()
	Handler(registry).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "shortener_urls_created_total 1") {
		t.Errorf("expected created counter in output, got:\n%s", rec.Body.String())
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		expected string
	}{
		{
			name:     "route pattern",
			path:     "/api/stats/{code}",
			expected: "/api/stats/{code}",
		},
		{
			name:     "empty pattern",
			path:     "",
			expected: "unmatched",
		},
		{
			name:     "long path",
			path:     "/api/v1/users/12345678901234567890123456789012345678901234567890/profile/settings",
			expected: "/api/v1/users/123456789012345678901234567890123456...",
		},
		{
			name:     "exactly 50 chars",
			path:     "/api/v1/users/12345678901234567890123456789012345",
			expected: "/api/v1/users/12345678901234567890123456789012345",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NormalizePath(tt.path)
			if result != tt.expected {
				t.Errorf("NormalizePath(%s) = %s, want %s", tt.path, result, tt.expected)
			}
		})
	}
}
