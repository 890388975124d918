package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"shortener/pkg/metrics"
)

type mockStore struct {
	err   error
	delay time.Duration
}

func (m *mockStore) Ping(ctx context.Context) error {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.err
}

func TestChecker_RegisterAndCheck(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	checker := NewChecker(m)

	checker.RegisterCheck("success", func(ctx context.Context) error {
		return nil
	})
	checker.RegisterCheck("failure", func(ctx context.Context) error {
		return errors.New("check failed")
	})
	checker.RegisterCheck("slow", func(ctx context.Context) error {
		select {
		case <-time.After(100 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	results := checker.CheckHealth(context.Background())

	if len(results) != 3 {
		t.Errorf("Expected 3 results, got %d", len(results))
	}
	if result := results["success"]; result.Status != StatusHealthy || result.Error != "" {
		t.Errorf("Expected success check to be healthy, got %+v", result)
	}
	if result := results["failure"]; result.Status != StatusUnhealthy || result.Error == "" {
		t.Errorf("Expected failure check to be unhealthy, got %+v", result)
	}
	if result := results["slow"]; result.Duration < 100*time.Millisecond {
		t.Errorf("Expected slow check to take at least 100ms, got %v", result.Duration)
	}

	if got := testutil.ToFloat64(m.HealthCheckStatus.WithLabelValues("failure")); got != 0 {
		t.Errorf("failure status gauge = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.HealthCheckStatus.WithLabelValues("success")); got != 1 {
		t.Errorf("success status gauge = %v, want 1", got)
	}
}

func TestStoreCheck(t *testing.T) {
	tests := []struct {
		name    string
		store   *mockStore
		timeout time.Duration
		wantErr bool
	}{
		{"reachable", &mockStore{}, time.Second, false},
		{"ping error", &mockStore{err: errors.New("connection refused")}, time.Second, true},
		{"timeout", &mockStore{delay: time.Second}, 20 * time.Millisecond, true},
		{"no timeout", &mockStore{}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := StoreCheck(tt.store, tt.timeout)(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestHandler_Health(t *testing.T) {
	tests := []struct {
		name        string
		storeErr    error
		wantCode    int
		wantStatus  string
		wantService string
	}{
		{"connected", nil, http.StatusOK, "ok", ServiceConnected},
		{"disconnected", errors.New("down"), http.StatusServiceUnavailable, "error", ServiceDisconnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewChecker(nil)
			checker.RegisterCheck("redis", StoreCheck(&mockStore{err: tt.storeErr}, time.Second))
			handler := NewHandler(checker, "1.0.0", "instance-1")

			rec := httptest.NewRecorder()
			handler.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("Expected status %d, got %d", tt.wantCode, rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}

			var body HealthResponse
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if body.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", body.Status, tt.wantStatus)
			}
			if body.Services["redis"] != tt.wantService {
				t.Errorf("services.redis = %q, want %q", body.Services["redis"], tt.wantService)
			}
			if body.InstanceID != "instance-1" || body.Version != "1.0.0" {
				t.Errorf("unexpected identity: %+v", body)
			}
			if body.Timestamp.IsZero() {
				t.Error("expected timestamp")
			}
		})
	}
}

func TestHandler_Ready(t *testing.T) {
	checker := NewChecker(nil)
	store := &mockStore{}
	checker.RegisterCheck("redis", StoreCheck(store, time.Second))
	handler := NewHandler(checker, "", "")

	rec := httptest.NewRecorder()
	handler.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}

	store.err = errors.New("down")
	rec = httptest.NewRecorder()
	handler.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", rec.Code)
	}

	var body map[string]any
	json.NewDecoder(rec.Body).Decode(&body)
	if body["ready"] != false {
		t.Errorf("Expected ready=false, got %v", body["ready"])
	}
}

func TestHandler_Live(t *testing.T) {
	// Liveness ignores dependency state
	checker := NewChecker(nil)
	checker.RegisterCheck("redis", StoreCheck(&mockStore{err: errors.New("down")}, time.Second))
	handler := NewHandler(checker, "", "")

	rec := httptest.NewRecorder()
	handler.Live(rec, httptest.NewRequest(http.MethodGet, "/live", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
	var body map[string]any
	json.NewDecoder(rec.Body).Decode(&body)
	if body["status"] != "ok" {
		t.Errorf("Expected status ok, got %v", body["status"])
	}
}
