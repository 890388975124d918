package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"shortener/pkg/metrics"
)

// Status represents the health status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// Service states reported per check
const (
	ServiceConnected    = "connected"
	ServiceDisconnected = "disconnected"
)

// Check represents a health check function
type Check func(ctx context.Context) error

// Checker manages health checks
type Checker struct {
	checks  map[string]Check
	metrics *metrics.Metrics
	mu      sync.RWMutex
}

// NewChecker creates a new health checker. m may be nil.
func NewChecker(m *metrics.Metrics) *Checker {
	return &Checker{
		checks:  make(map[string]Check),
		metrics: m,
	}
}

// RegisterCheck registers a health check
func (c *Checker) RegisterCheck(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// CheckHealth runs all health checks concurrently
func (c *Checker) CheckHealth(ctx context.Context) map[string]CheckResult {
	c.mu.RLock()
	checks := make(map[string]Check, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	results := make(map[string]CheckResult)
	var wg sync.WaitGroup
	var resultsMu sync.Mutex

	for name, check := range checks {
		wg.Add(1)
		go func(name string, check Check) {
			defer wg.Done()

			start := time.Now()
			err := check(ctx)
			duration := time.Since(start)

			result := CheckResult{
				Status:   StatusHealthy,
				Duration: duration,
			}
			if err != nil {
				result.Status = StatusUnhealthy
				result.Error = err.Error()
			}
			c.observe(name, result)

			resultsMu.Lock()
			results[name] = result
			resultsMu.Unlock()
		}(name, check)
	}

	wg.Wait()
	return results
}

func (c *Checker) observe(name string, result CheckResult) {
	if c.metrics == nil {
		return
	}
	c.metrics.HealthCheckDuration.WithLabelValues(name).Observe(result.Duration.Seconds())
	healthy := 0.0
	if result.Status == StatusHealthy {
		healthy = 1
	}
	c.metrics.HealthCheckStatus.WithLabelValues(name).Set(healthy)
}

// CheckResult represents the result of a health check
type CheckResult struct {
	Status   Status        `json:"status"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// HealthResponse is the /health body
type HealthResponse struct {
	Status     string                 `json:"status"`
	Timestamp  time.Time              `json:"timestamp"`
	Services   map[string]string      `json:"services"`
	Checks     map[string]CheckResult `json:"checks,omitempty"`
	Version    string                 `json:"version,omitempty"`
	InstanceID string                 `json:"instanceId,omitempty"`
}

// Handler serves the health endpoints
type Handler struct {
	checker    *Checker
	version    string
	instanceID string
	now        func() time.Time
}

// NewHandler creates a new health handler
func NewHandler(checker *Checker, version, instanceID string) *Handler {
	return &Handler{
		checker:    checker,
		version:    version,
		instanceID: instanceID,
		now:        time.Now,
	}
}

// Health reports "ok" with every dependency connected, "error" otherwise
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	results := h.checker.CheckHealth(ctx)

	response := HealthResponse{
		Status:     "ok",
		Timestamp:  h.now().UTC(),
		Services:   make(map[string]string, len(results)),
		Checks:     results,
		Version:    h.version,
		InstanceID: h.instanceID,
	}
	statusCode := http.StatusOK
	for name, result := range results {
		if result.Status == StatusUnhealthy {
			response.Services[name] = ServiceDisconnected
			response.Status = "error"
			statusCode = http.StatusServiceUnavailable
			continue
		}
		response.Services[name] = ServiceConnected
	}

	writeJSON(w, statusCode, response)
}

// Ready reports whether every dependency is reachable
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ready := true
	for _, result := range h.checker.CheckHealth(ctx) {
		if result.Status == StatusUnhealthy {
			ready = false
			break
		}
	}

	statusCode := http.StatusOK
	if !ready {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, map[string]any{
		"ready":     ready,
		"timestamp": h.now().UTC(),
	})
}

// Live reports that the process is serving
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": h.now().UTC(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
