package ratelimit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"

	"shortener/internal/telemetry"
)

// Middleware applies the configured admission rules to HTTP requests. Rules
// are matched by the router pattern of the request, so the middleware must be
// mounted where the route is already resolved (a chi group or With).
type Middleware struct {
	fixedWindow *FixedWindow
	tokenBucket *TokenBucket
	rules       atomic.Pointer[RuleSet]
	logger      *slog.Logger
}

// NewMiddleware creates the admission middleware
func NewMiddleware(fw *FixedWindow, tb *TokenBucket, rules *RuleSet, logger *slog.Logger) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Middleware{
		fixedWindow: fw,
		tokenBucket: tb,
		logger:      logger.With("component", "ratelimit-middleware"),
	}
	m.rules.Store(rules)
	return m
}

// SetRules swaps the active rule set. In-flight requests finish with the
// rules they started with.
func (m *Middleware) SetRules(rules *RuleSet) {
	m.rules.Store(rules)
	m.logger.Info("rate limit rules updated", "rules", rules.Len())
}

// Rules returns the active rule set
func (m *Middleware) Rules() *RuleSet {
	return m.rules.Load()
}

// Handler wraps next with admission checks
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rules := m.rules.Load()
		pattern := routePattern(r)
		caller := ClientIP(r)

		if rule, ok := rules.FixedWindowFor(pattern, r.URL.Path); ok && m.fixedWindow != nil {
			d, _ := m.fixedWindow.Admit(r.Context(), Identity(rule.Endpoint, caller), rule)
			annotate(r, AlgorithmFixedWindow, rule.Endpoint, d)
			setLimitHeaders(w, d)
			if !d.Allowed {
				m.deny(w, r, rule.Endpoint, d)
				return
			}
		}

		if rule, ok := rules.TokenBucketFor(pattern, r.URL.Path); ok && m.tokenBucket != nil {
			d, _ := m.tokenBucket.Admit(r.Context(), Identity(rule.Endpoint, caller), rule)
			annotate(r, AlgorithmTokenBucket, rule.Endpoint, d)
			setLimitHeaders(w, d)
			if !d.Allowed {
				m.deny(w, r, rule.Endpoint, d)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) deny(w http.ResponseWriter, r *http.Request, endpoint string, d Decision) {
	m.logger.Debug("request denied",
		"rule", endpoint,
		"path", r.URL.Path,
		"remote", r.RemoteAddr,
		"decision", d.String(),
	)
	WriteDenied(w, d.RetryAfter)
}

// DeniedBody is the JSON body of a 429 response
type DeniedBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter"`
}

// WriteDenied writes a 429 response with a Retry-After header
func WriteDenied(w http.ResponseWriter, retryAfter int) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	w.WriteHeader(http.StatusTooManyRequests)
	json.NewEncoder(w).Encode(DeniedBody{
		Error:      "Too Many Requests",
		Message:    fmt.Sprintf("Rate limit exceeded. Try again in %d seconds.", retryAfter),
		RetryAfter: retryAfter,
	})
}

// annotate adds the decision to the request span, if any
func annotate(r *http.Request, algorithm, endpoint string, d Decision) {
	telemetry.AddEvent(r.Context(), "ratelimit.decision",
		attribute.String("rule", endpoint),
		attribute.String("algorithm", algorithm),
		attribute.Bool("allowed", d.Allowed),
		attribute.Bool("degraded", d.Degraded),
	)
}

func setLimitHeaders(w http.ResponseWriter, d Decision) {
	if d.Degraded || d.Limit <= 0 {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}
