package telemetry

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Middleware wraps handlers with tracing and OpenTelemetry metrics
type Middleware struct {
	telemetry *Telemetry
	metrics   *Metrics
}

// NewMiddleware creates a new telemetry middleware. metrics may be nil.
func NewMiddleware(telemetry *Telemetry, metrics *Metrics) *Middleware {
	return &Middleware{
		telemetry: telemetry,
		metrics:   metrics,
	}
}

// WrapHTTP wraps an HTTP handler with a server span. Mounted on a chi router,
// the span and metrics are labelled with the matched route pattern.
func (m *Middleware) WrapHTTP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := m.telemetry.StartHTTPServerSpan(r)
		r = r.WithContext(ctx)
		if traceID := ExtractTraceID(ctx); traceID != "" {
			w.Header().Set("X-Trace-ID", traceID)
		}

		if m.metrics != nil {
			m.metrics.RecordHTTPActiveRequest(ctx, 1)
			defer m.metrics.RecordHTTPActiveRequest(ctx, -1)
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}

		if m.metrics != nil {
			m.metrics.RecordHTTPRequest(ctx, r.Method, route, status, time.Since(start))
		}
		EndHTTPServerSpan(span, r.Method, route, status)
	})
}
