package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"shortener/internal/telemetry"
	"shortener/pkg/metrics"
	"shortener/pkg/requestid"
)

// logging logs one line per request once it has been served
func logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", statusOf(ww),
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
				"request_id", requestid.FromContext(r.Context()),
			}
			logger.Info("request", append(attrs, telemetry.LogAttrs(r.Context())...)...)
		})
	}
}

// recovery turns a handler panic into a 500 response
func recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logger.Error("panic recovered",
					"panic", fmt.Sprintf("%v", rec),
					"path", r.URL.Path,
					"method", r.Method,
					"request_id", requestid.FromContext(r.Context()),
				)
				logger.Debug("stack trace", "stack", string(debug.Stack()))

				writeError(w, http.StatusInternalServerError, errInternal, "An unexpected error occurred")
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// instrument records Prometheus request metrics labelled by route pattern
func instrument(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			active := m.ActiveRequests.WithLabelValues(r.Method)
			active.Inc()
			defer active.Dec()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			route := ""
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				route = rctx.RoutePattern()
			}
			route = metrics.NormalizePath(route)
			status := strconv.Itoa(statusOf(ww))

			m.RequestsTotal.WithLabelValues(r.Method, route, status).Inc()
			m.RequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		})
	}
}

// sanitizeQuery strips markup characters from query values
func sanitizeQuery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.RawQuery != "" {
			query := r.URL.Query()
			for key, values := range query {
				for i, v := range values {
					values[i] = sanitizeString(v)
				}
				query[key] = values
			}
			r.URL.RawQuery = query.Encode()
		}
		next.ServeHTTP(w, r)
	})
}

var markup = strings.NewReplacer("<", "", ">", "", `"`, "", "'", "")

func sanitizeString(s string) string {
	return markup.Replace(s)
}

// sanitizeValue strips markup characters from every string in a decoded
// JSON value
func sanitizeValue(v any) any {
	switch val := v.(type) {
	case string:
		return sanitizeString(val)
	case map[string]any:
		for k, item := range val {
			val[k] = sanitizeValue(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = sanitizeValue(item)
		}
		return val
	default:
		return v
	}
}

func statusOf(ww middleware.WrapResponseWriter) int {
	if ww.Status() == 0 {
		return http.StatusOK
	}
	return ww.Status()
}
