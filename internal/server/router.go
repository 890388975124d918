package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"shortener/pkg/metrics"
	"shortener/pkg/requestid"
)

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(requestid.Middleware)
	if s.config.Server.TrustProxy {
		r.Use(middleware.RealIP)
	}
	if s.deps.Telemetry != nil {
		r.Use(s.deps.Telemetry.WrapHTTP)
	}
	r.Use(logging(s.logger))
	r.Use(recovery(s.logger))
	if s.deps.Metrics != nil {
		r.Use(instrument(s.deps.Metrics))
	}
	r.Use(NewCORS(CORSConfig{AllowedOrigins: s.config.CORS.AllowedOrigins}).Handler)
	r.Use(sanitizeQuery)

	r.NotFound(notFound)
	r.MethodNotAllowed(notFound)

	if h := s.deps.Health; h != nil {
		r.Get("/health", h.Health)
		r.Get("/ready", h.Ready)
		r.Get("/live", h.Live)
	}

	metricsPath := s.config.Server.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	r.Method(http.MethodGet, metricsPath, metrics.Handler(s.deps.Gatherer))

	// Admission runs inside the route so the limiter sees the matched pattern
	limit := func(next http.Handler) http.Handler { return next }
	if s.deps.Limiter != nil {
		limit = s.deps.Limiter.Handler
	}

	r.With(s.validateShorten, limit).Post("/shorten", s.shorten)
	r.With(s.validateCode, limit).Get("/api/stats/{code}", s.stats)
	r.With(s.validateCode, limit).Delete("/api/delete/{code}", s.delete)
	r.With(s.validateCode).Get("/{code}", s.redirect)

	return r
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, errorResponse{
		Error:   errNotFound,
		Message: "The requested resource was not found",
		Path:    r.URL.RequestURI(),
	})
}
