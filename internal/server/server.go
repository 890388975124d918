// Package server exposes the short-link API over HTTP.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"shortener/internal/config"
	"shortener/internal/health"
	"shortener/internal/ratelimit"
	"shortener/internal/shortcode"
	"shortener/internal/telemetry"
	"shortener/internal/urls"
	"shortener/pkg/metrics"
	tlsutil "shortener/pkg/tls"
)

const defaultShutdownTimeout = 10 * time.Second

// Dependencies are the components the server routes requests to
type Dependencies struct {
	URLs   *urls.Service
	Health *health.Handler
	// Limiter applies admission rules to the API routes. Nil disables it.
	Limiter *ratelimit.Middleware
	// ValidCode checks code path parameters. Defaults to shortcode.IsValid.
	ValidCode func(string) bool

	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
	Telemetry *telemetry.Middleware
	Logger    *slog.Logger
}

// Server is the HTTP front of the shortener
type Server struct {
	config  *config.Config
	deps    Dependencies
	router  chi.Router
	server  *http.Server
	running atomic.Bool
	logger  *slog.Logger
}

// New creates a server for cfg. Routes are built immediately so Handler can
// be served without Start.
func New(cfg *config.Config, deps Dependencies) (*Server, error) {
	if deps.URLs == nil {
		return nil, fmt.Errorf("server requires a URL service")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.ValidCode == nil {
		deps.ValidCode = shortcode.IsValid
	}

	s := &Server{
		config: cfg,
		deps:   deps,
		logger: deps.Logger.With("component", "http"),
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the listen address and serves in the background. It returns
// once the listener is bound so bind errors surface to the caller.
func (s *Server) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("server already started")
	}

	cfg := s.config.Server
	addr := cfg.Address()

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return context.WithoutCancel(ctx)
		},
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		s.running.Store(false)
		return fmt.Errorf("failed to bind to %s: %w", addr, err)
	}

	if cfg.TLS != nil && cfg.TLS.Enabled {
		tlsConfig, err := tlsutil.ServerConfig(cfg.TLS.Options())
		if err != nil {
			listener.Close()
			s.running.Store(false)
			return fmt.Errorf("failed to load TLS configuration: %w", err)
		}
		s.server.TLSConfig = tlsConfig
		listener = tls.NewListener(listener, tlsConfig)
		s.logger.Info("Starting TLS server", "addr", listener.Addr().String(), "cert", cfg.TLS.CertFile)
	} else {
		s.logger.Info("Starting server", "addr", listener.Addr().String())
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error", "error", err)
		}
	}()

	return nil
}

// Stop drains in-flight requests, waiting at most the configured shutdown
// timeout, then waits for background click updates.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	timeout := time.Duration(s.config.Server.ShutdownTimeout) * time.Second
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.logger.Info("Stopping server", "timeout", timeout)
	err := s.server.Shutdown(ctx)
	if err != nil {
		s.logger.Error("Forced shutdown", "error", err)
	}

	s.deps.URLs.Close()
	return err
}
