// Package server exposes the logging pipeline over HTTP. Every response on
// the pipeline routes is 200-shaped: failure and degradation are carried in
// the response body, matching the fail-open write/read contract.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/quilross/aquil-symbolic-engine-sub003/health"
	"github.com/quilross/aquil-symbolic-engine-sub003/metric"
)

// Server hosts the pipeline HTTP surface.
type Server struct {
	pipeline       *Pipeline
	monitor        *health.Monitor
	metricsHandler http.Handler
	metrics        *metric.Metrics
	limiter        *rate.Limiter
	logger         *slog.Logger

	addr       string
	httpServer *http.Server
}

// Option configures the Server.
type Option func(*Server)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(s *Server) { s.addr = addr }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsHandler mounts a /metrics endpoint.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithMetrics wires the pipeline metrics for the handlers themselves.
func WithMetrics(m *metric.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithWriteRateLimit bounds the write endpoint. Zero rate disables limiting.
func WithWriteRateLimit(perSec float64, burst int) Option {
	return func(s *Server) {
		if perSec > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
		}
	}
}

// New creates the server over a pipeline and health monitor.
func New(pipeline *Pipeline, monitor *health.Monitor, opts ...Option) *Server {
	s := &Server{
		pipeline: pipeline,
		monitor:  monitor,
		logger:   slog.Default(),
		addr:     ":8787",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes builds the route table. Exposed separately so tests can drive the
// handlers through httptest without binding a listener.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/log", s.handleWriteLog)
	mux.HandleFunc("/api/logs", s.handleLogsLegacy)
	mux.HandleFunc("/api/logs/canonical", s.handleLogsCanonical)
	mux.HandleFunc("/api/operations", s.handleOperations)
	mux.HandleFunc("/healthz", s.handleHealthz)
	if s.metricsHandler != nil {
		mux.Handle("/metrics", s.metricsHandler)
	}
	return mux
}

// Start begins serving. Blocks until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("http server listening", "addr", s.addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
