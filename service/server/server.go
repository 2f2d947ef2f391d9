package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/soltrack/service/config"
	"github.com/brojonat/soltrack/service/db"
	"github.com/brojonat/soltrack/service/metrics"
	natspkg "github.com/brojonat/soltrack/service/nats"
	"github.com/brojonat/soltrack/service/report"
	"github.com/brojonat/soltrack/service/temporal"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReportBuilder builds wallet reports on demand.
type ReportBuilder interface {
	Build(ctx context.Context, req report.Request) (*report.Report, error)
	Sources() []string
}

// Store is the persistence the server reads snapshots from and records watches in.
// *db.Store implements it.
type Store interface {
	ListSnapshots(ctx context.Context, address string, limit int) ([]*report.Snapshot, error)
	UpsertWatch(ctx context.Context, address, source string, interval time.Duration) (*db.Watch, error)
	DeleteWatch(ctx context.Context, address, source string) error
	ListWatches(ctx context.Context) ([]*db.Watch, error)
}

// Server represents the HTTP server for the report service.
type Server struct {
	addr       string
	cfg        *config.Config
	builder    ReportBuilder
	store      Store
	scheduler  temporal.Scheduler
	subscriber natspkg.Subscriber
	renderer   *TemplateRenderer
	metrics    *metrics.Metrics
	logger     *slog.Logger
	server     *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The store is optional - if nil, snapshot history is unavailable (503) and watches are not recorded.
// The scheduler is optional - if nil, watch endpoints return 503.
// The subscriber is optional - if nil, the SSE endpoint is not registered.
// The metrics is optional - if nil, the metrics endpoint is not registered.
func New(addr string, cfg *config.Config, builder ReportBuilder, store Store, scheduler temporal.Scheduler, subscriber natspkg.Subscriber, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:       addr,
		cfg:        cfg,
		builder:    builder,
		store:      store,
		scheduler:  scheduler,
		subscriber: subscriber,
		metrics:    m,
		logger:     logger,
	}
}

// WithTemplates adds dashboard rendering support to the server using embedded files.
func (s *Server) WithTemplates() error {
	renderer, err := NewTemplateRenderer(s.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize templates: %w", err)
	}
	s.renderer = renderer
	s.logger.Info("HTML templates loaded from embedded files")
	return nil
}

// Handler builds the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	route := func(pattern, name string, h http.Handler) {
		mux.Handle(pattern, metrics.HTTPMetricsMiddleware(s.metrics, name)(h))
	}

	timeout := s.cfg.RequestTimeout

	// Report routes
	route("GET /api/v1/wallets/{address}/report", "/api/v1/wallets/{address}/report",
		withTimeout(timeout, handleGetReport(s.builder, s.logger)))
	route("GET /api/v1/wallets/{address}/snapshots", "/api/v1/wallets/{address}/snapshots",
		handleListSnapshots(s.store, s.logger))

	// Watch routes
	route("POST /api/v1/watches", "/api/v1/watches",
		handleCreateWatch(s.builder, s.store, s.scheduler, s.cfg, s.logger))
	route("GET /api/v1/watches", "/api/v1/watches",
		handleListWatches(s.store, s.logger))
	route("DELETE /api/v1/watches/{address}", "/api/v1/watches/{address}",
		handleDeleteWatch(s.builder, s.store, s.scheduler, s.cfg, s.logger))

	// SSE streaming endpoint (if NATS is configured)
	if s.subscriber != nil {
		route("GET /api/v1/stream/reports/{address}", "/api/v1/stream/reports/{address}",
			handleStreamReports(s.subscriber, s.metrics, s.logger))
		s.logger.Info("SSE streaming endpoint enabled")
	} else {
		s.logger.Warn("NATS not configured, streaming endpoint disabled")
	}

	// HTML pages (if template renderer is configured)
	if s.renderer != nil {
		mux.Handle("GET /{$}", handleDashboard(s.builder, s.renderer, s.logger))
		mux.Handle("GET /wallet", withTimeout(timeout, handleDashboard(s.builder, s.renderer, s.logger)))
		s.logger.Info("HTML dashboard enabled")
	}

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	return corsMiddleware(mux)
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	// No WriteTimeout: SSE responses stay open. Report builds are bounded per request.
	s.server = &http.Server{
		Addr:        s.addr,
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// withTimeout bounds the request context. A zero timeout leaves it unbounded.
func withTimeout(d time.Duration, next http.Handler) http.Handler {
	if d <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), d)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
