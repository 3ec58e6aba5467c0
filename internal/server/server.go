// Package server exposes the signal engine over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gniumg-source/clawfi-g-sub001/internal/domain"
	"github.com/gniumg-source/clawfi-g-sub001/internal/server/handler"
	"github.com/gniumg-source/clawfi-g-sub001/internal/server/middleware"
	"github.com/gniumg-source/clawfi-g-sub001/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port         int
	CORSOrigins  []string
	RateLimitRPM int // 0 disables rate limiting
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Handlers aggregates the route handlers. Discovery, Jobs and Audit may be
// nil when this process does not run those components.
type Handlers struct {
	Health    *handler.HealthHandler
	Status    *handler.StatusHandler
	Signals   *handler.SignalHandler
	Discovery *handler.DiscoveryHandler
	Jobs      *handler.JobHandler
	Audit     *handler.AuditHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in the middleware
// chain. limiter may be nil.
func NewServer(cfg Config, handlers Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "http"))

	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 60 * time.Second
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewHandler(cfg, handlers, hub, limiter, logger),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return &Server{httpServer: srv, logger: logger}
}

// NewHandler builds the routed, middleware-wrapped handler.
func NewHandler(cfg Config, handlers Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	if handlers.Status != nil {
		mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	}

	mux.HandleFunc("GET /api/signals", handlers.Signals.ListSignals)
	mux.HandleFunc("GET /api/signals/token/{token}", handlers.Signals.SignalsByToken)
	mux.HandleFunc("GET /api/signals/{id}", handlers.Signals.GetSignal)
	mux.HandleFunc("POST /api/signals/{id}/ack", handlers.Signals.AcknowledgeSignal)

	if handlers.Discovery != nil {
		mux.HandleFunc("GET /api/discovery/scan", handlers.Discovery.Scan)
		mux.HandleFunc("GET /api/discovery/token/{address}", handlers.Discovery.AnalyzeToken)
		mux.HandleFunc("GET /api/discovery/latest", handlers.Discovery.Latest)
	}
	if handlers.Audit != nil {
		mux.HandleFunc("GET /api/audit", handlers.Audit.ListAudit)
	}
	if handlers.Jobs != nil {
		mux.HandleFunc("POST /api/jobs/{name}/run", handlers.Jobs.TriggerJob)
	}
	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	var h http.Handler = mux
	if limiter != nil && cfg.RateLimitRPM > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimitRPM, time.Minute, logger)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start blocks serving requests until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
