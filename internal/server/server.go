// Package server wires the HTTP API and the WebSocket hub onto one
// http.Server.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/creditpool/internal/domain"
	"github.com/alanyoungcy/creditpool/internal/server/handler"
	"github.com/alanyoungcy/creditpool/internal/server/middleware"
	"github.com/alanyoungcy/creditpool/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // empty disables authentication

	// RateLimiter is optional. When set every client IP gets RateLimit
	// requests per RateWindow.
	RateLimiter domain.RateLimiter
	RateLimit   int
	RateWindow  time.Duration
}

// Handlers aggregates the HTTP handlers registered on the mux.
type Handlers struct {
	Health     *handler.HealthHandler
	Portfolios *handler.PortfolioHandler
	Structures *handler.StructureHandler
	Engine     *handler.EngineHandler
	Audit      *handler.AuditHandler // optional
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers all routes and builds the middleware chain. wsHub may
// be nil when no signal bus is configured.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "http"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           NewHandler(cfg, handlers, wsHub, logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return &Server{httpServer: srv, logger: logger}
}

// NewHandler returns the routed and wrapped handler without a listener.
func NewHandler(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Portfolios.
	p := handlers.Portfolios
	mux.HandleFunc("POST /api/portfolios/{id}/loans", p.ImportLoans)
	mux.HandleFunc("GET /api/portfolios/{id}/pool", p.PoolMetrics)
	mux.HandleFunc("GET /api/portfolios/{id}/report", p.Report)
	mux.HandleFunc("POST /api/portfolios/{id}/report", p.FilteredReport)
	mux.HandleFunc("GET /api/portfolios/{id}/provisioning", p.GetPolicy)
	mux.HandleFunc("PUT /api/portfolios/{id}/provisioning", p.PutPolicy)

	// Structures and runs.
	s := handlers.Structures
	mux.HandleFunc("POST /api/portfolios/{id}/structures", s.Create)
	mux.HandleFunc("GET /api/portfolios/{id}/structures", s.List)
	mux.HandleFunc("GET /api/structures/{id}", s.Get)
	mux.HandleFunc("PUT /api/structures/{id}", s.Update)
	mux.HandleFunc("POST /api/structures/{id}/finalise", s.Finalise)
	mux.HandleFunc("POST /api/structures/{id}/waterfall", s.Waterfall)
	mux.HandleFunc("POST /api/structures/{id}/stress-grid", s.StressGrid)
	mux.HandleFunc("GET /api/runs", s.ListRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.GetRun)

	// Stateless engine.
	mux.HandleFunc("POST /api/waterfall", handlers.Engine.Simulate)
	mux.HandleFunc("POST /api/stress-grid", handlers.Engine.StressGrid)

	if handlers.Audit != nil {
		mux.HandleFunc("GET /api/audit", handlers.Audit.List)
	}

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health")(h)
	if cfg.RateLimiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(cfg.RateLimiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("listening", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
