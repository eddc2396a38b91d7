// Package server exposes replay runs, their events and process metrics over
// HTTP, plus a websocket feed of live events.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/barreplay/internal/domain"
	"github.com/alanyoungcy/barreplay/internal/server/handler"
	"github.com/alanyoungcy/barreplay/internal/server/middleware"
	"github.com/alanyoungcy/barreplay/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Addr        string
	CORSOrigins []string
	// APIKey guards run creation; empty disables authentication.
	APIKey      string
	MetricsPath string

	// Limiter caps /api/runs traffic at RateLimit requests per RateWindow
	// per client; nil or a zero RateLimit disables it.
	Limiter    domain.RateLimiter
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates the HTTP handlers the server registers. Runs, Metrics
// and Hub are optional.
type Handlers struct {
	Health  *handler.HealthHandler
	Runs    *handler.RunHandler
	Metrics http.Handler
	Hub     *ws.Hub
}

// Server is the HTTP API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and builds the middleware chain.
func NewServer(cfg Config, handlers Handlers, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	if handlers.Metrics != nil {
		mux.Handle("GET "+cfg.MetricsPath, handlers.Metrics)
	}
	if handlers.Runs != nil {
		limit := middleware.RateLimit(cfg.Limiter, cfg.RateLimit, cfg.RateWindow, logger)
		mux.Handle("POST /api/runs", limit(middleware.Auth(cfg.APIKey)(http.HandlerFunc(handlers.Runs.StartRun))))
		mux.Handle("GET /api/runs", limit(http.HandlerFunc(handlers.Runs.ListRuns)))
		mux.Handle("GET /api/runs/{id}", limit(http.HandlerFunc(handlers.Runs.GetRun)))
		mux.Handle("GET /api/runs/{id}/events", limit(http.HandlerFunc(handlers.Runs.RunEvents)))
	}
	if handlers.Hub != nil {
		mux.HandleFunc("GET /ws", handlers.Hub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Logging(logger, cfg.MetricsPath, "/api/health")(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           h,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the root handler, middleware included.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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

// Serve runs the server until ctx is cancelled, then shuts it down within
// five seconds.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(shutCtx); err != nil {
			return err
		}
		return <-errCh
	}
}
