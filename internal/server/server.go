// Package server exposes the portfolio and insight API over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/avalens/avalens/internal/domain"
	"github.com/avalens/avalens/internal/server/handler"
	"github.com/avalens/avalens/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// APIRateLimit caps requests per client IP per APIRateWindow. Zero
	// disables the API-wide limiter.
	APIRateLimit  int
	APIRateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Portfolio *handler.PortfolioHandler
	Insights  *handler.InsightHandler
	Usage     *handler.UsageHandler
}

// Server is the headless HTTP API server for the portfolio tracker.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux
// and the middleware chain (rate limit, auth, logging, CORS) wired up. The
// limiter may be nil, which disables API-wide rate limiting.
func NewServer(cfg Config, handlers Handlers, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (exempt from auth below).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Portfolio endpoints.
	mux.HandleFunc("GET /api/portfolio/{address}", handlers.Portfolio.GetPortfolio)
	mux.HandleFunc("POST /api/portfolio/{address}/refresh", handlers.Portfolio.RefreshPortfolio)
	mux.HandleFunc("GET /api/portfolio/{address}/history", handlers.Portfolio.GetHistory)

	// Insight endpoints.
	mux.HandleFunc("GET /api/insights/{address}", handlers.Insights.ListInsights)
	mux.HandleFunc("POST /api/insights/{address}/generate", handlers.Insights.GenerateInsights)
	mux.HandleFunc("GET /api/insight/{id}", handlers.Insights.GetInsight)

	// Usage accounting.
	mux.HandleFunc("GET /api/usage/{service}", handlers.Usage.GetStats)

	// Build the middleware chain, innermost first.
	var h http.Handler = mux

	h = middleware.Auth(cfg.APIKey, "/api/health")(h)

	if limiter != nil && cfg.APIRateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.APIRateLimit, cfg.APIRateWindow)(h)
	}

	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
