// Package app provides the top-level application lifecycle. It wires
// together all dependencies (stores, rate limiter, blob storage, provider
// clients, services, and notifications), starts the HTTP API and the
// background maintenance jobs, and tears everything down on shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/avalens/avalens/internal/config"
	"github.com/avalens/avalens/internal/server"
	"github.com/avalens/avalens/internal/server/handler"
)

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, starts the HTTP
// server and background jobs, and blocks until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.Int64("chain_id", a.cfg.Chain.ID),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	g, ctx := errgroup.WithContext(ctx)

	srv := server.NewServer(server.Config{
		Port:          a.cfg.Server.Port,
		CORSOrigins:   a.cfg.Server.CORSOrigins,
		APIKey:        a.cfg.Server.APIKey,
		APIRateLimit:  a.cfg.Server.RateLimit,
		APIRateWindow: time.Duration(a.cfg.Server.RateWindowSec) * time.Second,
	}, server.Handlers{
		Health:    handler.NewHealthHandler(deps.Pingers, a.logger),
		Portfolio: handler.NewPortfolioHandler(deps.Portfolios, a.logger),
		Insights:  handler.NewInsightHandler(deps.InsightStore, deps.Generator, deps.Portfolios, a.logger),
		Usage:     handler.NewUsageHandler(deps.UsageStore, a.logger),
	}, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	a.startJobs(ctx, g, deps)

	return g.Wait()
}

// Close tears down all resources in reverse registration order. It is safe
// to call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
