package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/dealscout/internal/monitor"
	"github.com/alanyoungcy/dealscout/internal/server"
	"github.com/alanyoungcy/dealscout/internal/server/handler"
	"github.com/alanyoungcy/dealscout/internal/server/ws"
)

const shutdownTimeout = 15 * time.Second

// ServerMode serves the HTTP API only. Manual monitor triggers answer 503.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, nil)
	return g.Wait()
}

// MonitorMode runs the background monitor only.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	mon := NewMonitor(a.cfg, deps, a.logger)
	return mon.Run(ctx)
}

// FullMode runs the monitor and the HTTP API in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	mon := NewMonitor(a.cfg, deps, a.logger)
	g.Go(func() error {
		return mon.Run(ctx)
	})
	a.startHTTPServer(ctx, g, deps, mon)

	return g.Wait()
}

// startHTTPServer runs the websocket hub and the API server in g and shuts
// the server down when ctx ends. mon may be nil.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, mon *monitor.Monitor) {
	hub := ws.NewHub(deps.EventBus, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	// A nil *Monitor must not become a non-nil interface.
	var trigger handler.Triggerer
	if mon != nil {
		trigger = mon
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, server.Handlers{
		Health:  handler.NewHealthHandler(deps.Checks, a.logger),
		Deals:   handler.NewDealHandler(deps.Search, deps.Analysis, a.logger),
		Monitor: handler.NewMonitorHandler(trigger, a.logger),
	}, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("http shutdown failed", slog.String("error", err.Error()))
		}
		return ctx.Err()
	})
}

// isShutdown reports whether err only signals a requested shutdown.
func isShutdown(err error) bool {
	return err == nil || errors.Is(err, context.Canceled)
}
