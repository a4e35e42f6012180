package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/adcal/slotmarket/internal/server"
	"github.com/adcal/slotmarket/internal/server/handler"
	"github.com/adcal/slotmarket/internal/server/ws"
	"github.com/adcal/slotmarket/internal/service"
)

// ServeMode runs the full service: the arena backed by Postgres and Redis,
// the HTTP and WebSocket API, and the archival loop when enabled.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	marketSvc := service.NewMarketService(service.MarketServiceDeps{
		Arena:    deps.Arena,
		Ledger:   deps.Ledger,
		Slots:    deps.SlotStore,
		Sales:    deps.SaleStore,
		Audit:    deps.AuditStore,
		Cache:    deps.SlotCache,
		Bus:      deps.SignalBus,
		Locks:    deps.LockManager,
		Notifier: deps.Notifier,
		Logger:   a.logger,
	})

	if err := marketSvc.RestoreFromStore(ctx); err != nil {
		return err
	}

	// WebSocket hub bridging committed events to dashboards.
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		Days:      deps.Arena.Days(),
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	// Archival loop when enabled.
	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour
		archiveSvc := service.NewArchiveService(deps.Archiver, a.cfg.Archive.Interval.Duration, retention, a.logger)
		g.Go(func() error {
			return archiveSvc.Run(ctx)
		})
	}

	a.startHTTPServer(ctx, g, deps, marketSvc, hub)

	return g.Wait()
}

// StandaloneMode runs a self-contained instance: the arena with the
// in-memory ledger and the HTTP API, no external dependencies. Intended for
// local development and demos.
func (a *App) StandaloneMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting standalone mode")

	g, ctx := errgroup.WithContext(ctx)

	marketSvc := service.NewMarketService(service.MarketServiceDeps{
		Arena:    deps.Arena,
		Ledger:   deps.Ledger,
		Notifier: deps.Notifier,
		Logger:   a.logger,
	})

	a.startHTTPServer(ctx, g, deps, marketSvc, nil)

	return g.Wait()
}

// startHTTPServer adds the HTTP server goroutines to the given errgroup. The
// server is shut down gracefully when the context is cancelled. The hub is
// optional; without a signal bus there is nothing to bridge.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	marketSvc *service.MarketService,
	hub *ws.Hub,
) {
	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(a.cfg.Mode, deps.Arena.Days()),
		Slots:    handler.NewSlotHandler(marketSvc, a.logger),
		Sales:    handler.NewSaleHandler(marketSvc, a.logger),
		Accounts: handler.NewAccountHandler(marketSvc, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		RateLimiter:     deps.RateLimiter,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, handlers, hub, a.logger)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
