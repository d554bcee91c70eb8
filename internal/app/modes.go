package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yifanzh/predmirror/internal/history"
	"github.com/yifanzh/predmirror/internal/ingest"
	"github.com/yifanzh/predmirror/internal/pipeline"
	"github.com/yifanzh/predmirror/internal/reconcile"
	"github.com/yifanzh/predmirror/internal/server"
	"github.com/yifanzh/predmirror/internal/server/handler"
	"github.com/yifanzh/predmirror/internal/server/ws"
	"github.com/yifanzh/predmirror/internal/service"
)

// services bundles the domain services shared by the modes.
type services struct {
	registry *service.Registry
	trades   *service.TradeService
	markets  *service.MarketService
	prices   *service.PriceService
}

// buildServices constructs the service layer on top of the wired
// dependencies. The registry stays empty until the mirror pipeline or the
// poller populates it; in serve mode it simply never fills and reads fall
// through to Redis and Postgres.
func (a *App) buildServices(deps *Dependencies) *services {
	registry := service.NewRegistry(
		deps.ChainReader,
		deps.MarketStore,
		deps.MarketCache,
		deps.PriceCache,
		deps.SignalBus,
		deps.Notifier,
		service.RegistryConfig{
			PollInterval: a.cfg.Pipeline.PollInterval.Duration,
			Reconcile: reconcile.Config{
				FetchDelay:  a.cfg.Reconcile.FetchDelay.Duration,
				SettleDelay: a.cfg.Reconcile.SettleDelay.Duration,
			},
			History: history.Config{
				MaxPoints:   a.cfg.History.MaxPoints,
				PriceDelta:  a.cfg.History.PriceDelta,
				MinInterval: a.cfg.History.MinInterval.Duration,
				SeedOffset:  a.cfg.History.SeedOffset.Duration,
			},
		},
		a.logger,
	)

	// positions reader is nil without a chain endpoint; position lookups
	// then fail with a clear error instead of a panic.
	var positions service.PositionReader
	if deps.ChainReader != nil {
		positions = deps.ChainReader
	}

	return &services{
		registry: registry,
		trades:   service.NewTradeService(deps.TradeStore, deps.CommentStore, registry, deps.SignalBus, a.logger),
		markets:  service.NewMarketService(deps.MarketStore, deps.MarketCache, positions, a.logger),
		prices:   service.NewPriceService(registry, deps.PriceCache, a.logger),
	}
}

// buildOrchestrator assembles the ingestion pipeline, the cold-storage
// archiver, and the orchestrator that runs them.
func (a *App) buildOrchestrator(ctx context.Context, deps *Dependencies, svcs *services) (*pipeline.Orchestrator, error) {
	if deps.ChainClient == nil {
		return nil, fmt.Errorf("app: mode %q requires a chain endpoint", a.cfg.Mode)
	}

	startBlock := a.cfg.Backfill.StartBlock
	if startBlock > 0 {
		// Resume from the last mirrored trade instead of re-scanning the
		// whole configured range after a restart.
		last, err := deps.TradeStore.LastBlock(ctx)
		if err != nil {
			a.logger.Warn("resume point lookup failed, using configured start block",
				slog.String("error", err.Error()),
			)
		} else if last >= startBlock {
			startBlock = last + 1
			a.logger.Info("resuming backfill after last mirrored trade",
				slog.Uint64("start_block", startBlock),
			)
		}
	}

	ingestion := ingest.NewPipeline(deps.ChainClient, ingest.Config{
		ChunkSize:     a.cfg.Backfill.ChunkSize,
		DedupCapacity: a.cfg.Backfill.DedupCapacity,
	}, a.logger)

	var archiver *pipeline.Archiver
	if deps.Archiver != nil {
		archiver = pipeline.NewArchiver(
			deps.Archiver,
			deps.TradeStore,
			deps.CommentStore,
			a.cfg.Pipeline.ArchiveRetentionDays,
			a.logger,
		)
	}

	return pipeline.NewOrchestrator(
		ingestion,
		svcs.trades,
		svcs.registry,
		archiver,
		deps.LockManager,
		startBlock,
		a.cfg.Pipeline.ArchiveCron,
		a.logger,
	), nil
}

// buildServer assembles the HTTP server and its WebSocket hub.
func (a *App) buildServer(deps *Dependencies, svcs *services) (*server.Server, *ws.Hub) {
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
		Markets:   svcs.registry,
	})

	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(a.logger),
		Status:  handler.NewStatusHandler(a.cfg.Mode, svcs.registry, a.logger),
		Markets: handler.NewMarketHandler(svcs.markets, a.logger),
		Prices:  handler.NewPriceHandler(svcs.prices, a.logger),
		Trades:  handler.NewTradeHandler(svcs.trades, a.logger),
	}
	if deps.BlobReader != nil {
		handlers.Archives = handler.NewArchiveHandler(deps.BlobReader, deps.BlobDeleter, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, deps.RateLimiter, hub, a.logger)

	return srv, hub
}

// MirrorMode runs the event mirror pipeline without the HTTP API: ingestion,
// reconciliation, market discovery, and the optional cold-storage job.
func (a *App) MirrorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting mirror mode")

	svcs := a.buildServices(deps)
	defer svcs.registry.Close()

	orch, err := a.buildOrchestrator(ctx, deps, svcs)
	if err != nil {
		return err
	}
	return orch.Run(ctx)
}

// ServeMode runs the HTTP + WebSocket API without the mirror pipeline. Prices
// come from the Redis cache written by a mirror process elsewhere.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	svcs := a.buildServices(deps)
	srv, hub := a.buildServer(deps, svcs)

	return runServer(ctx, srv, hub, a.logger)
}

// FullMode runs the mirror pipeline and the API server in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	svcs := a.buildServices(deps)
	defer svcs.registry.Close()

	orch, err := a.buildOrchestrator(ctx, deps, svcs)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := orch.Run(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("orchestrator: %w", err)
		}
		return nil
	})

	if a.cfg.Server.Enabled {
		srv, hub := a.buildServer(deps, svcs)
		g.Go(func() error {
			return runServer(ctx, srv, hub, a.logger)
		})
	}

	return g.Wait()
}

// runServer starts the HTTP server and WebSocket hub, then shuts the server
// down gracefully when ctx is cancelled.
func runServer(ctx context.Context, srv *server.Server, hub *ws.Hub, logger *slog.Logger) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := hub.Run(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("ws hub: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := srv.Start(); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", slog.String("error", err.Error()))
		}
		return nil
	})

	return g.Wait()
}
