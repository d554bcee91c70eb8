// Package pipeline wires the mirror's long-running jobs together: event
// ingestion, event handling, market discovery polling, and cold-storage
// archival.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yifanzh/predmirror/internal/domain"
	"github.com/yifanzh/predmirror/internal/ingest"
	"github.com/yifanzh/predmirror/internal/service"
)

// mirrorLockKey guards against two replicas ingesting the same contract.
const mirrorLockKey = "mirror"

// mirrorLockTTL bounds how long a crashed replica blocks a restart.
const mirrorLockTTL = 2 * time.Minute

// Orchestrator manages all pipeline goroutines: log ingestion, event
// handling, market discovery, and cold-storage archival.
type Orchestrator struct {
	ingestion *ingest.Pipeline
	trades    *service.TradeService
	registry  *service.Registry
	archiver  *Archiver
	locks     domain.LockManager

	startBlock  uint64
	archiveCron string
	logger      *slog.Logger
}

// NewOrchestrator creates a new Orchestrator that coordinates all pipeline
// sub-systems. The archiver may be nil when cold storage is disabled.
func NewOrchestrator(
	ingestion *ingest.Pipeline,
	trades *service.TradeService,
	registry *service.Registry,
	archiver *Archiver,
	locks domain.LockManager,
	startBlock uint64,
	archiveCron string,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		ingestion:   ingestion,
		trades:      trades,
		registry:    registry,
		archiver:    archiver,
		locks:       locks,
		startBlock:  startBlock,
		archiveCron: archiveCron,
		logger:      logger,
	}
}

// Run starts all sub-pipelines as concurrent goroutines using an errgroup.
// Each goroutine respects ctx cancellation. If any goroutine returns a
// non-context error, the errgroup cancels the shared context and Run returns
// that error.
//
// A distributed lock is taken first so a second mirror replica fails fast
// instead of double-publishing event streams.
func (o *Orchestrator) Run(ctx context.Context) error {
	unlock, err := o.locks.Acquire(ctx, mirrorLockKey, mirrorLockTTL)
	if err != nil {
		return fmt.Errorf("mirror lock: %w", err)
	}
	defer unlock()

	o.logger.Info("pipeline orchestrator starting",
		slog.Uint64("start_block", o.startBlock),
		slog.String("archive_cron", o.archiveCron),
	)

	g, ctx := errgroup.WithContext(ctx)

	// 1. Log ingestion: live subscription plus chunked backfill, deduped.
	g.Go(func() error {
		err := o.ingestion.Run(ctx, o.startBlock)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("ingestion: %w", err)
	})

	// 2. Event consumer: drains the deduplicated event stream into the
	// trade service until the pipeline closes it.
	g.Go(func() error {
		o.logger.Info("starting event consumer")
		err := o.consumeEvents(ctx)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return err
	})

	// 3. Market discovery poller.
	g.Go(func() error {
		o.logger.Info("starting market discovery poller")
		err := o.registry.RunPoller(ctx)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("market poller: %w", err)
	})

	// 4. Archiver on cron schedule, when cold storage is configured.
	if o.archiver != nil {
		g.Go(func() error {
			o.logger.Info("starting archiver cron")
			err := o.archiver.RunCron(ctx, o.archiveCron)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("archiver: %w", err)
		})
	}

	err = g.Wait()
	if err != nil {
		o.logger.Error("pipeline orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}

	o.logger.Info("pipeline orchestrator stopped cleanly")
	return nil
}

// consumeEvents applies each deduplicated event to the trade service. A
// handler error is logged and skipped: one poisoned event must not stall the
// stream behind it.
func (o *Orchestrator) consumeEvents(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-o.ingestion.Events():
			if !ok {
				return domain.ErrStreamClosed
			}
			if err := o.trades.HandleEvent(ctx, ev); err != nil {
				o.logger.Error("event handling failed",
					slog.String("kind", string(ev.Kind())),
					slog.Uint64("market", ev.Market()),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
