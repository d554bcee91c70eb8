package ingest

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/errgroup"

	"github.com/yifanzh/predmirror/internal/chain"
	"github.com/yifanzh/predmirror/internal/domain"
)

// Source combines the chain-client slices the pipeline's two feeds need.
type Source interface {
	LogFilterer
	LogSubscriber
}

// eventBufferSize decouples the feeds from a momentarily slow consumer.
const eventBufferSize = 256

// Pipeline merges the backfill scanner and the live subscriber into one
// consumer-visible stream of normalized, deduplicated domain events.
//
// The live subscription opens before the backfill starts, so a log confirmed
// while the backfill is still scanning is seen by both feeds and absorbed by
// the dedup cache instead of being lost to the gap between them.
type Pipeline struct {
	backfiller *Backfiller
	live       *LiveTail
	dedup      *Dedup
	out        chan domain.Event
	logger     *slog.Logger
}

// Config holds pipeline construction parameters. The start block is passed
// to Run instead so callers can resolve a resume point after construction.
type Config struct {
	// ChunkSize is the backfill query window in blocks.
	ChunkSize uint64
	// DedupCapacity bounds the shared dedup cache; 0 uses the default.
	DedupCapacity int
}

// NewPipeline wires both feeds over one source and one dedup cache.
func NewPipeline(source Source, cfg Config, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		backfiller: NewBackfiller(source, cfg.ChunkSize, logger),
		live:       NewLiveTail(source, logger),
		dedup:      NewDedup(cfg.DedupCapacity),
		out:        make(chan domain.Event, eventBufferSize),
		logger:     logger,
	}
}

// Events returns the ordered, deduplicated event stream. The channel closes
// when Run returns.
func (p *Pipeline) Events() <-chan domain.Event {
	return p.out
}

// Run drives both feeds until the context is cancelled. Per-log decode
// failures are logged and skipped, never fatal. The configured start block
// controls whether a historical scan happens at all.
func (p *Pipeline) Run(ctx context.Context, startBlock uint64) error {
	defer close(p.out)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := p.live.Run(ctx, func(vLog types.Log) { p.handle(ctx, vLog, "live") })
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if startBlock > 0 {
		g.Go(func() error {
			// The subscription must be open before the backfill captures the
			// head, or logs confirmed between the two would be unreachable.
			select {
			case <-p.live.Ready():
			case <-ctx.Done():
				return nil
			}
			err := p.backfiller.Run(ctx, startBlock, func(vLog types.Log) { p.handle(ctx, vLog, "backfill") })
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	return g.Wait()
}

// handle normalizes one raw log, runs it through the dedup cache, and hands
// it to the consumer.
func (p *Pipeline) handle(ctx context.Context, vLog types.Log, feed string) {
	event, err := chain.DecodeLog(vLog)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownEvent) {
			p.logger.Debug("skipping unrecognized log",
				slog.String("feed", feed),
				slog.Uint64("block", vLog.BlockNumber),
			)
			return
		}
		p.logger.Warn("skipping undecodable log",
			slog.String("feed", feed),
			slog.Uint64("block", vLog.BlockNumber),
			slog.String("error", err.Error()),
		)
		return
	}

	m := event.Meta()
	if m.Synthetic {
		// Known gap: a fabricated identity cannot catch redelivery of the
		// same underlying event.
		p.logger.Warn("event has synthetic identity, dedup weakened",
			slog.String("feed", feed),
			slog.String("kind", string(event.Kind())),
			slog.Uint64("market", event.Market()),
		)
	}

	if !p.dedup.Observe(m.ID) {
		p.logger.Debug("dropping duplicate event",
			slog.String("feed", feed),
			slog.String("event_id", string(m.ID)),
		)
		return
	}

	select {
	case p.out <- event:
	case <-ctx.Done():
	}
}
