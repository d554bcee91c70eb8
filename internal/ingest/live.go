package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
)

// logSinkSize buffers bursts of confirmed logs between subscription reads.
const logSinkSize = 256

// resubscribeBackoff is the pause before reopening a dropped subscription.
const resubscribeBackoff = 2 * time.Second

// LogSubscriber is the slice of the chain client the live tail needs.
type LogSubscriber interface {
	SubscribeLogs(ctx context.Context, sink chan<- types.Log) (ethereum.Subscription, error)
}

// LiveTail maintains an open log subscription and re-establishes it when the
// underlying feed drops. The feed may deliver logs late or, rarely, more
// than once; the dedup cache downstream absorbs redelivery.
type LiveTail struct {
	source LogSubscriber
	logger *slog.Logger

	ready     chan struct{}
	readyOnce sync.Once
}

// NewLiveTail creates a LiveTail over the given subscription source.
func NewLiveTail(source LogSubscriber, logger *slog.Logger) *LiveTail {
	return &LiveTail{
		source: source,
		logger: logger,
		ready:  make(chan struct{}),
	}
}

// Ready is closed once the first subscription is established. Work that must
// not start until the live feed covers newly confirmed blocks waits on it.
func (t *LiveTail) Ready() <-chan struct{} {
	return t.ready
}

// Run subscribes and forwards confirmed logs to emit until the context is
// cancelled. Subscription errors trigger a resubscribe after a short
// backoff rather than terminating the tail.
func (t *LiveTail) Run(ctx context.Context, emit func(types.Log)) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		sink := make(chan types.Log, logSinkSize)
		sub, err := t.source.SubscribeLogs(ctx, sink)
		if err != nil {
			t.logger.Error("live subscription failed, retrying",
				slog.String("error", err.Error()),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(resubscribeBackoff):
			}
			continue
		}

		t.readyOnce.Do(func() { close(t.ready) })
		t.logger.Info("live subscription established")

		if err := t.consume(ctx, sub, sink, emit); err != nil {
			return err
		}

		// Subscription dropped; back off then resubscribe.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(resubscribeBackoff):
		}
	}
}

// consume drains one subscription until it errors or the context ends. A nil
// return means the subscription dropped and the caller should resubscribe.
func (t *LiveTail) consume(ctx context.Context, sub ethereum.Subscription, sink chan types.Log, emit func(types.Log)) error {
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			t.logger.Warn("live subscription dropped",
				slog.String("error", errString(err)),
			)
			return nil
		case vLog := <-sink:
			emit(vLog)
		}
	}
}

func errString(err error) string {
	if err == nil {
		return "closed"
	}
	return err.Error()
}
