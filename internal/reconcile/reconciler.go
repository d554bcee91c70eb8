// Package reconcile re-reads authoritative market state after observed trade
// events. A trade log is informational only; the mutated reserves must be
// fetched from the contract, so each market runs a small state machine:
//
//	Idle -> Scheduled -> Fetching -> Settling -> Idle
//
// Scheduled waits out the fetch delay so the ledger's read path can settle;
// Settling waits again after the fetch to dodge read-after-write races on
// eventually-consistent endpoints. Re-fetches are serialized per market: a
// trade observed while a cycle is in flight only bumps the volume counter,
// because the in-flight fetch reads the latest state anyway.
package reconcile

import (
	"context"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/yifanzh/predmirror/internal/domain"
)

// State is the reconciliation phase of one market.
type State int

const (
	StateIdle State = iota
	StateScheduled
	StateFetching
	StateSettling
)

// String returns the lowercase phase name for logs.
func (s State) String() string {
	switch s {
	case StateScheduled:
		return "scheduled"
	case StateFetching:
		return "fetching"
	case StateSettling:
		return "settling"
	default:
		return "idle"
	}
}

// PoolsFetcher is the slice of the chain reader the reconciler needs.
type PoolsFetcher interface {
	MarketPools(ctx context.Context, marketID uint64) (domain.MarketPools, error)
}

// Config holds the two delays of the reconciliation cycle.
type Config struct {
	// FetchDelay is the pause between observing a trade and re-reading the
	// pools.
	FetchDelay time.Duration
	// SettleDelay is the pause between a successful fetch and declaring the
	// snapshot fresh.
	SettleDelay time.Duration
}

// FreshFunc receives each fresh snapshot together with the cumulative traded
// pred volume (wad) observed so far for the market.
type FreshFunc func(pools domain.MarketPools, volume *big.Int)

// Reconciler owns one market's snapshot, volume counter, and reconciliation
// state. All mutation happens under its mutex; consumers only ever see whole
// replaced snapshots.
type Reconciler struct {
	marketID uint64
	fetcher  PoolsFetcher
	cfg      Config
	onFresh  FreshFunc
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	state    State
	volume   *big.Int
	snapshot *domain.MarketPools
}

// New creates a Reconciler for one market. The returned value owns a
// lifecycle context; Close tears down any pending timers and in-flight
// fetches.
func New(marketID uint64, fetcher PoolsFetcher, cfg Config, onFresh FreshFunc, logger *slog.Logger) *Reconciler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Reconciler{
		marketID: marketID,
		fetcher:  fetcher,
		cfg:      cfg,
		onFresh:  onFresh,
		logger:   logger.With(slog.Uint64("market", marketID)),
		ctx:      ctx,
		cancel:   cancel,
		state:    StateIdle,
		volume:   new(big.Int),
	}
}

// OnTrade accumulates the trade's pred amount into the running volume and
// schedules a delayed pools re-fetch. If a cycle is already in flight the
// schedule is dropped; the in-flight fetch will observe the newer state.
func (r *Reconciler) OnTrade(ev domain.TradeEvent) {
	r.mu.Lock()
	if amount := ev.PredAmount(); amount != nil {
		r.volume.Add(r.volume, amount)
	}

	if r.state != StateIdle {
		state := r.state
		r.mu.Unlock()
		r.logger.Debug("reconciliation already in flight, trade merged",
			slog.String("state", state.String()),
		)
		return
	}

	r.state = StateScheduled
	r.mu.Unlock()

	go r.cycle()
}

// Refresh fetches the pools immediately, bypassing both delays. Used to
// establish the initial snapshot when a market enters the registry.
func (r *Reconciler) Refresh(ctx context.Context) error {
	pools, err := r.fetcher.MarketPools(ctx, r.marketID)
	if err != nil {
		return err
	}
	r.publish(pools)
	return nil
}

// cycle runs one Scheduled -> Fetching -> Settling pass. Any cancellation
// returns the machine to Idle; the stale snapshot stays in use and the next
// trade observation starts a new cycle.
func (r *Reconciler) cycle() {
	if !r.sleep(r.cfg.FetchDelay) {
		r.toIdle()
		return
	}

	r.setState(StateFetching)

	pools, err := r.fetcher.MarketPools(r.ctx, r.marketID)
	if err != nil {
		// Stale snapshot remains in use until the next cycle succeeds.
		r.logger.Warn("pools re-fetch failed, keeping stale snapshot",
			slog.String("error", err.Error()),
		)
		r.toIdle()
		return
	}

	r.setState(StateSettling)

	if !r.sleep(r.cfg.SettleDelay) {
		// Torn down mid-settle: discarding the fetched snapshot is as
		// correct as applying it, since the next observation reconciles.
		r.toIdle()
		return
	}

	r.publish(pools)
}

// publish atomically replaces the snapshot, returns to Idle, and notifies
// the freshness callback outside the lock.
func (r *Reconciler) publish(pools domain.MarketPools) {
	r.mu.Lock()
	r.snapshot = &pools
	r.state = StateIdle
	volume := new(big.Int).Set(r.volume)
	r.mu.Unlock()

	if r.onFresh != nil {
		r.onFresh(pools, volume)
	}
}

// sleep waits d or returns false when the reconciler is torn down first.
func (r *Reconciler) sleep(d time.Duration) bool {
	if d <= 0 {
		return r.ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-r.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (r *Reconciler) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

func (r *Reconciler) toIdle() {
	r.setState(StateIdle)
}

// Snapshot returns the last successfully reconciled snapshot, if any.
func (r *Reconciler) Snapshot() (domain.MarketPools, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.snapshot == nil {
		return domain.MarketPools{}, false
	}
	return *r.snapshot, true
}

// Volume returns a copy of the cumulative traded pred volume in wad.
func (r *Reconciler) Volume() *big.Int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return new(big.Int).Set(r.volume)
}

// State returns the current reconciliation phase.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Close cancels pending timers and in-flight fetches. Safe to call more
// than once.
func (r *Reconciler) Close() {
	r.cancel()
}
