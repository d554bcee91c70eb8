// Package service coordinates the mirror's market views: per-market
// reconciliation, price history, persistence, and fan-out to caches and the
// signal bus.
package service

import (
	"context"
	"log/slog"
	"math/big"
	"sync"

	"github.com/yifanzh/predmirror/internal/amm"
	"github.com/yifanzh/predmirror/internal/domain"
	"github.com/yifanzh/predmirror/internal/history"
	"github.com/yifanzh/predmirror/internal/reconcile"
)

// PublishFunc receives every fresh reconciled price for fan-out (price cache,
// signal bus, websocket clients).
type PublishFunc func(market domain.Market, yes, no float64, pools domain.MarketPools, volume float64)

// MarketView is the live in-memory mirror of one market: its metadata, its
// reconciliation machine, and its bounded price series. All derived state
// flows from reconciled pool snapshots; trade events only trigger re-fetches.
type MarketView struct {
	mu     sync.RWMutex
	market domain.Market

	recon *reconcile.Reconciler
	hist  *history.Aggregator
}

// NewMarketView builds the view for one market and wires the reconciler's
// freshness callback into the history aggregator and the publish hook. The
// first fresh snapshot seeds the price series.
func NewMarketView(
	market domain.Market,
	fetcher reconcile.PoolsFetcher,
	reconCfg reconcile.Config,
	histCfg history.Config,
	publish PublishFunc,
	logger *slog.Logger,
) *MarketView {
	v := &MarketView{
		market: market,
		hist:   history.New(histCfg),
	}

	onFresh := func(pools domain.MarketPools, volume *big.Int) {
		yes, no := amm.Price(pools)
		vol := amm.FromWad(volume)
		// The first snapshot anchors the chart, so the baseline points carry
		// the observed price and launch reserves rather than a fallback.
		v.hist.Seed(v.Market().EndTime, yes, initialVolume(pools))
		v.hist.Record(yes, vol)
		if publish != nil {
			publish(v.Market(), yes, no, pools, vol)
		}
	}

	v.recon = reconcile.New(market.ID, fetcher, reconCfg, onFresh, logger)
	return v
}

// Seed installs the synthetic baseline price points if the first snapshot has
// not already done so. Called at registration; it only has an effect for
// markets whose initial pools fetch failed.
func (v *MarketView) Seed() {
	m := v.Market()
	yes, vol := 0.5, 0.0
	if pools, ok := v.recon.Snapshot(); ok {
		yes, _ = amm.Price(pools)
		vol = initialVolume(pools)
	}
	v.hist.Seed(m.EndTime, yes, vol)
}

// Prime fetches the initial pools snapshot immediately, bypassing the
// reconciliation delays.
func (v *MarketView) Prime(ctx context.Context) error {
	return v.recon.Refresh(ctx)
}

// Market returns a copy of the current metadata.
func (v *MarketView) Market() domain.Market {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.market
}

// SetMarket replaces the metadata after a poller re-read (status or outcome
// changes come only from the ledger).
func (v *MarketView) SetMarket(m domain.Market) {
	v.mu.Lock()
	v.market = m
	v.mu.Unlock()
}

// OnTrade forwards an observed trade to the reconciliation machine.
func (v *MarketView) OnTrade(ev domain.TradeEvent) {
	v.recon.OnTrade(ev)
}

// Snapshot returns the last reconciled pools snapshot, if any.
func (v *MarketView) Snapshot() (domain.MarketPools, bool) {
	return v.recon.Snapshot()
}

// Price returns the implied yes/no probabilities from the last snapshot, or
// the 0.5/0.5 fallback when none has been reconciled yet.
func (v *MarketView) Price() (yes, no float64) {
	pools, ok := v.recon.Snapshot()
	if !ok {
		return 0.5, 0.5
	}
	return amm.Price(pools)
}

// Volume returns the cumulative traded pred volume in display tokens.
func (v *MarketView) Volume() float64 {
	return amm.FromWad(v.recon.Volume())
}

// History returns a copy of the price series, oldest first.
func (v *MarketView) History() []domain.PricePoint {
	return v.hist.Points()
}

// Close tears down the reconciler. Outstanding cycles are discarded.
func (v *MarketView) Close() {
	v.recon.Close()
}

// initialVolume derives the chart's baseline volume from the pred reserves
// the market launched with.
func initialVolume(pools domain.MarketPools) float64 {
	total := new(big.Int)
	if pools.YesPredReserve != nil {
		total.Add(total, pools.YesPredReserve)
	}
	if pools.NoPredReserve != nil {
		total.Add(total, pools.NoPredReserve)
	}
	return amm.FromWad(total)
}
