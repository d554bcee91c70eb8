package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/yifanzh/predmirror/internal/domain"
	"github.com/yifanzh/predmirror/internal/history"
	"github.com/yifanzh/predmirror/internal/reconcile"
)

// ChainReader is the slice of the contract read API the registry needs.
type ChainReader interface {
	MarketCount(ctx context.Context) (uint64, error)
	MarketBasics(ctx context.Context, marketID uint64) (domain.Market, error)
	MarketPools(ctx context.Context, marketID uint64) (domain.MarketPools, error)
}

// Notifier forwards operator alerts. Implemented by notify.Notifier.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// RegistryConfig tunes the market registry.
type RegistryConfig struct {
	// PollInterval is how often marketCount and market statuses are
	// re-read from the contract.
	PollInterval time.Duration

	Reconcile reconcile.Config
	History   history.Config
}

// Registry tracks one MarketView per known market. It discovers markets two
// ways: MarketCreated events from the ingestion pipeline, and a periodic
// marketCount poll that also refreshes statuses of markets already tracked.
type Registry struct {
	reader     ChainReader
	markets    domain.MarketStore
	cache      domain.MarketCache
	priceCache domain.PriceCache
	bus        domain.SignalBus
	notifier   Notifier
	cfg        RegistryConfig
	logger     *slog.Logger

	mu    sync.RWMutex
	views map[uint64]*MarketView
}

// NewRegistry creates an empty registry.
func NewRegistry(
	reader ChainReader,
	markets domain.MarketStore,
	cache domain.MarketCache,
	priceCache domain.PriceCache,
	bus domain.SignalBus,
	notifier Notifier,
	cfg RegistryConfig,
	logger *slog.Logger,
) *Registry {
	return &Registry{
		reader:     reader,
		markets:    markets,
		cache:      cache,
		priceCache: priceCache,
		bus:        bus,
		notifier:   notifier,
		cfg:        cfg,
		logger:     logger,
		views:      make(map[uint64]*MarketView),
	}
}

// Get returns the view for a tracked market.
func (r *Registry) Get(marketID uint64) (*MarketView, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.views[marketID]
	return v, ok
}

// All returns the tracked views in no particular order.
func (r *Registry) All() []*MarketView {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*MarketView, 0, len(r.views))
	for _, v := range r.views {
		out = append(out, v)
	}
	return out
}

// Len reports the number of tracked markets.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.views)
}

// Ensure returns the view for marketID, creating it on first sight: the
// market's basics are read from the contract, persisted, and a view is
// built, seeded, and primed with an initial pools snapshot.
func (r *Registry) Ensure(ctx context.Context, marketID uint64) (*MarketView, error) {
	if v, ok := r.Get(marketID); ok {
		return v, nil
	}

	market, err := r.reader.MarketBasics(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("registry: read market %d basics: %w", marketID, err)
	}

	r.mu.Lock()
	if v, ok := r.views[marketID]; ok {
		r.mu.Unlock()
		return v, nil
	}
	view := NewMarketView(market, r.reader, r.cfg.Reconcile, r.cfg.History, r.publish, r.logger)
	r.views[marketID] = view
	r.mu.Unlock()

	if err := r.markets.Upsert(ctx, market); err != nil {
		r.logger.Warn("registry: persist market failed",
			slog.Uint64("market", marketID),
			slog.String("error", err.Error()),
		)
	}
	if err := r.cache.Set(ctx, market); err != nil {
		r.logger.Warn("registry: cache market failed",
			slog.Uint64("market", marketID),
			slog.String("error", err.Error()),
		)
	}

	if err := view.Prime(ctx); err != nil {
		// The view still works; the first reconciled trade will fill it.
		r.logger.Warn("registry: initial pools fetch failed",
			slog.Uint64("market", marketID),
			slog.String("error", err.Error()),
		)
	}
	// Priming seeds the series from the first snapshot; this only installs
	// the fallback baseline when the fetch above failed.
	view.Seed()

	r.logger.Info("registry: tracking market",
		slog.Uint64("market", marketID),
		slog.String("question", market.Question),
	)
	return view, nil
}

// RunPoller re-reads marketCount on a ticker, ensuring newly created markets
// are tracked even when their MarketCreated event was missed, and refreshes
// the metadata of tracked markets so resolutions and cancellations are
// mirrored. Blocks until ctx is cancelled.
func (r *Registry) RunPoller(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	// One pass at startup so the registry is warm before the first tick.
	r.pollOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.pollOnce(ctx)
		}
	}
}

func (r *Registry) pollOnce(ctx context.Context) {
	count, err := r.reader.MarketCount(ctx)
	if err != nil {
		r.logger.Warn("registry: marketCount poll failed", slog.String("error", err.Error()))
		return
	}

	// Market IDs are 1-based and dense.
	for id := uint64(1); id <= count; id++ {
		if _, ok := r.Get(id); ok {
			continue
		}
		if _, err := r.Ensure(ctx, id); err != nil {
			r.logger.Warn("registry: ensure market failed",
				slog.Uint64("market", id),
				slog.String("error", err.Error()),
			)
		}
	}

	r.refreshStatuses(ctx)
}

// refreshStatuses re-reads basics for tracked markets whose lifecycle can
// still change, so resolved/cancelled transitions propagate.
func (r *Registry) refreshStatuses(ctx context.Context) {
	for _, v := range r.All() {
		m := v.Market()
		if m.Status != domain.MarketStatusActive {
			continue
		}

		fresh, err := r.reader.MarketBasics(ctx, m.ID)
		if err != nil {
			r.logger.Warn("registry: status refresh failed",
				slog.Uint64("market", m.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if fresh.Status == m.Status {
			continue
		}

		v.SetMarket(fresh)
		if err := r.markets.Upsert(ctx, fresh); err != nil {
			r.logger.Warn("registry: persist status change failed",
				slog.Uint64("market", m.ID),
				slog.String("error", err.Error()),
			)
		}
		if err := r.cache.Invalidate(ctx, m.ID); err != nil {
			r.logger.Warn("registry: cache invalidate failed",
				slog.Uint64("market", m.ID),
				slog.String("error", err.Error()),
			)
		}
		r.logger.Info("registry: market status changed",
			slog.Uint64("market", m.ID),
			slog.String("status", fresh.Status.String()),
		)

		if r.notifier != nil {
			event := "market_" + fresh.Status.String()
			title := fmt.Sprintf("Market %d %s", m.ID, fresh.Status.String())
			if err := r.notifier.Notify(ctx, event, title, fresh.Question); err != nil {
				r.logger.Warn("registry: notify failed",
					slog.Uint64("market", m.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// publish fans a fresh reconciled price out to the price cache and the
// signal bus. Cache or bus failures are logged, never fatal: the in-memory
// view remains the source of truth for the API.
func (r *Registry) publish(market domain.Market, yes, no float64, pools domain.MarketPools, volume float64) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	now := time.Now().UTC()
	if err := r.priceCache.SetPrice(ctx, market.ID, yes, no, now); err != nil {
		r.logger.Warn("registry: price cache set failed",
			slog.Uint64("market", market.ID),
			slog.String("error", err.Error()),
		)
	}

	evt, _ := json.Marshal(map[string]any{
		"event":     "price_update",
		"market_id": market.ID,
		"yes_price": yes,
		"no_price":  no,
		"volume":    volume,
		"timestamp": now.Format(time.RFC3339Nano),
	})
	if err := r.bus.Publish(ctx, "prices", evt); err != nil {
		r.logger.Warn("registry: publish price update failed",
			slog.Uint64("market", market.ID),
			slog.String("error", err.Error()),
		)
	}
	if err := r.bus.StreamAppend(ctx, "stream:prices", evt); err != nil {
		r.logger.Warn("registry: stream append failed",
			slog.Uint64("market", market.ID),
			slog.String("error", err.Error()),
		)
	}
}

// Close tears down every view.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.views {
		v.Close()
	}
	r.views = make(map[uint64]*MarketView)
}
