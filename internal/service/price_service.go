package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/yifanzh/predmirror/internal/amm"
	"github.com/yifanzh/predmirror/internal/domain"
)

// PriceService is the read path for prices, history, and trade quotes. The
// in-memory views are the source of truth; the Redis price cache serves
// processes that do not host the mirror pipeline.
type PriceService struct {
	registry   *Registry
	priceCache domain.PriceCache
	logger     *slog.Logger
}

// NewPriceService creates a PriceService with all required dependencies.
func NewPriceService(registry *Registry, priceCache domain.PriceCache, logger *slog.Logger) *PriceService {
	return &PriceService{
		registry:   registry,
		priceCache: priceCache,
		logger:     logger,
	}
}

// GetPrice returns the latest yes/no price pair for a market. A locally
// hosted view answers directly; otherwise the Redis cache is consulted.
func (s *PriceService) GetPrice(ctx context.Context, marketID uint64) (yes, no float64, ts time.Time, err error) {
	if view, ok := s.registry.Get(marketID); ok {
		yes, no = view.Price()
		if pools, ok := view.Snapshot(); ok {
			return yes, no, pools.FetchedAt, nil
		}
		return yes, no, time.Time{}, nil
	}

	yes, no, ts, err = s.priceCache.GetPrice(ctx, marketID)
	if err != nil {
		return 0, 0, time.Time{}, fmt.Errorf("price_service: get price %d: %w", marketID, err)
	}
	return yes, no, ts, nil
}

// History returns the bounded price series for a market, oldest first.
func (s *PriceService) History(marketID uint64) ([]domain.PricePoint, error) {
	view, ok := s.registry.Get(marketID)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return view.History(), nil
}

// Volume returns the cumulative traded pred volume in display tokens.
func (s *PriceService) Volume(marketID uint64) (float64, error) {
	view, ok := s.registry.Get(marketID)
	if !ok {
		return 0, domain.ErrNotFound
	}
	return view.Volume(), nil
}

// Quote is a simulated trade outcome against the latest reconciled snapshot.
type Quote struct {
	MarketID  uint64    `json:"market_id"`
	Side      string    `json:"side"`
	Direction string    `json:"direction"`
	AmountIn  string    `json:"amount_in"`
	AmountOut string    `json:"amount_out"`
	AsOf      time.Time `json:"as_of"`
}

// QuoteBuy predicts sharesOut for spending predIn wad on one side of the
// market, using the last reconciled snapshot. The snapshot may be slightly
// stale; callers treat the quote as an estimate, never a commitment.
func (s *PriceService) QuoteBuy(marketID uint64, side domain.Side, predIn *big.Int) (Quote, error) {
	pools, err := s.snapshot(marketID)
	if err != nil {
		return Quote{}, err
	}
	out := amm.SimulateBuySide(pools, side, predIn)
	return Quote{
		MarketID:  marketID,
		Side:      side.String(),
		Direction: string(domain.TradeBuy),
		AmountIn:  predIn.String(),
		AmountOut: out.String(),
		AsOf:      pools.FetchedAt,
	}, nil
}

// QuoteSell predicts predOut for returning sharesIn wad to one side of the
// market. A zero amount out means the pool cannot pay at this size.
func (s *PriceService) QuoteSell(marketID uint64, side domain.Side, sharesIn *big.Int) (Quote, error) {
	pools, err := s.snapshot(marketID)
	if err != nil {
		return Quote{}, err
	}
	out := amm.SimulateSellSide(pools, side, sharesIn)
	return Quote{
		MarketID:  marketID,
		Side:      side.String(),
		Direction: string(domain.TradeSell),
		AmountIn:  sharesIn.String(),
		AmountOut: out.String(),
		AsOf:      pools.FetchedAt,
	}, nil
}

func (s *PriceService) snapshot(marketID uint64) (domain.MarketPools, error) {
	view, ok := s.registry.Get(marketID)
	if !ok {
		return domain.MarketPools{}, domain.ErrNotFound
	}
	pools, ok := view.Snapshot()
	if !ok {
		return domain.MarketPools{}, fmt.Errorf("price_service: market %d has no reconciled snapshot yet", marketID)
	}
	return pools, nil
}
