package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/yifanzh/predmirror/internal/domain"
)

// PositionReader reads an account's holdings from the contract.
type PositionReader interface {
	Position(ctx context.Context, marketID uint64, account string) (domain.Position, error)
}

// MarketService is the read path for market metadata: cache first, store as
// fallback, plus direct contract reads for account positions.
type MarketService struct {
	markets   domain.MarketStore
	cache     domain.MarketCache
	positions PositionReader
	logger    *slog.Logger
}

// NewMarketService creates a MarketService with all required dependencies.
func NewMarketService(
	markets domain.MarketStore,
	cache domain.MarketCache,
	positions PositionReader,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		markets:   markets,
		cache:     cache,
		positions: positions,
		logger:    logger,
	}
}

// GetMarket retrieves a market by ID, checking the cache first and falling
// back to the persistent store on a cache miss.
func (s *MarketService) GetMarket(ctx context.Context, id uint64) (domain.Market, error) {
	m, err := s.cache.Get(ctx, id)
	if err == nil {
		return m, nil
	}

	m, err = s.markets.Get(ctx, id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get %d: %w", id, err)
	}

	// Back-fill cache; log but do not fail on cache write errors.
	if cacheErr := s.cache.Set(ctx, m); cacheErr != nil {
		s.logger.WarnContext(ctx, "market_service: cache set failed",
			slog.Uint64("market_id", id),
			slog.String("error", cacheErr.Error()),
		)
	}

	return m, nil
}

// ListMarkets returns markets from the persistent store, newest first.
func (s *MarketService) ListMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	markets, err := s.markets.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list: %w", err)
	}
	return markets, nil
}

// Count returns the total number of mirrored markets.
func (s *MarketService) Count(ctx context.Context) (int64, error) {
	count, err := s.markets.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("market_service: count: %w", err)
	}
	return count, nil
}

// GetPosition reads an account's live holdings for a market straight from
// the contract; positions are never mirrored locally.
func (s *MarketService) GetPosition(ctx context.Context, marketID uint64, account string) (domain.Position, error) {
	if s.positions == nil {
		return domain.Position{}, fmt.Errorf("market_service: position %d/%s: no chain endpoint configured", marketID, account)
	}
	pos, err := s.positions.Position(ctx, marketID, account)
	if err != nil {
		return domain.Position{}, fmt.Errorf("market_service: position %d/%s: %w", marketID, account, err)
	}
	return pos, nil
}
