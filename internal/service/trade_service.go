package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/yifanzh/predmirror/internal/domain"
)

// TradeService consumes decoded ledger events from the ingestion pipeline:
// it persists them, notifies the affected market view, and fans them out on
// the signal bus.
type TradeService struct {
	trades   domain.TradeStore
	comments domain.CommentStore
	registry *Registry
	bus      domain.SignalBus
	logger   *slog.Logger
}

// NewTradeService creates a TradeService with all required dependencies.
func NewTradeService(
	trades domain.TradeStore,
	comments domain.CommentStore,
	registry *Registry,
	bus domain.SignalBus,
	logger *slog.Logger,
) *TradeService {
	return &TradeService{
		trades:   trades,
		comments: comments,
		registry: registry,
		bus:      bus,
		logger:   logger,
	}
}

// HandleEvent routes one deduplicated event to its handler. Unknown kinds
// are impossible by construction (the decoder only emits the types below).
func (s *TradeService) HandleEvent(ctx context.Context, ev domain.Event) error {
	switch e := ev.(type) {
	case domain.MarketCreatedEvent:
		return s.handleMarketCreated(ctx, e)
	case domain.TradeEvent:
		return s.handleTrade(ctx, e)
	case domain.CommentEvent:
		return s.handleComment(ctx, domain.Comment{
			MarketID:    e.MarketID,
			User:        e.User,
			Content:     e.Content,
			Kind:        domain.EventKindComment,
			TxHash:      e.TxHash,
			BlockNumber: e.BlockNumber,
			LogIndex:    e.LogIndex,
			Timestamp:   e.ObservedAt,
		})
	case domain.DanmakuEvent:
		return s.handleComment(ctx, domain.Comment{
			MarketID:    e.MarketID,
			User:        e.User,
			Content:     e.Content,
			Kind:        domain.EventKindDanmaku,
			TxHash:      e.TxHash,
			BlockNumber: e.BlockNumber,
			LogIndex:    e.LogIndex,
			Timestamp:   e.ObservedAt,
		})
	default:
		return fmt.Errorf("trade_service: unhandled event kind %s", ev.Kind())
	}
}

func (s *TradeService) handleMarketCreated(ctx context.Context, e domain.MarketCreatedEvent) error {
	if _, err := s.registry.Ensure(ctx, e.MarketID); err != nil {
		return fmt.Errorf("trade_service: market created %d: %w", e.MarketID, err)
	}
	return nil
}

func (s *TradeService) handleTrade(ctx context.Context, e domain.TradeEvent) error {
	// The view must exist before the trade is applied; a trade for an
	// unseen market also implies the market exists on chain.
	view, err := s.registry.Ensure(ctx, e.MarketID)
	if err != nil {
		return fmt.Errorf("trade_service: ensure market %d: %w", e.MarketID, err)
	}

	trade := domain.Trade{
		MarketID:    e.MarketID,
		User:        e.User,
		Side:        e.Side,
		Direction:   e.Direction,
		TxHash:      e.TxHash,
		BlockNumber: e.BlockNumber,
		LogIndex:    e.LogIndex,
		Timestamp:   e.ObservedAt,
	}
	if e.Direction == domain.TradeBuy {
		trade.PredAmount = e.AmountIn
		trade.ShareAmount = e.AmountOut
	} else {
		trade.PredAmount = e.AmountOut
		trade.ShareAmount = e.AmountIn
	}

	if err := s.trades.InsertBatch(ctx, []domain.Trade{trade}); err != nil {
		return fmt.Errorf("trade_service: persist trade: %w", err)
	}

	// Schedules the delayed pools re-fetch; prices update only once the
	// reconciled snapshot lands.
	view.OnTrade(e)

	evt, _ := json.Marshal(map[string]any{
		"event":     "trade",
		"market_id": e.MarketID,
		"account":   e.User,
		"side":      e.Side.String(),
		"direction": string(e.Direction),
		"timestamp": e.ObservedAt.Format(time.RFC3339Nano),
	})
	if pubErr := s.bus.Publish(ctx, "trades", evt); pubErr != nil {
		s.logger.WarnContext(ctx, "trade_service: publish trade failed",
			slog.Uint64("market", e.MarketID),
			slog.String("error", pubErr.Error()),
		)
	}

	return nil
}

func (s *TradeService) handleComment(ctx context.Context, c domain.Comment) error {
	if err := s.comments.Insert(ctx, c); err != nil {
		return fmt.Errorf("trade_service: persist %s: %w", c.Kind, err)
	}

	channel := "comments"
	if c.Kind == domain.EventKindDanmaku {
		channel = "danmaku"
	}

	evt, _ := json.Marshal(map[string]any{
		"event":     string(c.Kind),
		"market_id": c.MarketID,
		"account":   c.User,
		"content":   c.Content,
		"timestamp": c.Timestamp.Format(time.RFC3339Nano),
	})
	if pubErr := s.bus.Publish(ctx, channel, evt); pubErr != nil {
		s.logger.WarnContext(ctx, "trade_service: publish comment failed",
			slog.Uint64("market", c.MarketID),
			slog.String("error", pubErr.Error()),
		)
	}

	return nil
}

// ListTrades returns persisted trades for a market, newest first.
func (s *TradeService) ListTrades(ctx context.Context, marketID uint64, opts domain.ListOpts) ([]domain.Trade, error) {
	trades, err := s.trades.ListByMarket(ctx, marketID, opts)
	if err != nil {
		return nil, fmt.Errorf("trade_service: list trades: %w", err)
	}
	return trades, nil
}

// ListComments returns persisted comments or danmaku for a market.
func (s *TradeService) ListComments(ctx context.Context, marketID uint64, kind domain.EventKind, opts domain.ListOpts) ([]domain.Comment, error) {
	comments, err := s.comments.ListByMarket(ctx, marketID, kind, opts)
	if err != nil {
		return nil, fmt.Errorf("trade_service: list comments: %w", err)
	}
	return comments, nil
}
