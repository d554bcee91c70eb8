package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/yifanzh/predmirror/internal/domain"
)

// TradeService defines what the trade handler needs from the service layer.
type TradeService interface {
	ListTrades(ctx context.Context, marketID uint64, opts domain.ListOpts) ([]domain.Trade, error)
	ListComments(ctx context.Context, marketID uint64, kind domain.EventKind, opts domain.ListOpts) ([]domain.Comment, error)
}

// TradeHandler serves persisted trade, comment, and danmaku endpoints.
type TradeHandler struct {
	trades TradeService
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler with the given service and logger.
func NewTradeHandler(trades TradeService, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		trades: trades,
		logger: logger,
	}
}

// tradeResponse serializes wad amounts as decimal strings.
type tradeResponse struct {
	ID          int64  `json:"id"`
	MarketID    uint64 `json:"market_id"`
	Account     string `json:"account"`
	Side        string `json:"side"`
	Direction   string `json:"direction"`
	PredAmount  string `json:"pred_amount"`
	ShareAmount string `json:"share_amount"`
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
	Timestamp   string `json:"timestamp"`
}

// ListTrades returns persisted trades for a market, newest first.
// GET /api/markets/{id}/trades?limit=50&offset=0
func (h *TradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	id, err := marketIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}
	opts := parseListOpts(r)

	trades, err := h.trades.ListTrades(r.Context(), id, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list trades failed",
			slog.Uint64("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}

	out := make([]tradeResponse, 0, len(trades))
	for _, t := range trades {
		pred, share := "0", "0"
		if t.PredAmount != nil {
			pred = t.PredAmount.String()
		}
		if t.ShareAmount != nil {
			share = t.ShareAmount.String()
		}
		out = append(out, tradeResponse{
			ID:          t.ID,
			MarketID:    t.MarketID,
			Account:     t.User,
			Side:        t.Side.String(),
			Direction:   string(t.Direction),
			PredAmount:  pred,
			ShareAmount: share,
			TxHash:      t.TxHash,
			BlockNumber: t.BlockNumber,
			Timestamp:   t.Timestamp.UTC().Format(time.RFC3339Nano),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"trades":    out,
		"limit":     opts.Limit,
		"offset":    opts.Offset,
	})
}

// ListComments returns persisted comments for a market.
// GET /api/markets/{id}/comments?limit=50&offset=0
func (h *TradeHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	h.listByKind(w, r, domain.EventKindComment, "comments")
}

// ListDanmaku returns persisted danmaku overlays for a market.
// GET /api/markets/{id}/danmaku?limit=50&offset=0
func (h *TradeHandler) ListDanmaku(w http.ResponseWriter, r *http.Request) {
	h.listByKind(w, r, domain.EventKindDanmaku, "danmaku")
}

func (h *TradeHandler) listByKind(w http.ResponseWriter, r *http.Request, kind domain.EventKind, field string) {
	id, err := marketIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}
	opts := parseListOpts(r)

	comments, err := h.trades.ListComments(r.Context(), id, kind, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list comments failed",
			slog.Uint64("market_id", id),
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list "+field)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		field:       comments,
		"limit":     opts.Limit,
		"offset":    opts.Offset,
	})
}
