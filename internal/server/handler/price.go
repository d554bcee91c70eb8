package handler

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/yifanzh/predmirror/internal/domain"
	"github.com/yifanzh/predmirror/internal/service"
)

// PriceService defines what the price handler needs from the service layer.
type PriceService interface {
	GetPrice(ctx context.Context, marketID uint64) (yes, no float64, ts time.Time, err error)
	History(marketID uint64) ([]domain.PricePoint, error)
	Volume(marketID uint64) (float64, error)
	QuoteBuy(marketID uint64, side domain.Side, predIn *big.Int) (service.Quote, error)
	QuoteSell(marketID uint64, side domain.Side, sharesIn *big.Int) (service.Quote, error)
}

// PriceHandler serves price, history, and quote endpoints.
type PriceHandler struct {
	prices PriceService
	logger *slog.Logger
}

// NewPriceHandler creates a PriceHandler with the given service and logger.
func NewPriceHandler(prices PriceService, logger *slog.Logger) *PriceHandler {
	return &PriceHandler{
		prices: prices,
		logger: logger,
	}
}

// GetPrice returns the latest reconciled yes/no price pair for a market.
// GET /api/markets/{id}/price
func (h *PriceHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	id, err := marketIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	yes, no, ts, err := h.prices.GetPrice(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get price failed",
			slog.Uint64("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get price")
		return
	}

	resp := map[string]any{
		"market_id": id,
		"yes_price": yes,
		"no_price":  no,
	}
	if !ts.IsZero() {
		resp["as_of"] = ts.UTC().Format(time.RFC3339Nano)
	}
	if vol, volErr := h.prices.Volume(id); volErr == nil {
		resp["volume"] = vol
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetHistory returns the bounded price series for a market, oldest first.
// GET /api/markets/{id}/history
func (h *PriceHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, err := marketIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	points, err := h.prices.History(id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get history failed",
			slog.Uint64("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"points":    points,
	})
}

// GetQuote simulates a trade against the latest reconciled snapshot.
// GET /api/markets/{id}/quote?side=yes&direction=buy&amount=<wad>
func (h *PriceHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	id, err := marketIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	q := r.URL.Query()

	var side domain.Side
	switch q.Get("side") {
	case "yes":
		side = domain.SideYes
	case "no":
		side = domain.SideNo
	default:
		writeError(w, http.StatusBadRequest, "side must be yes or no")
		return
	}

	amount, ok := new(big.Int).SetString(q.Get("amount"), 10)
	if !ok || amount.Sign() <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be a positive wad integer")
		return
	}

	var quote service.Quote
	switch q.Get("direction") {
	case "buy":
		quote, err = h.prices.QuoteBuy(id, side, amount)
	case "sell":
		quote, err = h.prices.QuoteSell(id, side, amount)
	default:
		writeError(w, http.StatusBadRequest, "direction must be buy or sell")
		return
	}
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: quote failed",
			slog.Uint64("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusConflict, "no reconciled snapshot available yet")
		return
	}

	writeJSON(w, http.StatusOK, quote)
}
