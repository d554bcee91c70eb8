package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/yifanzh/predmirror/internal/domain"
)

// MarketService defines the methods that the market handler requires from the
// service layer. It is declared locally so the handler package does not depend
// on the concrete service implementation.
type MarketService interface {
	GetMarket(ctx context.Context, id uint64) (domain.Market, error)
	ListMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error)
	Count(ctx context.Context) (int64, error)
	GetPosition(ctx context.Context, marketID uint64, account string) (domain.Position, error)
}

// MarketHandler serves market-related HTTP endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger,
	}
}

// marketResponse is the JSON shape of one market, with the status rendered
// as its lowercase name.
type marketResponse struct {
	domain.Market
	Status string `json:"status"`
}

func toMarketResponse(m domain.Market) marketResponse {
	return marketResponse{Market: m, Status: m.Status.String()}
}

// listMarketsResponse wraps the list endpoint output with metadata.
type listMarketsResponse struct {
	Markets []marketResponse `json:"markets"`
	Total   int64            `json:"total"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

// ListMarkets returns mirrored markets with pagination, newest first.
// GET /api/markets?limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	markets, err := h.markets.ListMarkets(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list markets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list markets")
		return
	}

	total, err := h.markets.Count(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: count markets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to count markets")
		return
	}

	out := make([]marketResponse, 0, len(markets))
	for _, m := range markets {
		out = append(out, toMarketResponse(m))
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: out,
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// GetMarket returns a single market by its on-chain ID.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id, err := marketIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	market, err := h.markets.GetMarket(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get market failed",
			slog.Uint64("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get market")
		return
	}

	writeJSON(w, http.StatusOK, toMarketResponse(market))
}

// positionResponse serializes wad share balances as decimal strings.
type positionResponse struct {
	MarketID  uint64 `json:"market_id"`
	Account   string `json:"account"`
	YesShares string `json:"yes_shares"`
	NoShares  string `json:"no_shares"`
	Claimed   bool   `json:"claimed"`
	Refunded  bool   `json:"refunded"`
}

// GetPosition returns an account's live on-chain holdings for a market.
// GET /api/markets/{id}/position?account=0x...
func (h *MarketHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	id, err := marketIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	account := r.URL.Query().Get("account")
	if account == "" {
		writeError(w, http.StatusBadRequest, "missing account parameter")
		return
	}

	pos, err := h.markets.GetPosition(r.Context(), id, account)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: get position failed",
			slog.Uint64("market_id", id),
			slog.String("account", account),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "failed to read position")
		return
	}

	yes, no := "0", "0"
	if pos.YesShares != nil {
		yes = pos.YesShares.String()
	}
	if pos.NoShares != nil {
		no = pos.NoShares.String()
	}
	writeJSON(w, http.StatusOK, positionResponse{
		MarketID:  id,
		Account:   account,
		YesShares: yes,
		NoShares:  no,
		Claimed:   pos.Claimed,
		Refunded:  pos.Refunded,
	})
}
