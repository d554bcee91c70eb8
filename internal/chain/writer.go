package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/yifanzh/predmirror/internal/domain"
)

// TxSubmitter signs and submits a prepared contract call. The mirror never
// holds key material; submission is delegated to an external wallet
// collaborator behind this interface.
type TxSubmitter interface {
	Submit(ctx context.Context, to common.Address, calldata []byte) error
}

// Writer packs calldata for the contract's state-changing methods and hands it
// to a TxSubmitter. Calls are fire-and-forget: the resulting trade comes back
// through the event stream like any other, so the writer never waits for a
// receipt.
type Writer struct {
	contract  common.Address
	submitter TxSubmitter
	logger    *slog.Logger
}

// NewWriter creates a Writer for the given contract and submitter.
func NewWriter(contract common.Address, submitter TxSubmitter, logger *slog.Logger) *Writer {
	return &Writer{
		contract:  contract,
		submitter: submitter,
		logger:    logger.With(slog.String("component", "chain_writer")),
	}
}

// Buy packs a buyYes/buyNo call spending predIn with slippage floor
// minSharesOut and submits it.
func (w *Writer) Buy(ctx context.Context, marketID uint64, side domain.Side, predIn, minSharesOut *big.Int) error {
	method := "buyNo"
	if side == domain.SideYes {
		method = "buyYes"
	}
	return w.submit(ctx, method, new(big.Int).SetUint64(marketID), predIn, minSharesOut)
}

// Sell packs a sellYes/sellNo call selling sharesIn with slippage floor
// minPredOut and submits it.
func (w *Writer) Sell(ctx context.Context, marketID uint64, side domain.Side, sharesIn, minPredOut *big.Int) error {
	method := "sellNo"
	if side == domain.SideYes {
		method = "sellYes"
	}
	return w.submit(ctx, method, new(big.Int).SetUint64(marketID), sharesIn, minPredOut)
}

// SendComment submits a comment on the market.
func (w *Writer) SendComment(ctx context.Context, marketID uint64, content string) error {
	return w.submit(ctx, "sendComment", new(big.Int).SetUint64(marketID), content)
}

// SendDanmaku submits a danmaku message on the market.
func (w *Writer) SendDanmaku(ctx context.Context, marketID uint64, content string) error {
	return w.submit(ctx, "sendDanmaku", new(big.Int).SetUint64(marketID), content)
}

// ClaimWinnings submits a winnings claim for a resolved market.
func (w *Writer) ClaimWinnings(ctx context.Context, marketID uint64) error {
	return w.submit(ctx, "claimWinnings", new(big.Int).SetUint64(marketID))
}

// Refund submits a refund claim for a cancelled market.
func (w *Writer) Refund(ctx context.Context, marketID uint64) error {
	return w.submit(ctx, "refund", new(big.Int).SetUint64(marketID))
}

func (w *Writer) submit(ctx context.Context, method string, args ...any) error {
	calldata, err := PackCall(method, args...)
	if err != nil {
		return err
	}
	if err := w.submitter.Submit(ctx, w.contract, calldata); err != nil {
		return fmt.Errorf("chain: submit %s: %w", method, err)
	}
	w.logger.InfoContext(ctx, "call submitted",
		slog.String("method", method),
		slog.Int("calldata_bytes", len(calldata)),
	)
	return nil
}

// PackCall ABI-encodes a contract method call. Exposed so callers can prepare
// calldata for an out-of-process submitter without going through a Writer.
func PackCall(method string, args ...any) ([]byte, error) {
	calldata, err := MarketABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("chain: pack %s: %w", method, err)
	}
	return calldata, nil
}
