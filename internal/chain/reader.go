package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/yifanzh/predmirror/internal/domain"
)

// Caller abstracts the eth_call transport so the reader can be exercised
// against a fake in tests.
type Caller interface {
	CallContract(ctx context.Context, calldata []byte) ([]byte, error)
}

// Reader performs the idempotent point-in-time read calls the mirror needs:
// market count, basics, pool reserves, and account positions.
type Reader struct {
	caller Caller
}

// NewReader creates a Reader over the given call transport.
func NewReader(caller Caller) *Reader {
	return &Reader{caller: caller}
}

func (r *Reader) call(ctx context.Context, method string, args ...any) ([]any, error) {
	calldata, err := MarketABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("chain: pack %s: %w", method, err)
	}

	out, err := r.caller.CallContract(ctx, calldata)
	if err != nil {
		return nil, fmt.Errorf("chain: %s: %w", method, err)
	}

	vals, err := MarketABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("chain: unpack %s: %w", method, err)
	}
	return vals, nil
}

// MarketCount returns the number of markets ever created. Market IDs start
// at 1, so the valid ID range is [1, count].
func (r *Reader) MarketCount(ctx context.Context) (uint64, error) {
	vals, err := r.call(ctx, "marketCount")
	if err != nil {
		return 0, err
	}
	count, ok := vals[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("chain: marketCount: unexpected output type %T", vals[0])
	}
	return count.Uint64(), nil
}

// MarketBasics fetches a market's immutable metadata and lifecycle state.
func (r *Reader) MarketBasics(ctx context.Context, marketID uint64) (domain.Market, error) {
	vals, err := r.call(ctx, "getMarketBasics", new(big.Int).SetUint64(marketID))
	if err != nil {
		return domain.Market{}, err
	}
	if len(vals) != 5 {
		return domain.Market{}, fmt.Errorf("chain: getMarketBasics: want 5 outputs, got %d", len(vals))
	}

	creator, _ := vals[0].(common.Address)
	question, _ := vals[1].(string)
	endTime, _ := vals[2].(*big.Int)
	status, _ := vals[3].(uint8)
	outcome, _ := vals[4].(bool)

	if endTime == nil {
		return domain.Market{}, fmt.Errorf("chain: getMarketBasics %d: missing endTime", marketID)
	}

	return domain.Market{
		ID:       marketID,
		Creator:  creator.Hex(),
		Question: question,
		EndTime:  time.Unix(endTime.Int64(), 0).UTC(),
		Status:   domain.MarketStatus(status),
		Outcome:  outcome,
	}, nil
}

// MarketPools fetches the eight reserve/share fields of a market's pools.
// The snapshot carries its fetch time so downstream consumers can reason
// about staleness.
func (r *Reader) MarketPools(ctx context.Context, marketID uint64) (domain.MarketPools, error) {
	vals, err := r.call(ctx, "getMarketPools", new(big.Int).SetUint64(marketID))
	if err != nil {
		return domain.MarketPools{}, err
	}
	if len(vals) != 8 {
		return domain.MarketPools{}, fmt.Errorf("chain: getMarketPools: want 8 outputs, got %d", len(vals))
	}

	fields := make([]*big.Int, 8)
	for i, v := range vals {
		n, ok := v.(*big.Int)
		if !ok {
			return domain.MarketPools{}, fmt.Errorf("chain: getMarketPools output %d: unexpected type %T", i, v)
		}
		fields[i] = n
	}

	return domain.MarketPools{
		YesPredReserve:     fields[0],
		YesShareReserve:    fields[1],
		NoPredReserve:      fields[2],
		NoShareReserve:     fields[3],
		TotalYesShares:     fields[4],
		TotalNoShares:      fields[5],
		WinningPredPool:    fields[6],
		TotalWinningShares: fields[7],
		FetchedAt:          time.Now().UTC(),
	}, nil
}

// Position fetches an account's shares and claim/refund flags for a market.
func (r *Reader) Position(ctx context.Context, marketID uint64, account string) (domain.Position, error) {
	if !common.IsHexAddress(account) {
		return domain.Position{}, fmt.Errorf("chain: invalid account address %q", account)
	}

	vals, err := r.call(ctx, "positions", new(big.Int).SetUint64(marketID), common.HexToAddress(account))
	if err != nil {
		return domain.Position{}, err
	}
	if len(vals) != 4 {
		return domain.Position{}, fmt.Errorf("chain: positions: want 4 outputs, got %d", len(vals))
	}

	yesShares, _ := vals[0].(*big.Int)
	noShares, _ := vals[1].(*big.Int)
	claimed, _ := vals[2].(bool)
	refunded, _ := vals[3].(bool)

	return domain.Position{
		YesShares: yesShares,
		NoShares:  noShares,
		Claimed:   claimed,
		Refunded:  refunded,
	}, nil
}
