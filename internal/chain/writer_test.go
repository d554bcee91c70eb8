package chain

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yifanzh/predmirror/internal/domain"
)

type mockSubmitter struct {
	to       common.Address
	calldata []byte
	err      error
}

func (m *mockSubmitter) Submit(_ context.Context, to common.Address, calldata []byte) error {
	m.to = to
	m.calldata = calldata
	return m.err
}

// unpackCall splits submitted calldata back into its method and arguments.
func unpackCall(t *testing.T, calldata []byte) (string, []any) {
	t.Helper()
	require.GreaterOrEqual(t, len(calldata), 4)

	method, err := MarketABI.MethodById(calldata[:4])
	require.NoError(t, err)

	args, err := method.Inputs.Unpack(calldata[4:])
	require.NoError(t, err)
	return method.Name, args
}

func newTestWriter(sub TxSubmitter) (*Writer, common.Address) {
	contract := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewWriter(contract, sub, logger), contract
}

func TestWriterBuySell(t *testing.T) {
	testCases := []struct {
		name       string
		call       func(w *Writer) error
		wantMethod string
		wantAmount *big.Int
		wantFloor  *big.Int
	}{
		{
			name: "buy yes",
			call: func(w *Writer) error {
				return w.Buy(context.Background(), 7, domain.SideYes, big.NewInt(100), big.NewInt(90))
			},
			wantMethod: "buyYes",
			wantAmount: big.NewInt(100),
			wantFloor:  big.NewInt(90),
		},
		{
			name: "buy no",
			call: func(w *Writer) error {
				return w.Buy(context.Background(), 7, domain.SideNo, big.NewInt(100), big.NewInt(90))
			},
			wantMethod: "buyNo",
			wantAmount: big.NewInt(100),
			wantFloor:  big.NewInt(90),
		},
		{
			name: "sell yes",
			call: func(w *Writer) error {
				return w.Sell(context.Background(), 7, domain.SideYes, big.NewInt(50), big.NewInt(40))
			},
			wantMethod: "sellYes",
			wantAmount: big.NewInt(50),
			wantFloor:  big.NewInt(40),
		},
		{
			name: "sell no",
			call: func(w *Writer) error {
				return w.Sell(context.Background(), 7, domain.SideNo, big.NewInt(50), big.NewInt(40))
			},
			wantMethod: "sellNo",
			wantAmount: big.NewInt(50),
			wantFloor:  big.NewInt(40),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sub := &mockSubmitter{}
			w, contract := newTestWriter(sub)

			require.NoError(t, tc.call(w))
			assert.Equal(t, contract, sub.to)

			method, args := unpackCall(t, sub.calldata)
			assert.Equal(t, tc.wantMethod, method)
			require.Len(t, args, 3)
			assert.Zero(t, big.NewInt(7).Cmp(args[0].(*big.Int)))
			assert.Zero(t, tc.wantAmount.Cmp(args[1].(*big.Int)))
			assert.Zero(t, tc.wantFloor.Cmp(args[2].(*big.Int)))
		})
	}
}

func TestWriterSocialAndClaims(t *testing.T) {
	sub := &mockSubmitter{}
	w, _ := newTestWriter(sub)

	require.NoError(t, w.SendComment(context.Background(), 3, "nice odds"))
	method, args := unpackCall(t, sub.calldata)
	assert.Equal(t, "sendComment", method)
	require.Len(t, args, 2)
	assert.Equal(t, "nice odds", args[1].(string))

	require.NoError(t, w.SendDanmaku(context.Background(), 3, "to the moon"))
	method, _ = unpackCall(t, sub.calldata)
	assert.Equal(t, "sendDanmaku", method)

	require.NoError(t, w.ClaimWinnings(context.Background(), 3))
	method, args = unpackCall(t, sub.calldata)
	assert.Equal(t, "claimWinnings", method)
	require.Len(t, args, 1)
	assert.Zero(t, big.NewInt(3).Cmp(args[0].(*big.Int)))

	require.NoError(t, w.Refund(context.Background(), 3))
	method, _ = unpackCall(t, sub.calldata)
	assert.Equal(t, "refund", method)
}

func TestWriterSubmitError(t *testing.T) {
	wantErr := errors.New("wallet offline")
	w, _ := newTestWriter(&mockSubmitter{err: wantErr})

	err := w.Buy(context.Background(), 1, domain.SideYes, big.NewInt(1), big.NewInt(0))
	require.Error(t, err)
	assert.ErrorIs(t, err, wantErr)
	assert.Contains(t, err.Error(), "buyYes")
}

func TestPackCallUnknownMethod(t *testing.T) {
	_, err := PackCall("mintFreeMoney")
	assert.Error(t, err)
}
