package chain

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yifanzh/predmirror/internal/domain"
)

func addressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(common.LeftPadBytes(addr.Bytes(), 32))
}

func packEventData(t *testing.T, event string, args ...any) []byte {
	t.Helper()
	data, err := MarketABI.Events[event].Inputs.NonIndexed().Pack(args...)
	require.NoError(t, err)
	return data
}

func TestDecodeLogSharesBought(t *testing.T) {
	user := common.HexToAddress("0xAb5801a7D398351b8bE11C439e05C5b3259aec9B")
	predIn := new(big.Int).Mul(big.NewInt(100), big.NewInt(1e18))
	sharesOut := new(big.Int).Mul(big.NewInt(90), big.NewInt(1e18))

	vLog := types.Log{
		Topics: []common.Hash{
			SharesBoughtTopic,
			common.BigToHash(big.NewInt(7)),
			addressTopic(user),
		},
		Data:        packEventData(t, "SharesBought", true, predIn, sharesOut),
		TxHash:      common.HexToHash("0x1234"),
		BlockNumber: 42,
		Index:       3,
	}

	ev, err := DecodeLog(vLog)
	require.NoError(t, err)

	trade, ok := ev.(domain.TradeEvent)
	require.True(t, ok)
	assert.Equal(t, uint64(7), trade.MarketID)
	assert.Equal(t, user.Hex(), trade.User)
	assert.Equal(t, domain.SideYes, trade.Side)
	assert.Equal(t, domain.TradeBuy, trade.Direction)
	assert.Equal(t, 0, predIn.Cmp(trade.AmountIn))
	assert.Equal(t, 0, sharesOut.Cmp(trade.AmountOut))
	assert.Equal(t, domain.EventKindSharesBought, trade.Kind())
	assert.Equal(t, 0, predIn.Cmp(trade.PredAmount()))

	m := trade.Meta()
	assert.Equal(t, domain.EventID(vLog.TxHash.Hex()), m.ID)
	assert.Equal(t, uint64(42), m.BlockNumber)
	assert.False(t, m.Synthetic)
}

func TestDecodeLogSharesSold(t *testing.T) {
	user := common.HexToAddress("0x02")
	sharesIn := big.NewInt(500)
	predOut := big.NewInt(400)

	vLog := types.Log{
		Topics: []common.Hash{
			SharesSoldTopic,
			common.BigToHash(big.NewInt(3)),
			addressTopic(user),
		},
		Data:        packEventData(t, "SharesSold", false, sharesIn, predOut),
		TxHash:      common.HexToHash("0x5678"),
		BlockNumber: 99,
	}

	ev, err := DecodeLog(vLog)
	require.NoError(t, err)

	trade, ok := ev.(domain.TradeEvent)
	require.True(t, ok)
	assert.Equal(t, domain.SideNo, trade.Side)
	assert.Equal(t, domain.TradeSell, trade.Direction)
	assert.Equal(t, domain.EventKindSharesSold, trade.Kind())
	// For sells the moved pred amount is the payout.
	assert.Equal(t, 0, predOut.Cmp(trade.PredAmount()))
}

func TestDecodeLogMarketCreated(t *testing.T) {
	creator := common.HexToAddress("0x03")
	endTime := time.Date(2027, 1, 2, 3, 4, 5, 0, time.UTC)

	vLog := types.Log{
		Topics: []common.Hash{
			MarketCreatedTopic,
			common.BigToHash(big.NewInt(1)),
			addressTopic(creator),
		},
		Data: packEventData(t, "MarketCreated",
			"Will it rain tomorrow?",
			big.NewInt(endTime.Unix()),
			big.NewInt(0),
			big.NewInt(0),
		),
		TxHash:      common.HexToHash("0x9abc"),
		BlockNumber: 7,
	}

	ev, err := DecodeLog(vLog)
	require.NoError(t, err)

	created, ok := ev.(domain.MarketCreatedEvent)
	require.True(t, ok)
	assert.Equal(t, uint64(1), created.MarketID)
	assert.Equal(t, creator.Hex(), created.Creator)
	assert.Equal(t, "Will it rain tomorrow?", created.Question)
	assert.True(t, endTime.Equal(created.EndTime))
}

func TestDecodeLogComments(t *testing.T) {
	user := common.HexToAddress("0x04")

	for _, tc := range []struct {
		event string
		topic common.Hash
		kind  domain.EventKind
	}{
		{"Comment", CommentTopic, domain.EventKindComment},
		{"Danmaku", DanmakuTopic, domain.EventKindDanmaku},
	} {
		t.Run(tc.event, func(t *testing.T) {
			vLog := types.Log{
				Topics: []common.Hash{
					tc.topic,
					common.BigToHash(big.NewInt(5)),
					addressTopic(user),
				},
				Data:        packEventData(t, tc.event, "to the moon"),
				TxHash:      common.HexToHash("0xdef0"),
				BlockNumber: 11,
			}

			ev, err := DecodeLog(vLog)
			require.NoError(t, err)
			assert.Equal(t, tc.kind, ev.Kind())
			assert.Equal(t, uint64(5), ev.Market())
		})
	}
}

func TestDecodeLogUnknownTopic(t *testing.T) {
	_, err := DecodeLog(types.Log{
		Topics: []common.Hash{common.HexToHash("0xdeadbeef")},
	})
	assert.ErrorIs(t, err, domain.ErrUnknownEvent)

	_, err = DecodeLog(types.Log{})
	assert.ErrorIs(t, err, domain.ErrUnknownEvent)
}

func TestMetaIdentityFallbacks(t *testing.T) {
	t.Run("block coordinates when tx hash missing", func(t *testing.T) {
		m := meta(types.Log{BlockNumber: 17, Index: 4})
		assert.Equal(t, domain.DeriveEventID("", 17, 4), m.ID)
		assert.False(t, m.Synthetic)
	})

	t.Run("synthetic when no coordinates at all", func(t *testing.T) {
		a := meta(types.Log{})
		b := meta(types.Log{})
		assert.True(t, a.Synthetic)
		assert.True(t, b.Synthetic)
		assert.NotEqual(t, a.ID, b.ID)
	})
}
