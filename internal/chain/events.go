package chain

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"github.com/yifanzh/predmirror/internal/domain"
)

// marketUserTopics is the indexed-argument layout shared by every event the
// contract emits: (marketId uint256 indexed, user/creator address indexed).
type marketUserTopics struct {
	MarketId *big.Int
	Creator  common.Address
}

type sharesBoughtData struct {
	IsYes     bool
	PredIn    *big.Int
	SharesOut *big.Int
}

type sharesSoldData struct {
	IsYes    bool
	SharesIn *big.Int
	PredOut  *big.Int
}

type marketCreatedData struct {
	Question       string
	EndTime        *big.Int
	InitialYesPred *big.Int
	InitialNoPred  *big.Int
}

type contentData struct {
	Content string
}

// meta derives the event identity from the log's ledger coordinates: the
// transaction hash when present, block+logIndex otherwise, and a synthetic
// timestamp key as the last resort. Synthetic identities are flagged so the
// pipeline can surface the weakened dedup guarantee.
func meta(vLog types.Log) domain.EventMeta {
	m := domain.EventMeta{
		BlockNumber: vLog.BlockNumber,
		LogIndex:    vLog.Index,
		ObservedAt:  time.Now().UTC(),
	}

	switch {
	case vLog.TxHash != (common.Hash{}):
		m.TxHash = vLog.TxHash.Hex()
		m.ID = domain.EventID(m.TxHash)
	case vLog.BlockNumber > 0:
		m.ID = domain.DeriveEventID("", vLog.BlockNumber, vLog.Index)
	default:
		m.Synthetic = true
		m.ID = domain.EventID(fmt.Sprintf("synthetic-%d-%s", time.Now().UnixNano(), uuid.NewString()))
	}
	return m
}

func parseTopics(event string, vLog types.Log) (marketUserTopics, error) {
	var indexed marketUserTopics
	inputs := MarketABI.Events[event].Inputs
	if err := abi.ParseTopics(&indexed, indexedArgs(inputs), vLog.Topics[1:]); err != nil {
		return indexed, fmt.Errorf("chain: %s parse topics: %w", event, err)
	}
	return indexed, nil
}

// DecodeLog normalizes a raw contract log into a typed domain event. Logs
// whose topic is not one of the five subscribed events return
// domain.ErrUnknownEvent; callers log and skip those.
func DecodeLog(vLog types.Log) (domain.Event, error) {
	if len(vLog.Topics) == 0 {
		return nil, domain.ErrUnknownEvent
	}

	switch vLog.Topics[0] {
	case MarketCreatedTopic:
		indexed, err := parseTopics("MarketCreated", vLog)
		if err != nil {
			return nil, err
		}
		var data marketCreatedData
		if err := MarketABI.UnpackIntoInterface(&data, "MarketCreated", vLog.Data); err != nil {
			return nil, fmt.Errorf("chain: MarketCreated unpack: %w", err)
		}
		return domain.MarketCreatedEvent{
			EventMeta:      meta(vLog),
			MarketID:       indexed.MarketId.Uint64(),
			Creator:        indexed.Creator.Hex(),
			Question:       data.Question,
			EndTime:        time.Unix(data.EndTime.Int64(), 0).UTC(),
			InitialYesPred: data.InitialYesPred,
			InitialNoPred:  data.InitialNoPred,
		}, nil

	case SharesBoughtTopic:
		indexed, err := parseTopics("SharesBought", vLog)
		if err != nil {
			return nil, err
		}
		var data sharesBoughtData
		if err := MarketABI.UnpackIntoInterface(&data, "SharesBought", vLog.Data); err != nil {
			return nil, fmt.Errorf("chain: SharesBought unpack: %w", err)
		}
		return domain.TradeEvent{
			EventMeta: meta(vLog),
			MarketID:  indexed.MarketId.Uint64(),
			User:      indexed.Creator.Hex(),
			Side:      domain.Side(data.IsYes),
			Direction: domain.TradeBuy,
			AmountIn:  data.PredIn,
			AmountOut: data.SharesOut,
		}, nil

	case SharesSoldTopic:
		indexed, err := parseTopics("SharesSold", vLog)
		if err != nil {
			return nil, err
		}
		var data sharesSoldData
		if err := MarketABI.UnpackIntoInterface(&data, "SharesSold", vLog.Data); err != nil {
			return nil, fmt.Errorf("chain: SharesSold unpack: %w", err)
		}
		return domain.TradeEvent{
			EventMeta: meta(vLog),
			MarketID:  indexed.MarketId.Uint64(),
			User:      indexed.Creator.Hex(),
			Side:      domain.Side(data.IsYes),
			Direction: domain.TradeSell,
			AmountIn:  data.SharesIn,
			AmountOut: data.PredOut,
		}, nil

	case CommentTopic:
		indexed, err := parseTopics("Comment", vLog)
		if err != nil {
			return nil, err
		}
		var data contentData
		if err := MarketABI.UnpackIntoInterface(&data, "Comment", vLog.Data); err != nil {
			return nil, fmt.Errorf("chain: Comment unpack: %w", err)
		}
		return domain.CommentEvent{
			EventMeta: meta(vLog),
			MarketID:  indexed.MarketId.Uint64(),
			User:      indexed.Creator.Hex(),
			Content:   data.Content,
		}, nil

	case DanmakuTopic:
		indexed, err := parseTopics("Danmaku", vLog)
		if err != nil {
			return nil, err
		}
		var data contentData
		if err := MarketABI.UnpackIntoInterface(&data, "Danmaku", vLog.Data); err != nil {
			return nil, fmt.Errorf("chain: Danmaku unpack: %w", err)
		}
		return domain.DanmakuEvent{
			EventMeta: meta(vLog),
			MarketID:  indexed.MarketId.Uint64(),
			User:      indexed.Creator.Hex(),
			Content:   data.Content,
		}, nil

	default:
		return nil, domain.ErrUnknownEvent
	}
}
