package domain

import (
	"fmt"
	"math/big"
	"time"
)

// EventKind identifies the contract event a decoded log came from.
type EventKind string

const (
	EventKindMarketCreated EventKind = "market_created"
	EventKindSharesBought  EventKind = "shares_bought"
	EventKindSharesSold    EventKind = "shares_sold"
	EventKindComment       EventKind = "comment"
	EventKindDanmaku       EventKind = "danmaku"
)

// EventID uniquely identifies a ledger event for deduplication.
type EventID string

// EventMeta carries the ledger coordinates shared by every decoded event.
type EventMeta struct {
	TxHash      string
	BlockNumber uint64
	LogIndex    uint

	// Synthetic is set when neither a transaction hash nor block coordinates
	// were available and the ID had to be fabricated. Synthetic identities
	// weaken the dedup guarantee; the decoder logs when it resorts to one.
	Synthetic bool

	// ID is derived once at decode time: tx hash, else "block-logIndex",
	// else a synthetic key.
	ID EventID

	ObservedAt time.Time
}

// DeriveEventID builds the canonical identity from ledger coordinates.
// Callers with no usable coordinates must fabricate a synthetic ID instead.
func DeriveEventID(txHash string, blockNumber uint64, logIndex uint) EventID {
	if txHash != "" {
		return EventID(txHash)
	}
	return EventID(fmt.Sprintf("%d-%d", blockNumber, logIndex))
}

// Event is a normalized ledger event. Concrete types below are produced by
// the chain decoder and consumed by the ingestion pipeline.
type Event interface {
	Kind() EventKind
	Market() uint64
	Meta() EventMeta
}

// MarketCreatedEvent mirrors the contract's MarketCreated log.
type MarketCreatedEvent struct {
	EventMeta
	MarketID       uint64
	Creator        string
	Question       string
	EndTime        time.Time
	InitialYesPred *big.Int
	InitialNoPred  *big.Int
}

func (e MarketCreatedEvent) Kind() EventKind { return EventKindMarketCreated }
func (e MarketCreatedEvent) Market() uint64  { return e.MarketID }
func (e MarketCreatedEvent) Meta() EventMeta { return e.EventMeta }

// TradeDirection distinguishes buys from sells.
type TradeDirection string

const (
	TradeBuy  TradeDirection = "buy"
	TradeSell TradeDirection = "sell"
)

// TradeEvent mirrors SharesBought and SharesSold logs. For buys, AmountIn is
// predIn and AmountOut is sharesOut; for sells, AmountIn is sharesIn and
// AmountOut is predOut. Amounts are wad integers straight from the log.
//
// The event is informational only: derived market state (reserves, prices)
// must come from a re-read of the contract, never from these amounts.
type TradeEvent struct {
	EventMeta
	MarketID  uint64
	User      string
	Side      Side
	Direction TradeDirection
	AmountIn  *big.Int
	AmountOut *big.Int
}

func (e TradeEvent) Kind() EventKind {
	if e.Direction == TradeSell {
		return EventKindSharesSold
	}
	return EventKindSharesBought
}
func (e TradeEvent) Market() uint64  { return e.MarketID }
func (e TradeEvent) Meta() EventMeta { return e.EventMeta }

// PredAmount returns the pred-token amount the trade moved: predIn for buys,
// predOut for sells. Used for the running traded-volume counter.
func (e TradeEvent) PredAmount() *big.Int {
	if e.Direction == TradeSell {
		return e.AmountOut
	}
	return e.AmountIn
}

// CommentEvent mirrors the contract's Comment log.
type CommentEvent struct {
	EventMeta
	MarketID uint64
	User     string
	Content  string
}

func (e CommentEvent) Kind() EventKind { return EventKindComment }
func (e CommentEvent) Market() uint64  { return e.MarketID }
func (e CommentEvent) Meta() EventMeta { return e.EventMeta }

// DanmakuEvent mirrors the contract's Danmaku log (free-text overlay
// annotations). Identical shape to Comment but a distinct stream.
type DanmakuEvent struct {
	EventMeta
	MarketID uint64
	User     string
	Content  string
}

func (e DanmakuEvent) Kind() EventKind { return EventKindDanmaku }
func (e DanmakuEvent) Market() uint64  { return e.MarketID }
func (e DanmakuEvent) Meta() EventMeta { return e.EventMeta }
