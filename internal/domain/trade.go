package domain

import (
	"math/big"
	"time"
)

// Trade is a persisted trade record derived from a SharesBought or
// SharesSold event. PredAmount and ShareAmount are wad integers; the store
// layer serializes them as decimal strings so no precision is lost.
type Trade struct {
	ID          int64          `json:"id"`
	MarketID    uint64         `json:"market_id"`
	User        string         `json:"user"`
	Side        Side           `json:"-"`
	Direction   TradeDirection `json:"direction"`
	PredAmount  *big.Int       `json:"-"`
	ShareAmount *big.Int       `json:"-"`
	TxHash      string         `json:"tx_hash"`
	BlockNumber uint64         `json:"block_number"`
	LogIndex    uint           `json:"log_index"`
	Timestamp   time.Time      `json:"timestamp"`
}

// Comment is a persisted Comment or Danmaku event; Kind tells them apart.
type Comment struct {
	ID          int64     `json:"id"`
	MarketID    uint64    `json:"market_id"`
	User        string    `json:"user"`
	Content     string    `json:"content"`
	Kind        EventKind `json:"kind"`
	TxHash      string    `json:"tx_hash"`
	BlockNumber uint64    `json:"block_number"`
	LogIndex    uint      `json:"log_index"`
	Timestamp   time.Time `json:"timestamp"`
}

// PricePoint is one sample of a market's price history chart.
type PricePoint struct {
	// Time is unix seconds.
	Time int64 `json:"time"`
	// Price is the yes-side implied probability in [0,1].
	Price float64 `json:"price"`
	// Volume is the cumulative pred-token traded volume observed so far,
	// in whole tokens (display units, not wad).
	Volume float64 `json:"volume"`
}
