package domain

import (
	"context"
	"time"
)

// ListOpts carries standard pagination parameters.
type ListOpts struct {
	Limit  int
	Offset int
}

// MarketStore persists market metadata.
type MarketStore interface {
	Upsert(ctx context.Context, m Market) error
	Get(ctx context.Context, id uint64) (Market, error)
	List(ctx context.Context, opts ListOpts) ([]Market, error)
	Count(ctx context.Context) (int64, error)
}

// TradeStore persists decoded trade events. InsertBatch must be idempotent
// under event replay (same tx hash + log index inserted at most once).
type TradeStore interface {
	InsertBatch(ctx context.Context, trades []Trade) error
	ListByMarket(ctx context.Context, marketID uint64, opts ListOpts) ([]Trade, error)
	ListBefore(ctx context.Context, before time.Time) ([]Trade, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
	// LastBlock returns the highest block number of any stored trade, or 0
	// when no trades are stored. Used to resume backfill after a restart.
	LastBlock(ctx context.Context) (uint64, error)
}

// CommentStore persists Comment and Danmaku events.
type CommentStore interface {
	Insert(ctx context.Context, c Comment) error
	ListByMarket(ctx context.Context, marketID uint64, kind EventKind, opts ListOpts) ([]Comment, error)
	ListBefore(ctx context.Context, before time.Time) ([]Comment, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
