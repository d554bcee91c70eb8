package domain

import (
	"context"
	"time"
)

// PriceCache provides fast access to the latest reconciled price per market.
type PriceCache interface {
	SetPrice(ctx context.Context, marketID uint64, yes, no float64, ts time.Time) error
	GetPrice(ctx context.Context, marketID uint64) (yes, no float64, ts time.Time, err error)
}

// MarketCache provides fast market metadata lookups.
type MarketCache interface {
	Set(ctx context.Context, market Market) error
	Get(ctx context.Context, id uint64) (Market, error)
	Invalidate(ctx context.Context, id uint64) error
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus is the pub/sub fabric between the mirror pipeline and API
// consumers (websocket hub, external subscribers).
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// LockManager provides distributed locks. The mirror pipeline holds one so a
// second replica cannot double-write the same event streams.
type LockManager interface {
	// Acquire returns an unlock function on success, or ErrLockHeld when the
	// lock is owned by another party.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter bounds request rates per key (API clients, RPC endpoints).
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}
