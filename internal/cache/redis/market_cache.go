package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yifanzh/predmirror/internal/domain"
)

const marketTTL = 5 * time.Minute

// MarketCache implements domain.MarketCache using Redis hashes with JSON-
// serialized Market data.
//
// Key schema:
//
//	market:{id} - hash with field "data" containing JSON
type MarketCache struct {
	rdb *redis.Client
}

// NewMarketCache creates a MarketCache backed by the given Client.
func NewMarketCache(c *Client) *MarketCache {
	return &MarketCache{rdb: c.Underlying()}
}

func marketKey(id uint64) string {
	return "market:" + strconv.FormatUint(id, 10)
}

// cachedMarket is the JSON shape stored in Redis; status round-trips as its
// string name so cached rows stay readable in redis-cli.
type cachedMarket struct {
	ID        uint64    `json:"id"`
	Creator   string    `json:"creator"`
	Question  string    `json:"question"`
	EndTime   time.Time `json:"end_time"`
	Status    string    `json:"status"`
	Outcome   bool      `json:"outcome"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Set stores a Market in the cache with a 5-minute TTL.
func (mc *MarketCache) Set(ctx context.Context, market domain.Market) error {
	data, err := json.Marshal(cachedMarket{
		ID:        market.ID,
		Creator:   market.Creator,
		Question:  market.Question,
		EndTime:   market.EndTime,
		Status:    market.Status.String(),
		Outcome:   market.Outcome,
		CreatedAt: market.CreatedAt,
		UpdatedAt: market.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("redis: marshal market %d: %w", market.ID, err)
	}

	key := marketKey(market.ID)

	pipe := mc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, marketTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set market %d: %w", market.ID, err)
	}
	return nil
}

// Get retrieves a Market from the cache. It returns domain.ErrNotFound when
// the key does not exist or has expired.
func (mc *MarketCache) Get(ctx context.Context, id uint64) (domain.Market, error) {
	data, err := mc.rdb.HGet(ctx, marketKey(id), "data").Result()
	if err == redis.Nil {
		return domain.Market{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Market{}, fmt.Errorf("redis: get market %d: %w", id, err)
	}

	var cm cachedMarket
	if err := json.Unmarshal([]byte(data), &cm); err != nil {
		return domain.Market{}, fmt.Errorf("redis: unmarshal market %d: %w", id, err)
	}
	return domain.Market{
		ID:        cm.ID,
		Creator:   cm.Creator,
		Question:  cm.Question,
		EndTime:   cm.EndTime,
		Status:    domain.ParseMarketStatus(cm.Status),
		Outcome:   cm.Outcome,
		CreatedAt: cm.CreatedAt,
		UpdatedAt: cm.UpdatedAt,
	}, nil
}

// Invalidate removes a market from the cache.
func (mc *MarketCache) Invalidate(ctx context.Context, id uint64) error {
	if err := mc.rdb.Del(ctx, marketKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate market %d: %w", id, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.MarketCache = (*MarketCache)(nil)
