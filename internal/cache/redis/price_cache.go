package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yifanzh/predmirror/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes.
// Each market's reconciled price pair is stored as a hash at key
// "price:{marketID}" with fields "yes", "no", and "ts" (Unix nanoseconds).
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func priceKey(marketID uint64) string {
	return "price:" + strconv.FormatUint(marketID, 10)
}

// SetPrice stores the latest yes/no price pair and timestamp for a market.
func (pc *PriceCache) SetPrice(ctx context.Context, marketID uint64, yes, no float64, ts time.Time) error {
	key := priceKey(marketID)
	fields := map[string]interface{}{
		"yes": strconv.FormatFloat(yes, 'f', -1, 64),
		"no":  strconv.FormatFloat(no, 'f', -1, 64),
		"ts":  strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := pc.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("redis: set price %d: %w", marketID, err)
	}
	return nil
}

// GetPrice retrieves the latest price pair and timestamp for a market.
// It returns domain.ErrNotFound when the key does not exist.
func (pc *PriceCache) GetPrice(ctx context.Context, marketID uint64) (float64, float64, time.Time, error) {
	key := priceKey(marketID)
	vals, err := pc.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return 0, 0, time.Time{}, fmt.Errorf("redis: get price %d: %w", marketID, err)
	}
	if len(vals) == 0 {
		return 0, 0, time.Time{}, domain.ErrNotFound
	}

	yes, err := parseHashFloat(vals, "yes")
	if err != nil {
		return 0, 0, time.Time{}, fmt.Errorf("redis: price %d: %w", marketID, err)
	}
	no, err := parseHashFloat(vals, "no")
	if err != nil {
		return 0, 0, time.Time{}, fmt.Errorf("redis: price %d: %w", marketID, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return 0, 0, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, 0, time.Time{}, fmt.Errorf("redis: parse ts %d: %w", marketID, err)
	}

	return yes, no, time.Unix(0, tsNano), nil
}

func parseHashFloat(vals map[string]string, field string) (float64, error) {
	s, ok := vals[field]
	if !ok {
		return 0, domain.ErrNotFound
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", field, err)
	}
	return f, nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
