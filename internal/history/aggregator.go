// Package history maintains a bounded in-memory price series per market.
// Points are appended only when the price moved meaningfully or enough time
// passed, so a burst of trades collapses into a handful of points instead of
// flooding the series.
package history

import (
	"sync"
	"time"

	"github.com/yifanzh/predmirror/internal/domain"
)

const (
	// DefaultMaxPoints bounds the series; the oldest point is dropped when
	// a new one would exceed it.
	DefaultMaxPoints = 200
	// DefaultPriceDelta is the absolute yes-price move that must be
	// exceeded to force a new point regardless of elapsed time.
	DefaultPriceDelta = 0.001
	// DefaultMinInterval is the minimum gap between points when the price
	// barely moved.
	DefaultMinInterval = 3 * time.Second
	// DefaultSeedOffset is how far before a market's end time the first
	// synthetic seed point is placed.
	DefaultSeedOffset = 365 * 24 * time.Hour
)

// Config tunes one aggregator. Zero fields fall back to the defaults.
type Config struct {
	MaxPoints   int
	PriceDelta  float64
	MinInterval time.Duration
	SeedOffset  time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxPoints <= 0 {
		c.MaxPoints = DefaultMaxPoints
	}
	if c.PriceDelta <= 0 {
		c.PriceDelta = DefaultPriceDelta
	}
	if c.MinInterval <= 0 {
		c.MinInterval = DefaultMinInterval
	}
	if c.SeedOffset <= 0 {
		c.SeedOffset = DefaultSeedOffset
	}
	return c
}

// Aggregator holds the bounded series for a single market.
type Aggregator struct {
	cfg Config
	now func() time.Time

	mu     sync.Mutex
	points []domain.PricePoint
}

// New returns an empty aggregator. Call Seed before recording trades so the
// chart has a baseline even for markets with no history.
func New(cfg Config) *Aggregator {
	cfg = cfg.withDefaults()
	return &Aggregator{
		cfg:    cfg,
		now:    time.Now,
		points: make([]domain.PricePoint, 0, cfg.MaxPoints),
	}
}

// Seed installs the two synthetic baseline points: one well before the
// market's end time, and one at the current time, both carrying the given
// price and volume. Calling Seed on a non-empty series is a no-op.
func (a *Aggregator) Seed(endTime time.Time, price, volume float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.points) > 0 {
		return
	}

	start := endTime.Add(-a.cfg.SeedOffset).Unix()
	now := a.now().Unix()
	a.points = append(a.points, domain.PricePoint{Time: start, Price: price, Volume: volume})
	if now > start {
		a.points = append(a.points, domain.PricePoint{Time: now, Price: price, Volume: volume})
	}
}

// Record offers a new observation. The point is kept when the yes price moved
// by more than the configured delta since the last point, or when the minimum
// interval elapsed. An observation landing on the same second as the last
// point replaces it instead of appending, keeping timestamps unique.
// Returns true when the series changed.
func (a *Aggregator) Record(price, volume float64) bool {
	now := a.now().Unix()

	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.points) == 0 {
		a.points = append(a.points, domain.PricePoint{Time: now, Price: price, Volume: volume})
		return true
	}

	last := a.points[len(a.points)-1]

	delta := price - last.Price
	if delta < 0 {
		delta = -delta
	}
	moved := delta > a.cfg.PriceDelta
	aged := now-last.Time >= int64(a.cfg.MinInterval/time.Second)
	if !moved && !aged {
		return false
	}

	point := domain.PricePoint{Time: now, Price: price, Volume: volume}
	if last.Time == now {
		a.points[len(a.points)-1] = point
		return true
	}

	a.points = append(a.points, point)
	if len(a.points) > a.cfg.MaxPoints {
		a.points = a.points[1:]
	}
	return true
}

// Points returns a copy of the series, oldest first.
func (a *Aggregator) Points() []domain.PricePoint {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.PricePoint, len(a.points))
	copy(out, a.points)
	return out
}

// Len reports the number of stored points.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.points)
}
