package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests drive the aggregator's notion of time.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestAggregator(cfg Config) (*Aggregator, *fakeClock) {
	a := New(cfg)
	clock := &fakeClock{t: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	a.now = clock.now
	return a, clock
}

func TestSeed(t *testing.T) {
	a, clock := newTestAggregator(Config{SeedOffset: 365 * 24 * time.Hour})
	endTime := clock.t.Add(30 * 24 * time.Hour)

	a.Seed(endTime, 0.5, 2000)

	points := a.Points()
	require.Len(t, points, 2)
	assert.Equal(t, endTime.Add(-365*24*time.Hour).Unix(), points[0].Time)
	assert.Equal(t, 0.5, points[0].Price)
	assert.Equal(t, 2000.0, points[0].Volume)
	assert.Equal(t, clock.t.Unix(), points[1].Time)
	assert.Equal(t, 0.5, points[1].Price)
	assert.Equal(t, 2000.0, points[1].Volume)
}

func TestSeedIsNoOpWhenNonEmpty(t *testing.T) {
	a, clock := newTestAggregator(Config{})
	a.Record(0.7, 0)
	require.Equal(t, 1, a.Len())

	a.Seed(clock.t.Add(time.Hour), 0.5, 0)
	assert.Equal(t, 1, a.Len(), "seeding an already-started series must not rewrite it")
	assert.Equal(t, 0.7, a.Points()[0].Price)
}

func TestSeedSkipsFuturePastInversion(t *testing.T) {
	// When now is not after the computed start, only the start point lands.
	a, clock := newTestAggregator(Config{SeedOffset: time.Minute})
	endTime := clock.t.Add(2 * time.Minute)

	a.Seed(endTime, 0.5, 0)
	assert.Equal(t, 1, a.Len())
}

func TestRecordGating(t *testing.T) {
	a, clock := newTestAggregator(Config{PriceDelta: 0.001, MinInterval: 3 * time.Second})

	assert.True(t, a.Record(0.500, 1), "first observation always lands")

	clock.advance(time.Second)
	assert.False(t, a.Record(0.5004, 2), "small move inside the interval is dropped")

	clock.advance(time.Second)
	assert.True(t, a.Record(0.502, 3), "move beyond the delta lands regardless of time")

	clock.advance(3 * time.Second)
	assert.True(t, a.Record(0.5021, 4), "elapsed interval lands regardless of move size")

	require.Equal(t, 3, a.Len())
}

func TestRecordDeltaMustBeExceeded(t *testing.T) {
	// Exactly-representable prices so the delta comparison is not blurred by
	// float rounding.
	a, clock := newTestAggregator(Config{PriceDelta: 0.25, MinInterval: time.Hour})

	require.True(t, a.Record(0.25, 1))

	clock.advance(time.Second)
	assert.False(t, a.Record(0.5, 2), "a move of exactly the delta is not enough")

	clock.advance(time.Second)
	assert.True(t, a.Record(0.5625, 3), "a move beyond the delta lands")

	require.Equal(t, 2, a.Len())
}

func TestRecordSameSecondReplaces(t *testing.T) {
	a, _ := newTestAggregator(Config{PriceDelta: 0.001, MinInterval: 3 * time.Second})

	require.True(t, a.Record(0.50, 1))
	// A qualifying move on the same second replaces the last point instead
	// of creating a duplicate timestamp.
	require.True(t, a.Record(0.60, 2))

	points := a.Points()
	require.Len(t, points, 1)
	assert.Equal(t, 0.60, points[0].Price)
	assert.Equal(t, 2.0, points[0].Volume)
}

func TestRecordCapDropsOldest(t *testing.T) {
	a, clock := newTestAggregator(Config{MaxPoints: 200, PriceDelta: 0.001, MinInterval: time.Second})

	price := 0.1
	for i := 0; i < 250; i++ {
		clock.advance(time.Second)
		price += 0.002
		require.True(t, a.Record(price, float64(i)))
	}

	points := a.Points()
	require.Len(t, points, 200)
	// Only the newest 200 observations survive, oldest first.
	assert.Equal(t, 50.0, points[0].Volume)
	assert.Equal(t, 249.0, points[len(points)-1].Volume)
	for i := 1; i < len(points); i++ {
		assert.Greater(t, points[i].Time, points[i-1].Time)
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, DefaultMaxPoints, cfg.MaxPoints)
	assert.Equal(t, DefaultPriceDelta, cfg.PriceDelta)
	assert.Equal(t, DefaultMinInterval, cfg.MinInterval)
	assert.Equal(t, DefaultSeedOffset, cfg.SeedOffset)
}
