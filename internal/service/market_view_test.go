package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yifanzh/predmirror/internal/amm"
	"github.com/yifanzh/predmirror/internal/domain"
	"github.com/yifanzh/predmirror/internal/history"
	"github.com/yifanzh/predmirror/internal/reconcile"
)

type stubPoolsFetcher struct {
	pools domain.MarketPools
	err   error
}

func (f *stubPoolsFetcher) MarketPools(ctx context.Context, marketID uint64) (domain.MarketPools, error) {
	if f.err != nil {
		return domain.MarketPools{}, f.err
	}
	return f.pools, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func wad(tokens int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(tokens), amm.Wad)
}

func newTestView(market domain.Market, fetcher reconcile.PoolsFetcher) *MarketView {
	return NewMarketView(market, fetcher, reconcile.Config{}, history.Config{}, nil, discardLogger())
}

// Registration primes the view before seeding it; the baseline anchors must
// still land, carrying the first observed price and the launch reserves.
func TestPrimeThenSeedAnchorsHistory(t *testing.T) {
	market := domain.Market{ID: 1, Question: "will it rain", EndTime: time.Now().Add(30 * 24 * time.Hour)}
	fetcher := &stubPoolsFetcher{pools: domain.MarketPools{
		YesPredReserve:  wad(600),
		YesShareReserve: wad(900),
		NoPredReserve:   wad(200),
		NoShareReserve:  wad(1400),
	}}

	v := newTestView(market, fetcher)
	defer v.Close()

	require.NoError(t, v.Prime(context.Background()))
	v.Seed()

	wantYes, _ := amm.Price(fetcher.pools)
	points := v.History()
	require.Len(t, points, 2)
	assert.Equal(t, market.EndTime.Add(-history.DefaultSeedOffset).Unix(), points[0].Time)
	assert.Greater(t, points[1].Time, points[0].Time)
	for _, p := range points {
		assert.Equal(t, wantYes, p.Price)
		assert.Equal(t, 800.0, p.Volume)
	}
}

func TestSeedFallsBackWhenInitialFetchFails(t *testing.T) {
	market := domain.Market{ID: 2, EndTime: time.Now().Add(30 * 24 * time.Hour)}
	fetcher := &stubPoolsFetcher{err: errors.New("rpc down")}

	v := newTestView(market, fetcher)
	defer v.Close()

	require.Error(t, v.Prime(context.Background()))
	v.Seed()

	points := v.History()
	require.Len(t, points, 2)
	assert.Equal(t, market.EndTime.Add(-history.DefaultSeedOffset).Unix(), points[0].Time)
	for _, p := range points {
		assert.Equal(t, 0.5, p.Price)
		assert.Zero(t, p.Volume)
	}
}

func TestPriceFallsBackBeforeFirstSnapshot(t *testing.T) {
	market := domain.Market{ID: 3, EndTime: time.Now().Add(time.Hour)}
	v := newTestView(market, &stubPoolsFetcher{err: errors.New("rpc down")})
	defer v.Close()

	yes, no := v.Price()
	assert.Equal(t, 0.5, yes)
	assert.Equal(t, 0.5, no)
}
