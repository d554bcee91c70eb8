package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yifanzh/predmirror/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockFetcher counts fetches and answers from a handler.
type mockFetcher struct {
	mu      sync.Mutex
	calls   int
	handler func(call int) (domain.MarketPools, error)
}

func (m *mockFetcher) MarketPools(ctx context.Context, marketID uint64) (domain.MarketPools, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	handler := m.handler
	m.mu.Unlock()
	if handler != nil {
		return handler(call)
	}
	return domain.MarketPools{YesPredReserve: big.NewInt(int64(call))}, nil
}

func (m *mockFetcher) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func wad(tokens int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(tokens), big.NewInt(1e18))
}

func tradeEvent(pred int64) domain.TradeEvent {
	return domain.TradeEvent{
		MarketID:  1,
		Direction: domain.TradeBuy,
		AmountIn:  wad(pred),
		AmountOut: wad(pred),
	}
}

// fastConfig keeps the cycle delays short enough for tests but long enough
// to observe intermediate states.
var fastConfig = Config{FetchDelay: 20 * time.Millisecond, SettleDelay: 20 * time.Millisecond}

func waitFresh(t *testing.T, ch <-chan domain.MarketPools) domain.MarketPools {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a fresh snapshot")
		return domain.MarketPools{}
	}
}

func TestReconcilerCycle(t *testing.T) {
	fetcher := &mockFetcher{}
	fresh := make(chan domain.MarketPools, 8)

	r := New(1, fetcher, fastConfig, func(pools domain.MarketPools, volume *big.Int) {
		fresh <- pools
	}, discardLogger())
	defer r.Close()

	require.Equal(t, StateIdle, r.State())
	_, ok := r.Snapshot()
	require.False(t, ok, "no snapshot before the first cycle")

	r.OnTrade(tradeEvent(100))
	waitFresh(t, fresh)

	assert.Equal(t, StateIdle, r.State())
	snap, ok := r.Snapshot()
	require.True(t, ok)
	assert.Equal(t, int64(1), snap.YesPredReserve.Int64())
	assert.Equal(t, 1, fetcher.callCount())
	assert.Equal(t, 0, wad(100).Cmp(r.Volume()))
}

func TestReconcilerBusyDrop(t *testing.T) {
	fetcher := &mockFetcher{}
	fresh := make(chan domain.MarketPools, 8)

	r := New(1, fetcher, Config{FetchDelay: 100 * time.Millisecond, SettleDelay: 20 * time.Millisecond},
		func(pools domain.MarketPools, volume *big.Int) { fresh <- pools }, discardLogger())
	defer r.Close()

	// Three trades land while the first cycle is still waiting out its
	// fetch delay. Only one fetch happens; all volumes accumulate.
	r.OnTrade(tradeEvent(10))
	r.OnTrade(tradeEvent(20))
	r.OnTrade(tradeEvent(30))

	waitFresh(t, fresh)

	assert.Equal(t, 1, fetcher.callCount(), "merged trades must not trigger extra fetches")
	assert.Equal(t, 0, wad(60).Cmp(r.Volume()))

	// After the cycle completes, a new trade schedules a new cycle.
	r.OnTrade(tradeEvent(5))
	waitFresh(t, fresh)
	assert.Equal(t, 2, fetcher.callCount())
	assert.Equal(t, 0, wad(65).Cmp(r.Volume()))
}

func TestReconcilerKeepsStaleSnapshotOnError(t *testing.T) {
	boom := errors.New("rpc down")
	fetcher := &mockFetcher{
		handler: func(call int) (domain.MarketPools, error) {
			if call == 2 {
				return domain.MarketPools{}, boom
			}
			return domain.MarketPools{YesPredReserve: big.NewInt(int64(call))}, nil
		},
	}
	fresh := make(chan domain.MarketPools, 8)

	r := New(1, fetcher, fastConfig, func(pools domain.MarketPools, volume *big.Int) {
		fresh <- pools
	}, discardLogger())
	defer r.Close()

	// First cycle succeeds and establishes a snapshot.
	r.OnTrade(tradeEvent(1))
	waitFresh(t, fresh)

	// Second cycle fails; the machine returns to Idle with the old
	// snapshot still served.
	r.OnTrade(tradeEvent(2))
	require.Eventually(t, func() bool {
		return fetcher.callCount() == 2 && r.State() == StateIdle
	}, 2*time.Second, 5*time.Millisecond)

	snap, ok := r.Snapshot()
	require.True(t, ok)
	assert.Equal(t, int64(1), snap.YesPredReserve.Int64(), "stale snapshot must survive the failed fetch")

	// Volume still accumulated despite the failed cycle.
	assert.Equal(t, 0, wad(3).Cmp(r.Volume()))

	// Third cycle recovers.
	r.OnTrade(tradeEvent(3))
	waitFresh(t, fresh)
	snap, _ = r.Snapshot()
	assert.Equal(t, int64(3), snap.YesPredReserve.Int64())
}

func TestReconcilerStateTransitions(t *testing.T) {
	fetchStarted := make(chan struct{})
	fetchRelease := make(chan struct{})
	fetcher := &mockFetcher{
		handler: func(call int) (domain.MarketPools, error) {
			close(fetchStarted)
			<-fetchRelease
			return domain.MarketPools{}, nil
		},
	}
	fresh := make(chan domain.MarketPools, 1)

	r := New(1, fetcher, Config{FetchDelay: 30 * time.Millisecond, SettleDelay: 50 * time.Millisecond},
		func(pools domain.MarketPools, volume *big.Int) { fresh <- pools }, discardLogger())
	defer r.Close()

	r.OnTrade(tradeEvent(1))
	assert.Equal(t, StateScheduled, r.State())

	select {
	case <-fetchStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch never started")
	}
	assert.Equal(t, StateFetching, r.State())

	close(fetchRelease)
	require.Eventually(t, func() bool { return r.State() == StateSettling }, 2*time.Second, time.Millisecond)

	waitFresh(t, fresh)
	assert.Equal(t, StateIdle, r.State())
}

func TestReconcilerRefresh(t *testing.T) {
	fetcher := &mockFetcher{}
	var published []domain.MarketPools

	r := New(1, fetcher, fastConfig, func(pools domain.MarketPools, volume *big.Int) {
		published = append(published, pools)
	}, discardLogger())
	defer r.Close()

	// Refresh bypasses both delays and publishes immediately.
	require.NoError(t, r.Refresh(context.Background()))
	require.Len(t, published, 1)

	snap, ok := r.Snapshot()
	require.True(t, ok)
	assert.Equal(t, int64(1), snap.YesPredReserve.Int64())
}

func TestReconcilerCloseAbortsCycle(t *testing.T) {
	fetcher := &mockFetcher{}
	r := New(1, fetcher, Config{FetchDelay: time.Hour}, func(domain.MarketPools, *big.Int) {
		t.Error("no snapshot expected after close")
	}, discardLogger())

	r.OnTrade(tradeEvent(1))
	r.Close()

	require.Eventually(t, func() bool { return r.State() == StateIdle }, 2*time.Second, time.Millisecond)
	assert.Equal(t, 0, fetcher.callCount())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "scheduled", StateScheduled.String())
	assert.Equal(t, "fetching", StateFetching.String())
	assert.Equal(t, "settling", StateSettling.String())
}
