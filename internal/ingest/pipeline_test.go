package ingest

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yifanzh/predmirror/internal/chain"
	"github.com/yifanzh/predmirror/internal/domain"
)

// mockSubscription satisfies ethereum.Subscription with an inert error feed.
type mockSubscription struct {
	errCh chan error
}

func newMockSubscription() *mockSubscription {
	return &mockSubscription{errCh: make(chan error)}
}

func (s *mockSubscription) Unsubscribe()      {}
func (s *mockSubscription) Err() <-chan error { return s.errCh }

// mockSource feeds both pipeline feeds: FilterLogs answers the backfill and
// SubscribeLogs exposes a sink the test pushes live logs into.
type mockSource struct {
	mu             sync.Mutex
	head           uint64
	backfillLogs   []types.Log
	sink           chan<- types.Log
	subscribed     chan struct{}
	subscribeDelay time.Duration
}

func newMockSource(head uint64, backfillLogs []types.Log) *mockSource {
	return &mockSource{
		head:         head,
		backfillLogs: backfillLogs,
		subscribed:   make(chan struct{}),
	}
}

func (m *mockSource) HeadBlock(ctx context.Context) (uint64, error) {
	// The live subscription must already be open when the backfill
	// captures the head; fail loudly if the ordering ever regresses.
	select {
	case <-m.subscribed:
		return m.head, nil
	default:
		return 0, errors.New("head captured before live subscription")
	}
}

func (m *mockSource) FilterLogs(ctx context.Context, from, to uint64) ([]types.Log, error) {
	var out []types.Log
	for _, l := range m.backfillLogs {
		if l.BlockNumber >= from && l.BlockNumber <= to {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *mockSource) SubscribeLogs(ctx context.Context, sink chan<- types.Log) (ethereum.Subscription, error) {
	if m.subscribeDelay > 0 {
		time.Sleep(m.subscribeDelay)
	}
	m.mu.Lock()
	m.sink = sink
	m.mu.Unlock()
	close(m.subscribed)
	return newMockSubscription(), nil
}

func (m *mockSource) pushLive(l types.Log) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sink <- l
}

// commentLog builds a decodable Comment log at the given coordinates.
func commentLog(t *testing.T, marketID int64, txHash string, block uint64, content string) types.Log {
	t.Helper()
	data, err := chain.MarketABI.Events["Comment"].Inputs.NonIndexed().Pack(content)
	require.NoError(t, err)
	return types.Log{
		Topics: []common.Hash{
			chain.CommentTopic,
			common.BigToHash(big.NewInt(marketID)),
			common.BytesToHash(common.LeftPadBytes(common.HexToAddress("0x01").Bytes(), 32)),
		},
		Data:        data,
		TxHash:      common.HexToHash(txHash),
		BlockNumber: block,
	}
}

func collectEvents(t *testing.T, ch <-chan domain.Event, n int) []domain.Event {
	t.Helper()
	var out []domain.Event
	for len(out) < n {
		select {
		case ev, ok := <-ch:
			require.True(t, ok, "event stream closed early")
			out = append(out, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d of %d", len(out)+1, n)
		}
	}
	return out
}

func TestPipelineCrossFeedDedup(t *testing.T) {
	// The same confirmed log arrives via the backfill and again via the
	// live feed; exactly one event reaches the consumer.
	shared := commentLog(t, 1, "0xaa", 5, "gm")
	liveOnly := commentLog(t, 1, "0xbb", 9, "wagmi")

	source := newMockSource(8, []types.Log{shared})
	p := NewPipeline(source, Config{ChunkSize: 5, DedupCapacity: 100}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, 1) }()

	events := collectEvents(t, p.Events(), 1)
	assert.Equal(t, domain.EventID(shared.TxHash.Hex()), events[0].Meta().ID)

	// Redeliver the same log live, then a fresh one. Only the fresh one
	// comes through, proving the duplicate was absorbed in between.
	source.pushLive(shared)
	source.pushLive(liveOnly)

	events = collectEvents(t, p.Events(), 1)
	assert.Equal(t, domain.EventID(liveOnly.TxHash.Hex()), events[0].Meta().ID)

	cancel()
	require.NoError(t, <-done)

	_, open := <-p.Events()
	assert.False(t, open, "event stream must close after Run returns")
}

func TestPipelineBackfillWaitsForLiveSubscription(t *testing.T) {
	// A slow subscription handshake must hold the backfill back; capturing
	// the head early would leave a window no feed covers.
	early := commentLog(t, 4, "0x1a", 5, "early")
	source := newMockSource(8, []types.Log{early})
	source.subscribeDelay = 50 * time.Millisecond

	p := NewPipeline(source, Config{ChunkSize: 5, DedupCapacity: 100}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, 1) }()

	events := collectEvents(t, p.Events(), 1)
	assert.Equal(t, domain.EventID(early.TxHash.Hex()), events[0].Meta().ID)

	cancel()
	require.NoError(t, <-done)
}

func TestPipelineLiveOnlyWhenStartBlockZero(t *testing.T) {
	source := newMockSource(100, []types.Log{commentLog(t, 2, "0xcc", 50, "missed")})
	p := NewPipeline(source, Config{ChunkSize: 5}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, 0) }()

	// Wait for the subscription, then deliver one live log.
	select {
	case <-source.subscribed:
	case <-time.After(2 * time.Second):
		t.Fatal("live subscription never opened")
	}
	live := commentLog(t, 2, "0xdd", 101, "live only")
	source.pushLive(live)

	events := collectEvents(t, p.Events(), 1)
	assert.Equal(t, domain.EventID(live.TxHash.Hex()), events[0].Meta().ID)

	cancel()
	require.NoError(t, <-done)
}

func TestPipelineSkipsUndecodableLogs(t *testing.T) {
	junk := types.Log{
		Topics:      []common.Hash{common.HexToHash("0x1234")},
		TxHash:      common.HexToHash("0xee"),
		BlockNumber: 3,
	}
	good := commentLog(t, 3, "0xff", 4, "still here")

	source := newMockSource(5, []types.Log{junk, good})
	p := NewPipeline(source, Config{ChunkSize: 10}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, 1) }()

	events := collectEvents(t, p.Events(), 1)
	assert.Equal(t, domain.EventID(good.TxHash.Hex()), events[0].Meta().ID)

	cancel()
	require.NoError(t, <-done)
}
