package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockFilterer records every requested range and answers from a handler.
type mockFilterer struct {
	head    uint64
	headErr error
	ranges  []BlockRange
	handler func(from, to uint64) ([]types.Log, error)
}

func (m *mockFilterer) HeadBlock(ctx context.Context) (uint64, error) {
	return m.head, m.headErr
}

func (m *mockFilterer) FilterLogs(ctx context.Context, from, to uint64) ([]types.Log, error) {
	m.ranges = append(m.ranges, BlockRange{From: from, To: to})
	if m.handler != nil {
		return m.handler(from, to)
	}
	return nil, nil
}

func TestChunkRanges(t *testing.T) {
	testCases := []struct {
		name      string
		start     uint64
		head      uint64
		chunkSize uint64
		want      []BlockRange
	}{
		{
			name: "exact multiple", start: 0, head: 9, chunkSize: 5,
			want: []BlockRange{{0, 4}, {5, 9}},
		},
		{
			name: "trailing partial chunk", start: 100, head: 112, chunkSize: 5,
			want: []BlockRange{{100, 104}, {105, 109}, {110, 112}},
		},
		{
			name: "single block", start: 7, head: 7, chunkSize: 5000,
			want: []BlockRange{{7, 7}},
		},
		{
			name: "head below start", start: 10, head: 9, chunkSize: 5,
			want: nil,
		},
		{
			name: "zero chunk size treated as one", start: 1, head: 3, chunkSize: 0,
			want: []BlockRange{{1, 1}, {2, 2}, {3, 3}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := ChunkRanges(tc.start, tc.head, tc.chunkSize)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestChunkRangesCoverage(t *testing.T) {
	// Every block in [start, head] appears in exactly one window, and the
	// windows are contiguous and ascending.
	start, head, chunk := uint64(1234), uint64(98765), uint64(5000)
	ranges := ChunkRanges(start, head, chunk)
	require.NotEmpty(t, ranges)

	assert.Equal(t, start, ranges[0].From)
	assert.Equal(t, head, ranges[len(ranges)-1].To)
	for i, r := range ranges {
		assert.LessOrEqual(t, r.From, r.To)
		assert.LessOrEqual(t, r.To-r.From+1, chunk)
		if i > 0 {
			assert.Equal(t, ranges[i-1].To+1, r.From)
		}
	}
}

func TestBackfillerRun(t *testing.T) {
	t.Run("emits logs from every chunk in order", func(t *testing.T) {
		source := &mockFilterer{
			head: 14,
			handler: func(from, to uint64) ([]types.Log, error) {
				return []types.Log{{BlockNumber: from}}, nil
			},
		}
		b := NewBackfiller(source, 5, discardLogger())

		var emitted []uint64
		err := b.Run(context.Background(), 0, func(l types.Log) {
			emitted = append(emitted, l.BlockNumber)
		})
		require.NoError(t, err)
		assert.Equal(t, []BlockRange{{0, 4}, {5, 9}, {10, 14}}, source.ranges)
		assert.Equal(t, []uint64{0, 5, 10}, emitted)
	})

	t.Run("start beyond head is a clean no-op", func(t *testing.T) {
		source := &mockFilterer{head: 10}
		b := NewBackfiller(source, 5, discardLogger())

		err := b.Run(context.Background(), 11, func(types.Log) {
			t.Fatal("no logs expected")
		})
		require.NoError(t, err)
		assert.Empty(t, source.ranges)
	})

	t.Run("chunk failure aborts the run", func(t *testing.T) {
		boom := errors.New("rpc unavailable")
		source := &mockFilterer{
			head: 20,
			handler: func(from, to uint64) ([]types.Log, error) {
				if from >= 10 {
					return nil, boom
				}
				return nil, nil
			},
		}
		b := NewBackfiller(source, 10, discardLogger())

		err := b.Run(context.Background(), 0, func(types.Log) {})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("head read failure is fatal", func(t *testing.T) {
		source := &mockFilterer{headErr: errors.New("no peers")}
		b := NewBackfiller(source, 10, discardLogger())

		err := b.Run(context.Background(), 0, func(types.Log) {})
		assert.Error(t, err)
	})

	t.Run("cancelled context stops between chunks", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		source := &mockFilterer{head: 100}
		b := NewBackfiller(source, 10, discardLogger())

		err := b.Run(ctx, 0, func(types.Log) {})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
