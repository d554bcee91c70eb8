package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yifanzh/predmirror/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockBlobArchiver records archive calls and returns configured counts.
type mockBlobArchiver struct {
	tradeCount   int64
	tradeErr     error
	commentCount int64
	commentErr   error
	tradeCutoff  time.Time
}

func (m *mockBlobArchiver) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	m.tradeCutoff = before
	return m.tradeCount, m.tradeErr
}

func (m *mockBlobArchiver) ArchiveComments(ctx context.Context, before time.Time) (int64, error) {
	return m.commentCount, m.commentErr
}

// mockTradeStore implements the store slice the archiver deletes through.
type mockTradeStore struct {
	domain.TradeStore
	deleted   int64
	deleteErr error
	calls     int
}

func (m *mockTradeStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	m.calls++
	return m.deleted, m.deleteErr
}

type mockCommentStore struct {
	domain.CommentStore
	deleted int64
	calls   int
}

func (m *mockCommentStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	m.calls++
	return m.deleted, nil
}

func TestArchiverRun(t *testing.T) {
	t.Run("deletes only after successful upload", func(t *testing.T) {
		blob := &mockBlobArchiver{tradeCount: 10, commentCount: 4}
		trades := &mockTradeStore{deleted: 10}
		comments := &mockCommentStore{deleted: 4}

		a := NewArchiver(blob, trades, comments, 90, discardLogger())
		require.NoError(t, a.Run(context.Background()))

		assert.Equal(t, 1, trades.calls)
		assert.Equal(t, 1, comments.calls)

		wantCutoff := time.Now().UTC().Add(-90 * 24 * time.Hour)
		assert.WithinDuration(t, wantCutoff, blob.tradeCutoff, time.Minute)
	})

	t.Run("skips delete when nothing was archived", func(t *testing.T) {
		blob := &mockBlobArchiver{tradeCount: 0, commentCount: 0}
		trades := &mockTradeStore{}
		comments := &mockCommentStore{}

		a := NewArchiver(blob, trades, comments, 90, discardLogger())
		require.NoError(t, a.Run(context.Background()))

		assert.Zero(t, trades.calls)
		assert.Zero(t, comments.calls)
	})

	t.Run("failed upload leaves rows hot", func(t *testing.T) {
		blob := &mockBlobArchiver{tradeErr: errors.New("bucket unreachable")}
		trades := &mockTradeStore{}
		comments := &mockCommentStore{}

		a := NewArchiver(blob, trades, comments, 90, discardLogger())
		require.Error(t, a.Run(context.Background()))

		assert.Zero(t, trades.calls, "rows must survive a failed upload")
	})
}

func TestParseCron(t *testing.T) {
	testCases := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{name: "monthly at 03:00 on the 1st", expr: "0 3 1 * *"},
		{name: "wildcards", expr: "* * * * *"},
		{name: "value list", expr: "0,30 * * * *"},
		{name: "too few fields", expr: "0 3 1 *", wantErr: true},
		{name: "non-numeric field", expr: "x 3 1 * *", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseCron(tc.expr)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNextCronTime(t *testing.T) {
	after := time.Date(2026, 3, 15, 10, 30, 45, 0, time.UTC)

	testCases := []struct {
		name string
		expr string
		want time.Time
	}{
		{
			name: "next minute for wildcards",
			expr: "* * * * *",
			want: time.Date(2026, 3, 15, 10, 31, 0, 0, time.UTC),
		},
		{
			name: "monthly run rolls into next month",
			expr: "0 3 1 * *",
			want: time.Date(2026, 4, 1, 3, 0, 0, 0, time.UTC),
		},
		{
			name: "same day later hour",
			expr: "0 23 * * *",
			want: time.Date(2026, 3, 15, 23, 0, 0, 0, time.UTC),
		},
		{
			name: "half hour list",
			expr: "0,30 * * * *",
			want: time.Date(2026, 3, 15, 11, 0, 0, 0, time.UTC),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := nextCronTime(tc.expr, after)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	t.Run("invalid expression errors", func(t *testing.T) {
		_, err := nextCronTime("bad", after)
		assert.Error(t, err)
	})
}
