package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yifanzh/predmirror/internal/domain"
)

type capturingCommentStore struct {
	inserted []domain.Comment
}

func (s *capturingCommentStore) Insert(ctx context.Context, c domain.Comment) error {
	s.inserted = append(s.inserted, c)
	return nil
}

func (s *capturingCommentStore) ListByMarket(ctx context.Context, marketID uint64, kind domain.EventKind, opts domain.ListOpts) ([]domain.Comment, error) {
	return nil, nil
}

func (s *capturingCommentStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Comment, error) {
	return nil, nil
}

func (s *capturingCommentStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

type nopSignalBus struct{}

func (nopSignalBus) Publish(ctx context.Context, channel string, payload []byte) error { return nil }
func (nopSignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return nil, nil
}
func (nopSignalBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	return nil
}
func (nopSignalBus) StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	return nil, nil
}

// Two social events in the same transaction differ only by log index; the
// persisted rows must keep that identity so a backfill replay cannot insert
// them twice.
func TestHandleEventKeepsCommentLedgerIdentity(t *testing.T) {
	comments := &capturingCommentStore{}
	svc := NewTradeService(nil, comments, nil, nopSignalBus{}, discardLogger())

	observed := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	meta := func(logIndex uint) domain.EventMeta {
		return domain.EventMeta{
			TxHash:      "0xabc",
			BlockNumber: 42,
			LogIndex:    logIndex,
			ID:          domain.DeriveEventID("0xabc", 42, logIndex),
			ObservedAt:  observed,
		}
	}

	require.NoError(t, svc.HandleEvent(context.Background(), domain.CommentEvent{
		EventMeta: meta(3),
		MarketID:  7,
		User:      "0x01",
		Content:   "gm",
	}))
	require.NoError(t, svc.HandleEvent(context.Background(), domain.DanmakuEvent{
		EventMeta: meta(4),
		MarketID:  7,
		User:      "0x01",
		Content:   "wagmi",
	}))

	require.Len(t, comments.inserted, 2)

	first, second := comments.inserted[0], comments.inserted[1]
	assert.Equal(t, domain.EventKindComment, first.Kind)
	assert.Equal(t, "0xabc", first.TxHash)
	assert.Equal(t, uint64(42), first.BlockNumber)
	assert.Equal(t, uint(3), first.LogIndex)
	assert.Equal(t, observed, first.Timestamp)

	assert.Equal(t, domain.EventKindDanmaku, second.Kind)
	assert.Equal(t, uint(4), second.LogIndex)
	assert.NotEqual(t, first.LogIndex, second.LogIndex,
		"same-transaction events must keep distinct row identities")
}
