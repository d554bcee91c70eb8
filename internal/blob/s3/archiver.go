package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/yifanzh/predmirror/internal/domain"
)

// ---------------------------------------------------------------------------
// Narrow store interfaces required by the archiver. The archiver only needs
// the time-ranged read; the Postgres stores satisfy these implicitly.
// ---------------------------------------------------------------------------

// TradeArchiveStore provides read access to trades for archival purposes.
type TradeArchiveStore interface {
	// ListBefore returns all trades with a timestamp strictly before the
	// given cutoff time.
	ListBefore(ctx context.Context, before time.Time) ([]domain.Trade, error)
}

// CommentArchiveStore provides read access to comments and danmaku for
// archival purposes.
type CommentArchiveStore interface {
	// ListBefore returns all comments with a timestamp strictly before the
	// given cutoff time.
	ListBefore(ctx context.Context, before time.Time) ([]domain.Comment, error)
}

// ArchiveImpl implements domain.Archiver by querying the stores for aged
// records, serializing them to JSONL, and uploading the result to S3.
//
// Deletion of the archived records from the primary store is intentionally
// NOT performed here -- that is a separate, explicit step to be executed
// after the archive has been verified.
type ArchiveImpl struct {
	writer   domain.BlobWriter
	trades   TradeArchiveStore
	comments CommentArchiveStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, trades TradeArchiveStore, comments CommentArchiveStore) *ArchiveImpl {
	return &ArchiveImpl{
		writer:   writer,
		trades:   trades,
		comments: comments,
	}
}

// archivedTrade is the JSONL row shape for archived trades. Wad amounts are
// written as decimal strings so the archive round-trips without float loss.
type archivedTrade struct {
	ID          int64  `json:"id"`
	MarketID    uint64 `json:"market_id"`
	Account     string `json:"account"`
	Side        string `json:"side"`
	Direction   string `json:"direction"`
	PredAmount  string `json:"pred_amount"`
	ShareAmount string `json:"share_amount"`
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
	LogIndex    uint   `json:"log_index"`
	Timestamp   string `json:"timestamp"`
}

// ArchiveTrades queries all trades before the cutoff, serializes them to
// JSONL, and uploads the file to S3 at archive/trades/YYYY-MM.jsonl. The
// count of archived records is returned.
func (a *ArchiveImpl) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	trades, err := a.trades.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	rows := make([]archivedTrade, 0, len(trades))
	for _, t := range trades {
		pred := "0"
		if t.PredAmount != nil {
			pred = t.PredAmount.String()
		}
		share := "0"
		if t.ShareAmount != nil {
			share = t.ShareAmount.String()
		}
		rows = append(rows, archivedTrade{
			ID:          t.ID,
			MarketID:    t.MarketID,
			Account:     t.User,
			Side:        t.Side.String(),
			Direction:   string(t.Direction),
			PredAmount:  pred,
			ShareAmount: share,
			TxHash:      t.TxHash,
			BlockNumber: t.BlockNumber,
			LogIndex:    t.LogIndex,
			Timestamp:   t.Timestamp.Format(time.RFC3339),
		})
	}

	buf, err := marshalJSONL(rows)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades marshal: %w", err)
	}

	path := archivePath("trades", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive trades upload: %w", err)
	}

	return int64(len(trades)), nil
}

// ArchiveComments queries all comments and danmaku before the cutoff,
// serializes them to JSONL, and uploads the file to S3 at
// archive/comments/YYYY-MM.jsonl. The count of archived records is returned.
func (a *ArchiveImpl) ArchiveComments(ctx context.Context, before time.Time) (int64, error) {
	comments, err := a.comments.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive comments query: %w", err)
	}
	if len(comments) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(comments)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive comments marshal: %w", err)
	}

	path := archivePath("comments", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive comments upload: %w", err)
	}

	return int64(len(comments)), nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/trades/2025-01.jsonl
//	archive/comments/2025-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
