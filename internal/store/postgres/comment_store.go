package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yifanzh/predmirror/internal/domain"
)

// CommentStore implements domain.CommentStore using PostgreSQL. Comments and
// danmaku share one table, told apart by the kind column.
type CommentStore struct {
	pool *pgxpool.Pool
}

// NewCommentStore creates a new CommentStore backed by the given connection pool.
func NewCommentStore(pool *pgxpool.Pool) *CommentStore {
	return &CommentStore{pool: pool}
}

var _ domain.CommentStore = (*CommentStore)(nil)

const commentSelectCols = `id, market_id, account, content, kind, tx_hash, block_number, log_index, timestamp`

func scanCommentRows(rows pgx.Rows) ([]domain.Comment, error) {
	var comments []domain.Comment
	for rows.Next() {
		var c domain.Comment
		var kind string
		if err := rows.Scan(
			&c.ID, &c.MarketID, &c.User, &c.Content,
			&kind, &c.TxHash, &c.BlockNumber, &c.LogIndex, &c.Timestamp,
		); err != nil {
			return nil, err
		}
		c.Kind = domain.EventKind(kind)
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// Insert stores one comment or danmaku. Replayed events are skipped via the
// (tx_hash, log_index) uniqueness constraint, the same ledger identity the
// trades table keys on.
func (s *CommentStore) Insert(ctx context.Context, c domain.Comment) error {
	const query = `
		INSERT INTO comments (market_id, account, content, kind, tx_hash, block_number, log_index, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tx_hash, log_index) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		c.MarketID, c.User, c.Content, string(c.Kind),
		c.TxHash, c.BlockNumber, c.LogIndex, c.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert comment: %w", err)
	}
	return nil
}

// ListByMarket returns comments of one kind for a market, newest first.
func (s *CommentStore) ListByMarket(ctx context.Context, marketID uint64, kind domain.EventKind, opts domain.ListOpts) ([]domain.Comment, error) {
	query := `SELECT ` + commentSelectCols + ` FROM comments WHERE market_id = $1 AND kind = $2 ORDER BY timestamp DESC`
	args := []any{marketID, string(kind)}
	argIdx := 3

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list comments by market: %w", err)
	}
	defer rows.Close()

	comments, err := scanCommentRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan comments by market: %w", err)
	}
	return comments, nil
}

// ListBefore returns all comments with timestamp strictly before the given time (for archiving).
func (s *CommentStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Comment, error) {
	query := `SELECT ` + commentSelectCols + ` FROM comments WHERE timestamp < $1 ORDER BY timestamp ASC`
	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list comments before: %w", err)
	}
	defer rows.Close()
	return scanCommentRows(rows)
}

// DeleteBefore deletes all comments with timestamp before the given time. Returns the number deleted.
func (s *CommentStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM comments WHERE timestamp < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete comments before: %w", err)
	}
	return tag.RowsAffected(), nil
}
