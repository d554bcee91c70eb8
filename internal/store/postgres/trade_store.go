package postgres

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yifanzh/predmirror/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

var _ domain.TradeStore = (*TradeStore)(nil)

const tradeSelectCols = `id, market_id, account, side, direction,
	pred_amount, share_amount, tx_hash, block_number, log_index, timestamp`

// wadString serializes a wad amount as a decimal string; nil becomes "0".
func wadString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// parseWad parses a stored decimal string back into a wad amount.
func parseWad(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return new(big.Int)
	}
	return v
}

func scanTradeRows(rows pgx.Rows) ([]domain.Trade, error) {
	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var side, pred, share string
		if err := rows.Scan(
			&t.ID, &t.MarketID, &t.User, &side, &t.Direction,
			&pred, &share, &t.TxHash, &t.BlockNumber, &t.LogIndex, &t.Timestamp,
		); err != nil {
			return nil, err
		}
		t.Side = domain.Side(side == domain.SideYes.String())
		t.PredAmount = parseWad(pred)
		t.ShareAmount = parseWad(share)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// InsertBatch inserts multiple trades efficiently using pgx Batch. Replayed
// events (same tx_hash and log_index) are silently skipped via ON CONFLICT
// DO NOTHING, so the same log can be ingested from backfill and the live
// feed without duplicate rows.
func (s *TradeStore) InsertBatch(ctx context.Context, trades []domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO trades (
			market_id, account, side, direction,
			pred_amount, share_amount,
			tx_hash, block_number, log_index, timestamp
		) VALUES (
			$1, $2, $3, $4,
			$5, $6,
			$7, $8, $9, $10
		) ON CONFLICT (tx_hash, log_index) DO NOTHING`

	for _, t := range trades {
		batch.Queue(query,
			t.MarketID, t.User, t.Side.String(), string(t.Direction),
			wadString(t.PredAmount), wadString(t.ShareAmount),
			t.TxHash, t.BlockNumber, t.LogIndex, t.Timestamp,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range trades {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert trade batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListByMarket returns trades for a given market, newest first.
func (s *TradeStore) ListByMarket(ctx context.Context, marketID uint64, opts domain.ListOpts) ([]domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE market_id = $1 ORDER BY timestamp DESC, log_index DESC`
	args := []any{marketID}
	argIdx := 2

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
		return nil, fmt.Errorf("postgres: list trades by market: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades by market: %w", err)
	}
	return trades, nil
}

// ListBefore returns all trades with timestamp strictly before the given time (for archiving).
func (s *TradeStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE timestamp < $1 ORDER BY timestamp ASC`
	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades before: %w", err)
	}
	defer rows.Close()
	return scanTradeRows(rows)
}

// DeleteBefore deletes all trades with timestamp before the given time. Returns the number deleted.
func (s *TradeStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM trades WHERE timestamp < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete trades before: %w", err)
	}
	return tag.RowsAffected(), nil
}

// LastBlock returns the highest block number of any stored trade, or 0 when
// the table is empty. The backfill start is resumed from here on restart.
func (s *TradeStore) LastBlock(ctx context.Context) (uint64, error) {
	var block *int64
	err := s.pool.QueryRow(ctx, `SELECT MAX(block_number) FROM trades`).Scan(&block)
	if err != nil {
		return 0, fmt.Errorf("postgres: get last trade block: %w", err)
	}
	if block == nil || *block < 0 {
		return 0, nil
	}
	return uint64(*block), nil
}
