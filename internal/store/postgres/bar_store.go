package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/barreplay/internal/domain"
)

// BarStore implements domain.BarStore over the bars table.
type BarStore struct {
	pool *pgxpool.Pool
}

// NewBarStore creates a BarStore backed by pool.
func NewBarStore(pool *pgxpool.Pool) *BarStore {
	return &BarStore{pool: pool}
}

// barsQuery builds the range query for one symbol. Zero bounds are open.
func barsQuery(symbol string, from, to time.Time) (string, []any) {
	query := `SELECT ts, open, high, low, close, volume, open_interest FROM bars WHERE symbol = $1`
	args := []any{symbol}
	if !from.IsZero() {
		args = append(args, from)
		query += fmt.Sprintf(" AND ts >= $%d", len(args))
	}
	if !to.IsZero() {
		args = append(args, to)
		query += fmt.Sprintf(" AND ts <= $%d", len(args))
	}
	return query + " ORDER BY ts ASC", args
}

// Bars returns the bars of symbol within [from, to] in ascending time. A
// symbol without any stored bar yields domain.ErrNotFound.
func (s *BarStore) Bars(ctx context.Context, symbol string, from, to time.Time) ([]domain.Bar, error) {
	query, args := barsQuery(symbol, from, to)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query bars %s: %w", symbol, err)
	}
	defer rows.Close()

	var bars []domain.Bar
	for rows.Next() {
		var b domain.Bar
		if err := rows.Scan(&b.Time, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.OpenInterest); err != nil {
			return nil, fmt.Errorf("postgres: scan bar %s: %w", symbol, err)
		}
		b.Time = b.Time.UTC()
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate bars %s: %w", symbol, err)
	}

	if len(bars) == 0 {
		var known bool
		if err := s.pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM bars WHERE symbol = $1)", symbol,
		).Scan(&known); err != nil {
			return nil, fmt.Errorf("postgres: check symbol %s: %w", symbol, err)
		}
		if !known {
			return nil, fmt.Errorf("postgres: bars %s: %w", symbol, domain.ErrNotFound)
		}
	}
	return bars, nil
}

// InsertBatch upserts bars of symbol with a pgx Batch. A bar already stored
// at the same time is overwritten. It returns the number of rows written.
func (s *BarStore) InsertBatch(ctx context.Context, symbol string, bars []domain.Bar) (int64, error) {
	if len(bars) == 0 {
		return 0, nil
	}

	const query = `
		INSERT INTO bars (symbol, ts, open, high, low, close, volume, open_interest)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (symbol, ts) DO UPDATE SET
			open          = EXCLUDED.open,
			high          = EXCLUDED.high,
			low           = EXCLUDED.low,
			close         = EXCLUDED.close,
			volume        = EXCLUDED.volume,
			open_interest = EXCLUDED.open_interest,
			imported_at   = NOW()`

	batch := &pgx.Batch{}
	for _, b := range bars {
		batch.Queue(query, symbol, b.Time, b.Open, b.High, b.Low, b.Close, b.Volume, b.OpenInterest)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	var n int64
	for i := range bars {
		tag, err := br.Exec()
		if err != nil {
			return n, fmt.Errorf("postgres: insert bar batch %s item %d: %w", symbol, i, err)
		}
		n += tag.RowsAffected()
	}
	return n, nil
}

// Symbols lists the stored symbols, sorted.
func (s *BarStore) Symbols(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, "SELECT DISTINCT symbol FROM bars ORDER BY symbol")
	if err != nil {
		return nil, fmt.Errorf("postgres: list symbols: %w", err)
	}
	symbols, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres: list symbols: %w", err)
	}
	return symbols, nil
}

var _ domain.BarStore = (*BarStore)(nil)
