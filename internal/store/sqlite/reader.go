package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"trading-backtestv1/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader serves stored bars as a model.BarProvider.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading. The schema must already
// exist (see New).
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// Fetch returns bars of symbol inside rng, oldest first. An empty result
// wraps model.ErrDataUnavailable.
func (r *Reader) Fetch(ctx context.Context, symbol string, rng model.Range) ([]model.Bar, error) {
	from, to := int64(0), int64(1<<62)
	if !rng.From.IsZero() {
		from = rng.From.Unix()
	}
	if !rng.To.IsZero() {
		to = rng.To.Unix()
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC
	`, symbol, from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: sqlite query bars: %v", model.ErrDataUnavailable, err)
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var (
			b      model.Bar
			tsUnix int64
			volume sql.NullFloat64
		)
		if err := rows.Scan(&tsUnix, &b.Open, &b.High, &b.Low, &b.Close, &volume); err != nil {
			return nil, fmt.Errorf("sqlite scan bars: %w", err)
		}
		b.Date = time.Unix(tsUnix, 0).UTC()
		b.Volume = volume.Float64
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: no stored bars for %s", model.ErrDataUnavailable, symbol)
	}
	return bars, nil
}

// Symbols lists every symbol with stored bars.
func (r *Reader) Symbols(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT symbol FROM bars ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query symbols: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
