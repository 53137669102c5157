// Package clickhouse reads and writes daily bars in a ClickHouse
// ReplacingMergeTree table.
package clickhouse

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"trading-backtestv1/internal/model"
)

// Config holds connection settings.
type Config struct {
	Addr     string
	Database string
	Username string
	Password string
	Table    string
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store is a BarProvider and BarWriter backed by ClickHouse.
type Store struct {
	conn  driver.Conn
	table string // database-qualified
}

// Open connects and pings the server.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if !identRe.MatchString(cfg.Database) || !identRe.MatchString(cfg.Table) {
		return nil, fmt.Errorf("%w: clickhouse database/table must be identifiers", model.ErrInvalidConfiguration)
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	log.Printf("[clickhouse] connected to %s (%s.%s)", cfg.Addr, cfg.Database, cfg.Table)
	return NewWithConn(conn, cfg.Database+"."+cfg.Table), nil
}

// NewWithConn wraps an existing connection.
func NewWithConn(conn driver.Conn, table string) *Store {
	return &Store{conn: conn, table: table}
}

// EnsureSchema creates the bars table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.conn.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			symbol  LowCardinality(String),
			date    Date,
			open    Float64,
			high    Float64,
			low     Float64,
			close   Float64,
			volume  Float64,
			version UInt64
		)
		ENGINE = ReplacingMergeTree(version)
		ORDER BY (symbol, date)
	`, s.table))
}

// Fetch returns bars of symbol inside rng, oldest first. FINAL collapses
// rows replaced by later ingests.
func (s *Store) Fetch(ctx context.Context, symbol string, rng model.Range) ([]model.Bar, error) {
	from, to := rng.From, rng.To
	if from.IsZero() {
		from = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	if to.IsZero() {
		to = time.Date(2149, 6, 6, 0, 0, 0, 0, time.UTC)
	}

	rows, err := s.conn.Query(ctx, fmt.Sprintf(`
		SELECT date, open, high, low, close, volume
		FROM %s FINAL
		WHERE symbol = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`, s.table), symbol, from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: clickhouse query: %v", model.ErrDataUnavailable, err)
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var b model.Bar
		if err := rows.Scan(&b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("clickhouse scan: %w", err)
		}
		b.Date = b.Date.UTC()
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: clickhouse rows: %v", model.ErrDataUnavailable, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: no clickhouse bars for %s", model.ErrDataUnavailable, symbol)
	}
	return bars, nil
}

// WriteBars appends bars in one batch. Re-ingested dates replace older
// rows at merge time.
func (s *Store) WriteBars(ctx context.Context, symbol string, bars []model.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	batch, err := s.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s", s.table))
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	ver := uint64(time.Now().UnixNano())
	for _, b := range bars {
		if err := batch.Append(symbol, b.Date, b.Open, b.High, b.Low, b.Close, b.Volume, ver); err != nil {
			return fmt.Errorf("batch append: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("batch send: %w", err)
	}
	log.Printf("[clickhouse] inserted %d bars for %s", len(bars), symbol)
	return nil
}

// Close closes the connection.
func (s *Store) Close() error { return s.conn.Close() }
