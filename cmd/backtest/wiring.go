package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"trading-backtestv1/config"
	"trading-backtestv1/internal/breaker"
	"trading-backtestv1/internal/marketdata/provider"
	"trading-backtestv1/internal/metrics"
	"trading-backtestv1/internal/model"
	"trading-backtestv1/internal/notification"
	chstore "trading-backtestv1/internal/store/clickhouse"
	sqlitestore "trading-backtestv1/internal/store/sqlite"
	"trading-backtestv1/pkg/smartconnect"
)

const (
	breakerFailures = 5
	breakerCooldown = time.Minute
)

// stores lazily opens the local bar stores a command needs and closes them
// together.
type stores struct {
	sqliteW *sqlitestore.Writer
	sqliteR *sqlitestore.Reader
	ch      *chstore.Store
}

func (s *stores) sqlite(path string) (*sqlitestore.Writer, *sqlitestore.Reader, error) {
	if s.sqliteW != nil {
		return s.sqliteW, s.sqliteR, nil
	}
	// The writer creates the schema, so it opens first.
	w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: path})
	if err != nil {
		return nil, nil, err
	}
	r, err := sqlitestore.NewReader(path)
	if err != nil {
		w.Close()
		return nil, nil, err
	}
	s.sqliteW, s.sqliteR = w, r
	return w, r, nil
}

func (s *stores) clickhouse(ctx context.Context, c config.ClickHouseConfig) (*chstore.Store, error) {
	if s.ch != nil {
		return s.ch, nil
	}
	st, err := chstore.Open(ctx, chstore.Config{
		Addr:     c.Addr,
		Database: c.Database,
		Username: c.Username,
		Password: c.Password,
		Table:    c.Table,
	})
	if err != nil {
		return nil, err
	}
	if err := st.EnsureSchema(ctx); err != nil {
		st.Close()
		return nil, err
	}
	s.ch = st
	return st, nil
}

func (s *stores) Close() {
	if s.sqliteR != nil {
		s.sqliteR.Close()
	}
	if s.sqliteW != nil {
		s.sqliteW.Close()
	}
	if s.ch != nil {
		s.ch.Close()
	}
}

// source builds the raw provider named by name.
func source(ctx context.Context, name string, c *config.Config, st *stores) (model.BarProvider, error) {
	switch name {
	case "csv":
		return provider.NewCSV(c.Data.CSVDir), nil
	case "angel":
		client := smartconnect.NewClient(smartconnect.Config{
			APIKey:  c.Angel.APIKey,
			Timeout: c.Data.Timeout,
		})
		return provider.NewAngel(client, provider.AngelConfig{
			Credentials: provider.AngelCredentials{
				ClientCode: c.Angel.ClientCode,
				Password:   c.Angel.Password,
				TOTPSecret: c.Angel.TOTPSecret,
			},
			Exchange: c.Angel.Exchange,
			Interval: c.Angel.Interval,
			Tokens:   c.Angel.Tokens,
		}), nil
	case "sqlite":
		_, r, err := st.sqlite(c.SQLite.Path)
		if err != nil {
			return nil, err
		}
		return r, nil
	case "clickhouse":
		return st.clickhouse(ctx, c.ClickHouse)
	}
	return nil, fmt.Errorf("%w: unknown data provider %q", model.ErrInvalidConfiguration, name)
}

// buildProvider wraps the configured source with retries behind a circuit
// breaker and, when data.cache is set and the source is not SQLite itself,
// a SQLite read-through cache. m may be nil.
func buildProvider(ctx context.Context, c *config.Config, st *stores, m *metrics.Metrics) (model.BarProvider, error) {
	src, err := source(ctx, c.Data.Provider, c, st)
	if err != nil {
		return nil, err
	}
	policy := provider.DefaultRetryPolicy()
	policy.Retries = c.Data.Retries
	policy.Delay = c.Data.RetryDelay
	policy.Timeout = c.Data.Timeout
	cb := breaker.New(provider.NameOf(src), breakerFailures, breakerCooldown)
	var p model.BarProvider = provider.NewResilient(src, policy, cb, m)

	if c.Data.Cache && c.Data.Provider != "sqlite" {
		w, r, err := st.sqlite(c.SQLite.Path)
		if err != nil {
			return nil, err
		}
		p = provider.NewCached(r, w, p, m)
		log.Printf("[backtest] caching %s bars in %s", c.Data.Provider, c.SQLite.Path)
	}
	return p, nil
}

// sink returns the bar store named by name.
func sink(ctx context.Context, name, csvDir string, c *config.Config, st *stores) (model.BarWriter, error) {
	switch name {
	case "csv":
		return provider.NewCSV(csvDir), nil
	case "sqlite":
		w, _, err := st.sqlite(c.SQLite.Path)
		if err != nil {
			return nil, err
		}
		return w, nil
	case "clickhouse":
		return st.clickhouse(ctx, c.ClickHouse)
	}
	return nil, fmt.Errorf("%w: unknown store %q (want csv, sqlite or clickhouse)", model.ErrInvalidConfiguration, name)
}

// loadBars fetches every symbol in parallel. Symbols without data are
// logged and left out; any other failure aborts.
func loadBars(ctx context.Context, p model.BarProvider, symbols []string, rng model.Range, concurrency int) (map[string][]model.Bar, error) {
	bars := make([][]model.Bar, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, sym := range symbols {
		g.Go(func() error {
			b, err := p.Fetch(gctx, sym, rng)
			if errors.Is(err, model.ErrDataUnavailable) {
				log.Printf("[backtest] %s: skipped: %v", sym, err)
				return nil
			}
			if err != nil {
				return fmt.Errorf("fetch %s: %w", sym, err)
			}
			bars[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string][]model.Bar, len(symbols))
	for i, sym := range symbols {
		if len(bars[i]) > 0 {
			out[sym] = bars[i]
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no bars for any of %v", model.ErrDataUnavailable, symbols)
	}
	return out, nil
}

// buildNotifier fans alerts out to the log and to every configured channel.
func buildNotifier(n config.NotifyConfig) notification.Notifier {
	multi := notification.Multi{notification.NewLogNotifier()}
	if n.TelegramToken != "" && n.TelegramChatID != "" {
		multi = append(multi, notification.NewTelegramNotifier(n.TelegramToken, n.TelegramChatID))
	}
	if n.WebhookURL != "" {
		multi = append(multi, notification.NewWebhookNotifier(n.WebhookURL))
	}
	return multi
}
