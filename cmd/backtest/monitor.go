package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"trading-backtestv1/internal/breaker"
	"trading-backtestv1/internal/markethours"
	"trading-backtestv1/internal/metrics"
	"trading-backtestv1/internal/model"
	"trading-backtestv1/internal/monitor"
	redisstore "trading-backtestv1/internal/store/redis"
	"trading-backtestv1/internal/strategy"
)

var monitorCommand = &cli.Command{
	Name:  "monitor",
	Usage: "check the watchlist for fresh signals, publish them to Redis and send alerts",
	Flags: append(dataFlags(),
		&cli.StringFlag{Name: "strategy", Usage: "strategy to evaluate (default: monitor.strategy)"},
		&cli.DurationFlag{Name: "interval", Usage: "repeat every interval; 0 checks once"},
		&cli.IntFlag{Name: "lookback", Usage: "recent bars searched for a signal"},
		&cli.BoolFlag{Name: "at-close", Usage: "check after every NSE session close instead of on an interval"},
		&cli.BoolFlag{Name: "no-publish", Usage: "do not publish to Redis"},
	),
	Action: monitorAction,
}

func monitorAction(c *cli.Context) error {
	symbols, err := applyDataFlags(c)
	if err != nil {
		return err
	}
	if c.IsSet("strategy") {
		cfg.Monitor.Strategy = c.String("strategy")
	}
	if c.IsSet("interval") {
		cfg.Monitor.Interval = c.Duration("interval")
	}
	if c.IsSet("lookback") {
		cfg.Monitor.Lookback = c.Int("lookback")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	atClose := c.Bool("at-close")
	if atClose && cfg.Monitor.Calendar != "nse" {
		return fmt.Errorf("%w: --at-close needs monitor.calendar nse", model.ErrInvalidConfiguration)
	}
	ctx := c.Context

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)
	health := metrics.NewHealthStatus(cfg.Data.Cache)
	var srv *metrics.Server
	longRunning := cfg.Monitor.Interval > 0 || atClose
	if longRunning && cfg.MetricsAddr != "" {
		srv = metrics.NewServer(cfg.MetricsAddr, health, nil)
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Stop(shutdownCtx)
		}()
	}

	st := &stores{}
	defer st.Close()
	p, err := buildProvider(ctx, cfg, st, m)
	if err != nil {
		return err
	}
	strat, err := strategy.New(cfg.Monitor.Strategy, cfg.Strategy)
	if err != nil {
		return err
	}

	opts := monitor.Options{
		HistoryDays: cfg.Monitor.HistoryDays,
		Lookback:    cfg.Monitor.Lookback,
		Concurrency: cfg.Concurrency,
	}
	if cfg.Monitor.Calendar == "nse" {
		opts.AsOf = markethours.LastCompletedSession
	}
	checker := monitor.New(p, strat, opts)
	checker.Metrics = m
	checker.Health = health
	checker.Notifier = buildNotifier(cfg.Notify)

	if !c.Bool("no-publish") {
		pub, closePub, err := signalPublisher(ctx, m, health, st)
		if err != nil {
			// Alerts and the printed summary still work without Redis.
			log.Printf("[monitor] publishing disabled: %v", err)
		} else {
			defer closePub()
			checker.Publisher = pub
		}
	}

	log.Printf("[monitor] %s over %d symbols, lookback %d bars, market %s",
		strat.Name(), len(symbols), cfg.Monitor.Lookback, markethours.StatusString(time.Now()))

	if atClose {
		return checker.RunSchedule(ctx, symbols, afterClose, printSignals)
	}
	return checker.Run(ctx, symbols, cfg.Monitor.Interval, printSignals)
}

// signalPublisher connects to Redis and wraps the writer so signals are
// held while Redis is unreachable. The returned func flushes and closes.
func signalPublisher(ctx context.Context, m *metrics.Metrics, health *metrics.HealthStatus, st *stores) (model.SignalPublisher, func(), error) {
	w, err := redisstore.New(redisstore.WriterConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, nil, err
	}
	health.CheckRedis(ctx, w.Client())
	var sqlDB *sql.DB
	if st.sqliteW != nil {
		sqlDB = st.sqliteW.DB()
	}
	health.StartLivenessChecker(ctx, w.Client(), sqlDB, 15*time.Second)

	cb := breaker.New("redis", breakerFailures, 30*time.Second)
	m.WatchBreaker(cb)
	bp := redisstore.NewBufferedPublisher(w, cb)
	bp.OnBuffer = func() {
		log.Printf("[monitor] redis unavailable, holding signals (%d pending)", bp.PendingCount())
	}
	bp.OnFlush = func(n int) {
		log.Printf("[monitor] replayed %d held signals", n)
	}

	closeFn := func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if n := bp.PendingCount(); n > 0 {
			log.Printf("[monitor] flushing %d held signals before exit", n)
			bp.Flush(flushCtx)
		}
		w.Close()
	}
	return bp, closeFn, nil
}

// closeDelay leaves time for the provider to publish the final daily bar.
const closeDelay = 20 * time.Minute

func afterClose(now time.Time) time.Time {
	return markethours.NextClose(now.Add(-closeDelay)).Add(closeDelay)
}

func printSignals(res []model.LatestSignal) {
	fmt.Printf("\n%s\n", time.Now().Format("2006-01-02 15:04:05"))
	for _, ls := range res {
		if ls.Error != "" {
			fmt.Printf("  %-12s error: %s\n", ls.Symbol, ls.Error)
			continue
		}
		fmt.Printf("  %s\n", strategy.Summary(ls))
	}
}
