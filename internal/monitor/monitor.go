// Package monitor runs the daily latest-signal check over a watchlist:
// fetch recent bars, find the newest signal, publish it and alert on new
// ones.
package monitor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"trading-backtestv1/internal/metrics"
	"trading-backtestv1/internal/model"
	"trading-backtestv1/internal/notification"
	"trading-backtestv1/internal/strategy"
)

// Options configure a Checker.
type Options struct {
	HistoryDays int // calendar days of bars fetched per symbol
	Lookback    int // recent bars searched for a signal
	Concurrency int
	// AsOf maps the check time to the newest bar date to consider, so an
	// unfinished session bar is left out. Nil uses the check time itself.
	AsOf func(now time.Time) time.Time
}

// Checker evaluates one strategy over a watchlist. Publisher, Notifier,
// Metrics and Health are optional.
type Checker struct {
	Provider  model.BarProvider
	Strategy  strategy.Strategy
	Publisher model.SignalPublisher
	Notifier  notification.Notifier
	Metrics   *metrics.Metrics
	Health    *metrics.HealthStatus

	opts Options
	now  func() time.Time

	mu       sync.Mutex
	notified map[string]string // symbol -> last alerted signal key
}

// New creates a Checker with defaults for unset options.
func New(p model.BarProvider, s strategy.Strategy, opts Options) *Checker {
	if opts.HistoryDays <= 0 {
		opts.HistoryDays = 365
	}
	if opts.Lookback <= 0 {
		opts.Lookback = 5
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Checker{
		Provider: p,
		Strategy: s,
		opts:     opts,
		now:      time.Now,
		notified: make(map[string]string),
	}
}

// Check evaluates every symbol. Per-symbol failures are reported in the
// result's Error field; only context cancellation aborts the batch.
// Results keep the order of symbols.
func (c *Checker) Check(ctx context.Context, symbols []string) ([]model.LatestSignal, error) {
	out := make([]model.LatestSignal, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)
	for i, sym := range symbols {
		g.Go(func() error {
			out[i] = c.checkOne(gctx, sym)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	if c.Health != nil {
		c.Health.SetLastRun(c.now())
	}
	return out, nil
}

func (c *Checker) checkOne(ctx context.Context, symbol string) model.LatestSignal {
	now := c.now()
	end := now
	if c.opts.AsOf != nil {
		end = c.opts.AsOf(now)
	}
	rng := model.Range{From: end.AddDate(0, 0, -c.opts.HistoryDays), To: end}

	ls := model.LatestSignal{Symbol: symbol, Strategy: c.Strategy.Name(), AsOf: now}
	bars, err := c.Provider.Fetch(ctx, symbol, rng)
	if err == nil {
		ls, err = strategy.LatestSignal(c.Strategy, symbol, bars, c.opts.Lookback)
		ls.AsOf = now
	}
	if err != nil {
		ls.Error = err.Error()
		log.Printf("[monitor] %s: %v", symbol, err)
		c.alert(ctx, ls)
		return ls
	}

	log.Printf("[monitor] %s", strategy.Summary(ls))
	if c.Publisher != nil {
		if err := c.Publisher.PublishSignal(ctx, ls); err != nil {
			log.Printf("[monitor] publish %s failed: %v", symbol, err)
		} else if c.Metrics != nil {
			c.Metrics.SignalsPublished.WithLabelValues(kindLabel(ls)).Inc()
		}
	}
	if ls.HasSignal {
		if c.Health != nil {
			c.Health.SetLastSignal(ls.SignalDate)
		}
		if c.firstSighting(ls) {
			c.alert(ctx, ls)
		}
	}
	return ls
}

// firstSighting records ls and reports whether it differs from the last
// signal alerted for the symbol.
func (c *Checker) firstSighting(ls model.LatestSignal) bool {
	key := fmt.Sprintf("%s@%s", ls.Kind, ls.SignalDate.Format("2006-01-02"))
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.notified[ls.Symbol] == key {
		return false
	}
	c.notified[ls.Symbol] = key
	return true
}

func (c *Checker) alert(ctx context.Context, ls model.LatestSignal) {
	if c.Notifier == nil {
		return
	}
	result := "ok"
	if err := c.Notifier.Send(ctx, notification.SignalAlert(ls)); err != nil {
		result = "error"
		log.Printf("[monitor] notify %s via %s failed: %v", ls.Symbol, c.Notifier.Name(), err)
	}
	if c.Metrics != nil {
		c.Metrics.NotificationsSent.WithLabelValues(c.Notifier.Name(), result).Inc()
	}
}

// Run checks symbols immediately and then every interval until ctx ends.
// A zero interval runs once.
func (c *Checker) Run(ctx context.Context, symbols []string, interval time.Duration, onResult func([]model.LatestSignal)) error {
	if interval <= 0 {
		return c.RunSchedule(ctx, symbols, nil, onResult)
	}
	return c.RunSchedule(ctx, symbols, func(now time.Time) time.Time { return now.Add(interval) }, onResult)
}

// RunSchedule checks symbols immediately and then at each time returned by
// next, until ctx ends. A nil next runs once.
func (c *Checker) RunSchedule(ctx context.Context, symbols []string, next func(now time.Time) time.Time, onResult func([]model.LatestSignal)) error {
	for {
		res, err := c.Check(ctx, symbols)
		if err != nil {
			return err
		}
		if onResult != nil {
			onResult(res)
		}
		if next == nil {
			return nil
		}

		now := c.now()
		at := next(now)
		log.Printf("[monitor] next check at %s", at.Format(time.RFC3339))
		if ctx.Err() != nil {
			return nil
		}
		t := time.NewTimer(at.Sub(now))
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

func kindLabel(ls model.LatestSignal) string {
	if !ls.HasSignal {
		return "none"
	}
	return string(ls.Kind)
}
