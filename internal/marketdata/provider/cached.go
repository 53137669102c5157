package provider

import (
	"context"
	"log"
	"time"

	"trading-backtestv1/internal/metrics"
	"trading-backtestv1/internal/model"
)

// Cached serves bars from a local store when it covers the requested range
// and otherwise fetches upstream and writes the result back.
type Cached struct {
	cache    model.BarProvider
	sink     model.BarWriter
	upstream model.BarProvider
	metrics  *metrics.Metrics

	// Slack tolerates weekends and holidays at the range edges.
	Slack  time.Duration
	MaxAge time.Duration // open-ended ranges refetch when the newest bar is older
	now    func() time.Time
}

// NewCached builds a read-through cache. m may be nil.
func NewCached(cache model.BarProvider, sink model.BarWriter, upstream model.BarProvider, m *metrics.Metrics) *Cached {
	return &Cached{
		cache:    cache,
		sink:     sink,
		upstream: upstream,
		metrics:  m,
		Slack:    5 * 24 * time.Hour,
		MaxAge:   24 * time.Hour,
		now:      time.Now,
	}
}

func (c *Cached) Name() string { return NameOf(c.upstream) }

// Fetch implements model.BarProvider.
func (c *Cached) Fetch(ctx context.Context, symbol string, rng model.Range) ([]model.Bar, error) {
	if bars, err := c.cache.Fetch(ctx, symbol, rng); err == nil && c.covers(bars, rng) {
		c.count("hit")
		return bars, nil
	}
	c.count("miss")

	bars, err := c.upstream.Fetch(ctx, symbol, rng)
	if err != nil {
		return nil, err
	}
	if err := c.sink.WriteBars(ctx, symbol, bars); err != nil {
		log.Printf("[cache] write %s failed: %v", symbol, err)
	}
	return bars, nil
}

func (c *Cached) covers(bars []model.Bar, rng model.Range) bool {
	if len(bars) == 0 {
		return false
	}
	first, last := bars[0].Date, bars[len(bars)-1].Date
	if rng.From.IsZero() {
		// an open start cannot be proven complete from the cache alone
		return false
	}
	if first.Sub(rng.From) > c.Slack {
		return false
	}
	end := rng.To
	if end.IsZero() {
		return c.now().Sub(last) <= c.MaxAge+c.Slack
	}
	return end.Sub(last) <= c.Slack
}

func (c *Cached) count(result string) {
	if c.metrics != nil {
		c.metrics.CacheHits.WithLabelValues(result).Inc()
	}
}
