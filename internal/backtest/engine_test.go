package backtest

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-backtestv1/internal/execution"
	"trading-backtestv1/internal/metrics"
	"trading-backtestv1/internal/model"
	"trading-backtestv1/internal/strategy"
)

func mk(i int, o, h, l, c float64) model.Bar {
	return model.Bar{
		Date:   time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i),
		Open:   o,
		High:   h,
		Low:    l,
		Close:  c,
		Volume: 1000,
	}
}

func flatBars(n int, price float64) []model.Bar {
	bars := make([]model.Bar, n)
	for i := range bars {
		bars[i] = mk(i, price, price+0.5, price-0.5, price)
	}
	return bars
}

func randomWalk(seed int64, n int) []model.Bar {
	rng := rand.New(rand.NewSource(seed))
	bars := make([]model.Bar, n)
	price := 100.0
	for i := range bars {
		open := price * (1 + (rng.Float64()-0.5)*0.01)
		price = open * (1 + (rng.Float64()-0.48)*0.04)
		hi := max(open, price) * (1 + rng.Float64()*0.01)
		lo := min(open, price) * (1 - rng.Float64()*0.01)
		bars[i] = mk(i, open, hi, lo, price)
	}
	return bars
}

func frictionless() Config {
	cfg := DefaultConfig()
	cfg.InitialCapital = 10000
	cfg.CommissionRate = 0
	cfg.SlippageRate = 0
	cfg.PyramidCap = 2
	return cfg
}

func turtle(t *testing.T, mut func(*strategy.Params)) strategy.Strategy {
	t.Helper()
	p := strategy.DefaultParams()
	p.EntryWindow, p.ExitWindow, p.ATRWindow = 3, 2, 2
	p.PyramidCap = 2
	p.AllowShort = false
	if mut != nil {
		mut(&p)
	}
	s, err := strategy.New("turtle", p)
	require.NoError(t, err)
	return s
}

func named(t *testing.T, name string, mut func(*strategy.Params)) strategy.Strategy {
	t.Helper()
	p := strategy.DefaultParams()
	if mut != nil {
		mut(&p)
	}
	s, err := strategy.New(name, p)
	require.NoError(t, err)
	return s
}

func runEngine(t *testing.T, cfg Config, s strategy.Strategy, bars []model.Bar) *Result {
	t.Helper()
	eng, err := New(cfg, s)
	require.NoError(t, err)
	res, err := eng.Run(context.Background(), "TEST", bars)
	require.NoError(t, err)
	return res
}

// stopBars: flat at 10, breakout on bar 5, entry at bar 6 open (12),
// bar 9 trades through the 8.5 stop.
func stopBars(bar9Open float64) []model.Bar {
	bars := flatBars(5, 10)
	return append(bars,
		mk(5, 11, 12.5, 11.5, 12),
		mk(6, 12, 12.5, 11.5, 12),
		mk(7, 12, 12.5, 11.5, 12),
		mk(8, 12, 12.5, 11.5, 12),
		mk(9, bar9Open, 9.5, 7.5, 8),
		mk(10, 8, 8.5, 7.5, 8),
	)
}

func TestRun_TurtleStopLoss(t *testing.T) {
	res := runEngine(t, frictionless(), turtle(t, nil), stopBars(9))

	require.Len(t, res.Trades, 1)
	tr := res.Trades[0]
	// size = floor(10000*0.01 / (2*1.75)) = 28
	assert.Equal(t, int64(28), tr.Size)
	assert.Equal(t, 6, tr.EntryIndex)
	assert.Equal(t, 9, tr.ExitIndex)
	assert.Equal(t, 12.0, tr.EntryPrice)
	assert.Equal(t, 8.5, tr.ExitPrice)
	assert.Equal(t, "stop", tr.ExitReason)
	assert.InDelta(t, -98, tr.PnL, 1e-9)

	assert.InDelta(t, 9664, res.EquityCurve[6].Cash, 1e-9)
	assert.InDelta(t, 9902, res.EquityCurve[10].Value, 1e-9)
	assert.False(t, res.FinalPosition.Open())
}

func TestRun_StopGap(t *testing.T) {
	res := runEngine(t, frictionless(), turtle(t, nil), stopBars(8))
	require.Len(t, res.Trades, 1)
	assert.Equal(t, 8.0, res.Trades[0].ExitPrice, "gap below the stop fills at the open")
	assert.InDelta(t, -112, res.Trades[0].PnL, 1e-9)
}

func TestRun_StopIgnoresSlippage(t *testing.T) {
	cfg := frictionless()
	cfg.SlippageRate = 0.01
	bars := stopBars(9)
	// low sits between the stop off the open (8.5) and one off the
	// slipped fill (12.12 - 3.5 = 8.62)
	bars[9] = mk(9, 9, 9.5, 8.55, 9)

	res := runEngine(t, cfg, turtle(t, nil), bars)
	require.Len(t, res.Trades, 1)
	tr := res.Trades[0]
	assert.InDelta(t, 12.12, tr.EntryPrice, 1e-9)
	assert.Equal(t, 10, tr.ExitIndex)
	assert.Equal(t, "exit channel", tr.ExitReason)
	assert.Empty(t, res.Skipped)
}

func TestRun_SlippageKeepsStrategyInStep(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SlippageRate = 0.01
	s := turtle(t, func(p *strategy.Params) {
		p.EntryWindow, p.ExitWindow, p.ATRWindow = 5, 20, 5
		p.PyramidCap = cfg.PyramidCap
		// small units so no add is ever clamped to zero
		p.RiskFraction = 0.002
	})
	res := runEngine(t, cfg, s, randomWalk(1, 300))

	require.NotEmpty(t, res.Trades)
	assert.Zero(t, res.Skipped["not eligible"], "every pyramid add and entry found the position it expected")
	var stops int
	for _, tr := range res.Trades {
		if tr.ExitReason == "stop" {
			stops++
		}
	}
	var stopSignals int
	for _, sig := range res.ActiveSignals() {
		if sig.Reason == "stop" {
			stopSignals++
		}
	}
	// each engine stop-out is reported by the strategy on the next bar,
	// except one on the final bar
	assert.InDelta(t, stops, stopSignals, 1)
}

func TestRun_ShortExposureBoundedByEquity(t *testing.T) {
	cfg := frictionless()
	cfg.PyramidCap = 4
	bars := flatBars(5, 100)
	c := 100.0
	for i := 5; i < 15; i++ {
		c -= 3
		bars = append(bars, mk(i, c+1, c+1.5, c-1.5, c))
	}
	for i := 15; i < 25; i++ {
		c += 4
		bars = append(bars, mk(i, c-1, c+1.5, c-1.5, c))
	}
	s := turtle(t, func(p *strategy.Params) {
		p.AllowShort = true
		p.RiskFraction = 1
		p.PyramidCap = 4
	})
	res := runEngine(t, cfg, s, bars)
	require.NotEmpty(t, res.Trades)

	peak := 0.0
	for i, pt := range res.EquityCurve {
		assert.GreaterOrEqualf(t, pt.Cash, 0.0, "cash at bar %d", i)
		peak = max(peak, pt.Value)
	}
	var shorts int
	for _, tr := range res.Trades {
		if tr.Direction != model.Short {
			continue
		}
		shorts++
		assert.Greater(t, tr.Units, 1)
		// each add is bounded by free equity, so the whole short stays
		// near 1x equity instead of compounding on its own proceeds
		assert.LessOrEqual(t, tr.EntryPrice*float64(tr.Size), 1.5*peak)
	}
	assert.Equal(t, 1, shorts)
	assert.Greater(t, res.Performance.FinalValue, 0.0)
}

func TestRun_EquityReconstructsFromCashAndPosition(t *testing.T) {
	cfg := DefaultConfig()
	bars := randomWalk(11, 400)
	for _, s := range []strategy.Strategy{
		turtle(t, func(p *strategy.Params) {
			p.AllowShort = true
			p.EntryWindow, p.ExitWindow, p.ATRWindow = 20, 10, 20
			p.PyramidCap = 4
		}),
		named(t, "sma_crossover", nil),
		named(t, "buy_and_hold", nil),
	} {
		t.Run(s.Name(), func(t *testing.T) {
			res := runEngine(t, cfg, s, bars)
			require.Len(t, res.EquityCurve, len(bars))

			var held int64
			f := 0
			for i, pt := range res.EquityCurve {
				assert.Equal(t, bars[i].Date, pt.Date)
				for f < len(res.Fills) && !res.Fills[f].Date.After(pt.Date) {
					if res.Fills[f].Side == execution.Buy {
						held += res.Fills[f].Size
					} else {
						held -= res.Fills[f].Size
					}
					f++
				}
				assert.InDeltaf(t, pt.Cash+float64(held)*bars[i].Close, pt.Value, 1e-6, "bar %d", i)
			}
			assert.Equal(t, res.FinalPosition.SignedSize(), held)
		})
	}
}

func TestRun_PyramidCapAndTradeConsistency(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PyramidCap = 3
	s := turtle(t, func(p *strategy.Params) {
		p.EntryWindow, p.ExitWindow, p.ATRWindow = 20, 10, 20
		p.PyramidCap = 6
		p.AllowShort = true
	})
	res := runEngine(t, cfg, s, randomWalk(5, 800))
	require.NotEmpty(t, res.Trades)

	exits := 0
	for _, tr := range res.Trades {
		assert.LessOrEqual(t, tr.Units, cfg.PyramidCap)
		assert.Greater(t, tr.Size, int64(0))
		assert.GreaterOrEqual(t, tr.ExitIndex, tr.EntryIndex)

		var found bool
		for _, f := range res.Fills {
			if f.Date.Equal(tr.ExitDate) && f.Price == tr.ExitPrice && f.Size == tr.Size {
				found = true
				exits++
				break
			}
		}
		assert.Truef(t, found, "no exit fill for trade exiting %s", tr.ExitDate)

		gross := (tr.ExitPrice - tr.EntryPrice) * float64(tr.Size) * float64(tr.Direction)
		assert.InDelta(t, gross-tr.Commission, tr.PnL, 1e-6)
	}
	assert.Equal(t, len(res.Trades), exits)
	assert.LessOrEqual(t, len(res.FinalPosition.Units), cfg.PyramidCap)
}

func TestRun_FlatSeries(t *testing.T) {
	res := runEngine(t, DefaultConfig(), turtle(t, nil), flatBars(60, 50))
	assert.Empty(t, res.Trades)
	assert.Empty(t, res.Fills)
	assert.Equal(t, 0.0, res.Performance.TotalReturn)
	assert.Equal(t, 0.0, res.Performance.SharpeRatio)
	for _, pt := range res.EquityCurve {
		assert.Equal(t, 100000.0, pt.Value)
	}
}

func TestRun_RisingSeriesSingleEntry(t *testing.T) {
	bars := flatBars(60, 100)
	for i := 60; i < 160; i++ {
		c := 100 + float64(i-59)
		bars = append(bars, mk(i, c-0.5, c+0.5, c-1, c))
	}
	res := runEngine(t, DefaultConfig(), named(t, "sma_crossover", nil), bars)

	var entries int
	for _, s := range res.ActiveSignals() {
		assert.Equal(t, model.SignalEnterLong, s.Kind)
		entries++
	}
	assert.Equal(t, 1, entries)
	require.Len(t, res.Fills, 1)
	assert.Equal(t, execution.Buy, res.Fills[0].Side)
	assert.True(t, res.FinalPosition.Open())
	assert.Greater(t, res.Performance.TotalReturn, 0.0)
	assert.Greater(t, res.Performance.FinalValue, 100000.0)
	assert.Greater(t, res.PnL.UnrealizedPnL, 0.0)
	assert.Equal(t, 1, res.PnL.OpenUnits)
}

func TestRun_InsufficientCapital(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialCapital = 50
	res := runEngine(t, cfg, named(t, "buy_and_hold", nil), flatBars(10, 100))

	assert.Empty(t, res.Fills)
	assert.Empty(t, res.Trades)
	assert.Equal(t, 1, res.Skipped["zero size"])
	for _, pt := range res.EquityCurve {
		assert.Equal(t, 50.0, pt.Cash)
		assert.Equal(t, 50.0, pt.Value)
	}
}

func TestRun_CommissionAndSlippage(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialCapital = 10000
	cfg.CommissionRate = 0.001
	cfg.SlippageRate = 0.01
	res := runEngine(t, cfg, named(t, "buy_and_hold", nil), flatBars(3, 100))

	require.Len(t, res.Fills, 1)
	f := res.Fills[0]
	assert.InDelta(t, 101, f.Price, 1e-9)
	// floor(10000 / (101 * 1.001)) = 98
	assert.Equal(t, int64(98), f.Size)
	wantCash := 10000 - 101*98*1.001
	assert.InDelta(t, wantCash, res.EquityCurve[0].Cash, 1e-6)
	assert.GreaterOrEqual(t, res.EquityCurve[0].Cash, 0.0)
	assert.InDelta(t, wantCash+98*100, res.EquityCurve[2].Value, 1e-6)
	assert.Empty(t, res.Trades, "position left open at end")
}

func TestRun_ShortTrade(t *testing.T) {
	bars := flatBars(5, 20)
	for i := 5; i < 9; i++ {
		c := 20 - float64(i-4)
		bars = append(bars, mk(i, c+0.5, c+0.5, c-0.5, c))
	}
	// bounce through the exit channel
	bars = append(bars, mk(9, 17, 19, 16.5, 18.5), mk(10, 18.5, 19, 18, 18.5))

	s := turtle(t, func(p *strategy.Params) {
		p.AllowShort = true
		p.PyramidCap = 1
	})
	res := runEngine(t, frictionless(), s, bars)

	require.Len(t, res.Trades, 1)
	tr := res.Trades[0]
	assert.Equal(t, model.Short, tr.Direction)
	assert.Equal(t, 6, tr.EntryIndex)
	assert.Equal(t, 18.5, tr.EntryPrice)
	assert.Equal(t, 10, tr.ExitIndex)
	assert.Equal(t, 18.5, tr.ExitPrice)
	assert.InDelta(t, 0, tr.PnL, 1e-9)
	assert.InDelta(t, 10000, res.EquityCurve[10].Value, 1e-9)
	// mark-to-market while short: price fell from 18.5 to 16
	assert.Greater(t, res.EquityCurve[8].Value, 10000.0)
}

func TestRun_NonAnticipatoryEquity(t *testing.T) {
	bars := randomWalk(3, 300)
	s := turtle(t, func(p *strategy.Params) { p.EntryWindow, p.ExitWindow, p.ATRWindow = 20, 10, 20 })
	base := runEngine(t, DefaultConfig(), s, bars)

	i := 150
	mut := append([]model.Bar(nil), bars...)
	mut[i].High *= 1.5
	mut[i].Low *= 0.6
	got := runEngine(t, DefaultConfig(), s, mut)
	assert.Equal(t, base.EquityCurve[:i], got.EquityCurve[:i])
	assert.Equal(t, base.Signals[:i+1], got.Signals[:i+1])
}

func TestRun_MaxDrawdownBlocksEntries(t *testing.T) {
	cfg := frictionless()
	cfg.MaxDrawdown = 0.005
	bars := stopBars(9)
	// second breakout after the stop-out
	bars = append(bars,
		mk(11, 8, 8.5, 7.5, 8),
		mk(12, 9, 14, 9, 13.5),
		mk(13, 13.5, 14, 13, 13.5),
		mk(14, 13.5, 14, 13, 13.5),
	)
	res := runEngine(t, cfg, turtle(t, nil), bars)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, 1, res.Skipped["max drawdown exceeded"])

	cfg.MaxDrawdown = 0
	res = runEngine(t, cfg, turtle(t, nil), bars)
	assert.True(t, res.FinalPosition.Open())
}

func TestRun_Errors(t *testing.T) {
	eng, err := New(DefaultConfig(), turtle(t, nil))
	require.NoError(t, err)

	_, err = eng.Run(context.Background(), "X", nil)
	assert.True(t, errors.Is(err, model.ErrInsufficientData))

	bars := flatBars(5, 10)
	bars[3].Date = bars[1].Date
	_, err = eng.Run(context.Background(), "X", bars)
	assert.True(t, errors.Is(err, model.ErrOutOfOrderData))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = eng.Run(ctx, "X", flatBars(5, 10))
	assert.True(t, errors.Is(err, context.Canceled))

	bad := DefaultConfig()
	bad.InitialCapital = 0
	_, err = New(bad, turtle(t, nil))
	assert.True(t, errors.Is(err, model.ErrInvalidConfiguration))

	_, err = New(DefaultConfig(), nil)
	assert.True(t, errors.Is(err, model.ErrInvalidConfiguration))
}

func TestRun_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	eng, err := New(frictionless(), turtle(t, nil), WithMetrics(m))
	require.NoError(t, err)

	_, err = eng.Run(context.Background(), "TEST", stopBars(9))
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("turtle", "ok")))
	assert.Equal(t, 11.0, testutil.ToFloat64(m.BarsProcessed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TradesTotal.WithLabelValues("turtle", "loss")))

	// Same bars again: indicators come from cache.
	_, err = eng.Run(context.Background(), "TEST", stopBars(9))
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndicatorHits))
}

func TestConfig_Validate(t *testing.T) {
	muts := []func(*Config){
		func(c *Config) { c.InitialCapital = -1 },
		func(c *Config) { c.CommissionRate = -0.1 },
		func(c *Config) { c.SlippageRate = 1 },
		func(c *Config) { c.PyramidCap = 0 },
		func(c *Config) { c.StopMultiple = -2 },
		func(c *Config) { c.PositionFraction = 0 },
		func(c *Config) { c.MaxDrawdown = 1.5 },
		func(c *Config) { c.BarsPerYear = 0 },
	}
	for i, mut := range muts {
		cfg := DefaultConfig()
		mut(&cfg)
		assert.Truef(t, errors.Is(cfg.Validate(), model.ErrInvalidConfiguration), "case %d", i)
	}
	assert.NoError(t, DefaultConfig().Validate())
}
