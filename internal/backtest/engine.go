// Package backtest drives a strategy's signals through a simulated portfolio
// bar by bar and produces the trades, equity curve and performance report of
// the run.
//
// Processing is strictly sequential. For each bar the engine:
//  1. executes the bar's signal at the open (slippage, then commission),
//  2. checks open unit stops against the bar's range,
//  3. records the equity point at the close.
package backtest

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"math"
	"time"

	"trading-backtestv1/internal/execution"
	"trading-backtestv1/internal/indicator"
	"trading-backtestv1/internal/logger"
	"trading-backtestv1/internal/metrics"
	"trading-backtestv1/internal/model"
	"trading-backtestv1/internal/performance"
	"trading-backtestv1/internal/portfolio"
	"trading-backtestv1/internal/strategy"
)

// Engine runs one strategy over bar series. An Engine may be reused for
// several sequential runs; concurrent runs need one Engine each.
type Engine struct {
	cfg        Config
	strategy   strategy.Strategy
	sizer      portfolio.Sizer
	indicators *indicator.Engine
	metrics    *metrics.Metrics
}

// Option customises an Engine.
type Option func(*Engine)

// WithSizer overrides the strategy's preferred sizer.
func WithSizer(s portfolio.Sizer) Option {
	return func(e *Engine) { e.sizer = s }
}

// WithMetrics records run metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New validates cfg and builds an engine for strat.
func New(cfg Config, strat strategy.Strategy, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if strat == nil {
		return nil, fmt.Errorf("%w: nil strategy", model.ErrInvalidConfiguration)
	}
	e := &Engine{
		cfg:        cfg,
		strategy:   strat,
		sizer:      strategy.SizerFor(strat, cfg.PositionFraction),
		indicators: indicator.NewEngine(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Strategy returns the engine's strategy.
func (e *Engine) Strategy() strategy.Strategy { return e.strategy }

// Run backtests bars for symbol. Bars must be strictly increasing by date.
// The context is checked between bars.
func (e *Engine) Run(ctx context.Context, symbol string, bars []model.Bar) (*Result, error) {
	start := time.Now()
	if logger.TraceID(ctx) == "" {
		ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(symbol, start))
	}

	res, err := e.run(ctx, symbol, bars)
	if e.metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		e.metrics.RunsTotal.WithLabelValues(e.strategy.Name(), outcome).Inc()
		e.metrics.RunDuration.WithLabelValues(e.strategy.Name()).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		slog.Error("backtest failed", append(logger.LogWithTrace(ctx),
			"symbol", symbol, "strategy", e.strategy.Name(), "error", err)...)
		return nil, err
	}

	res.Duration = time.Since(start)
	slog.Info("backtest complete", append(logger.LogWithTrace(ctx),
		"symbol", symbol,
		"strategy", e.strategy.Name(),
		"bars", len(bars),
		"trades", res.Performance.TradeCount,
		"total_return", res.Performance.TotalReturn,
		"duration", res.Duration)...)
	return res, nil
}

func (e *Engine) run(ctx context.Context, symbol string, bars []model.Bar) (*Result, error) {
	if err := model.ValidateBars(bars); err != nil {
		return nil, fmt.Errorf("backtest %s: %w", symbol, err)
	}

	hits := e.indicators.CacheHits()
	set, err := e.indicators.Compute(symbol, bars, e.strategy.Indicators())
	if err != nil {
		return nil, fmt.Errorf("backtest %s: indicators: %w", symbol, err)
	}
	signals, err := e.strategy.GenerateSignals(bars, set)
	if err != nil {
		return nil, fmt.Errorf("backtest %s: signals: %w", symbol, err)
	}
	if len(signals) != len(bars) {
		return nil, fmt.Errorf("backtest %s: %d signals for %d bars", symbol, len(signals), len(bars))
	}

	sim := &simulation{
		cfg:     e.cfg,
		sizer:   e.sizer,
		state:   portfolio.New(symbol, e.cfg.InitialCapital),
		exec:    execution.NewPaperExecutor(e.cfg.SlippageRate, e.cfg.CommissionRate),
		risk:    portfolio.NewRiskManager(portfolio.RiskLimits{MaxDrawdown: e.cfg.MaxDrawdown}, e.cfg.InitialCapital),
		skipped: make(map[string]int),
	}
	sim.exec.SetVerbose(e.cfg.Verbose)

	for i, bar := range bars {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("backtest %s: cancelled at bar %d: %w", symbol, i, err)
		}
		if err := sim.step(i, bar, signals[i]); err != nil {
			return nil, fmt.Errorf("backtest %s: bar %d (%s): %w", symbol, i, bar.Date.Format("2006-01-02"), err)
		}
	}

	curve := sim.state.EquityCurve()
	if len(curve) != len(bars) {
		return nil, fmt.Errorf("backtest %s: equity curve has %d points for %d bars", symbol, len(curve), len(bars))
	}
	trades := sim.state.Trades()

	res := &Result{
		Symbol:        symbol,
		Strategy:      e.strategy.Name(),
		TraceID:       logger.TraceID(ctx),
		Trades:        trades,
		EquityCurve:   curve,
		Signals:       signals,
		Fills:         sim.exec.Fills(),
		FinalPosition: sim.state.Position(),
		PnL:           sim.state.Summary(bars[len(bars)-1].Close),
		Skipped:       sim.skipped,
		Performance: performance.Analyze(curve, trades, performance.Options{
			RiskFreeRate:   e.cfg.RiskFreeRate,
			BarsPerYear:    e.cfg.BarsPerYear,
			InitialCapital: e.cfg.InitialCapital,
		}),
	}

	if e.cfg.Verbose {
		log.Printf("[backtest] %s risk: %v", symbol, sim.risk.Status())
	}
	if e.metrics != nil {
		e.recordMetrics(res, len(bars), e.indicators.CacheHits()-hits)
	}
	return res, nil
}

func (e *Engine) recordMetrics(res *Result, bars, cacheHits int) {
	name := e.strategy.Name()
	e.metrics.BarsProcessed.Add(float64(bars))
	e.metrics.IndicatorHits.Add(float64(cacheHits))
	for i := range res.Trades {
		e.metrics.TradesTotal.WithLabelValues(name, res.Trades[i].Outcome()).Inc()
	}
	for _, s := range res.ActiveSignals() {
		e.metrics.SignalsTotal.WithLabelValues(name, string(s.Kind)).Inc()
	}
}

// simulation is the per-run mutable state machine: Flat → Long/Short(1..N) → Flat.
type simulation struct {
	cfg     Config
	sizer   portfolio.Sizer
	state   *portfolio.State
	exec    *execution.PaperExecutor
	risk    *portfolio.RiskManager
	skipped map[string]int
}

func (s *simulation) step(i int, bar model.Bar, sig model.Signal) error {
	open := bar.FillPrice()

	switch {
	case sig.Kind.IsExit():
		if s.state.Direction() == sig.Kind.Direction() {
			if err := s.exit(i, bar, open, reason(sig, "exit signal")); err != nil {
				return err
			}
		}

	case sig.Kind.IsEntry():
		dir := sig.Kind.Direction()
		cur := s.state.Direction()
		if cur != model.Flat && cur != dir {
			if err := s.exit(i, bar, open, "reverse"); err != nil {
				return err
			}
			cur = model.Flat
		}
		switch {
		case cur == model.Flat && sig.Unit <= 1:
			if err := s.enter(i, bar, dir, open, sig); err != nil {
				return err
			}
		case cur == dir && sig.Unit > 1 && s.state.UnitCount() < s.cfg.PyramidCap:
			if err := s.enter(i, bar, dir, open, sig); err != nil {
				return err
			}
		default:
			s.skip("not eligible")
		}
	}

	if level, hit := s.state.StopBreached(bar.Low, bar.High); hit {
		price := level
		// Gapped through the stop: the open is the first available price.
		switch s.state.Direction() {
		case model.Long:
			if open < level {
				price = open
			}
		case model.Short:
			if open > level {
				price = open
			}
		}
		if err := s.exit(i, bar, price, "stop"); err != nil {
			return err
		}
	}

	pt := s.state.Mark(bar.Date, bar.Close)
	s.risk.Observe(pt.Value)
	return nil
}

func (s *simulation) enter(i int, bar model.Bar, dir model.Direction, ref float64, sig model.Signal) error {
	side := execution.Buy
	if dir == model.Short {
		side = execution.Sell
	}
	price := s.exec.Quote(side, ref)
	pos := s.state.Position()
	size := s.sizer.Size(portfolio.SizeRequest{
		Capital:        s.state.Value(ref),
		Cash:           s.state.Cash(),
		Exposure:       math.Abs(pos.MarketValue(ref)),
		Price:          price,
		ATR:            sig.ATR,
		CommissionRate: s.exec.CommissionRate(),
	})
	if size <= 0 {
		s.skip("zero size")
		return nil
	}
	if ok, why := s.risk.CanEnter(pos.Size(), size); !ok {
		s.skip(why)
		return nil
	}

	fill := s.exec.Execute(side, ref, size, bar.Date, reason(sig, "entry signal"))
	// Stops hang off the reference price, not the slipped fill, so they sit
	// where the strategy placed them when it generated the signal.
	var stop float64
	if s.cfg.StopMultiple > 0 && sig.ATR > 0 {
		stop = ref - float64(dir)*s.cfg.StopMultiple*sig.ATR
	}
	return s.state.OpenUnit(dir, model.Unit{
		EntryIndex: i,
		EntryDate:  bar.Date,
		EntryPrice: fill.Price,
		Size:       size,
		Stop:       stop,
		ATR:        sig.ATR,
		Commission: fill.Commission,
	})
}

func (s *simulation) exit(i int, bar model.Bar, ref float64, why string) error {
	side := execution.Sell
	if s.state.Direction() == model.Short {
		side = execution.Buy
	}
	pos := s.state.Position()
	fill := s.exec.Execute(side, ref, pos.Size(), bar.Date, why)
	trade, err := s.state.Close(i, bar.Date, fill.Price, fill.Commission, why)
	if err != nil {
		return err
	}
	if s.cfg.Verbose {
		log.Printf("[backtest] %s closed %s %d units @ %.4f pnl=%.2f (%s)",
			trade.Symbol, trade.Direction, trade.Size, trade.ExitPrice, trade.PnL, why)
	}
	return nil
}

func (s *simulation) skip(why string) { s.skipped[why]++ }

func reason(sig model.Signal, fallback string) string {
	if sig.Reason != "" {
		return sig.Reason
	}
	return fallback
}
