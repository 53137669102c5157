package strategy

import (
	"fmt"
	"math"

	"trading-backtestv1/internal/indicator"
	"trading-backtestv1/internal/model"
	"trading-backtestv1/internal/portfolio"
)

// Turtle implements the Donchian channel breakout system with ATR stops and
// pyramided units.
//
// The signal for bar i looks at the completed bar j = i-1 and compares its
// high/low with channels computed through bar j-1. Comparing against a
// channel that includes bar j would make breakouts unreachable, since the
// bar's own high can never exceed the max of a window containing it.
//
// The generator tracks a shadow position filled at each bar's open so that it
// knows when it is flat, how many units are on and where the last unit was
// added. Unit stops hang off that open, as the engine places them, so both
// see the same intrabar stop whatever the slippage.
type Turtle struct {
	p Params

	entryUpper indicator.Spec
	entryLower indicator.Spec
	exitUpper  indicator.Spec
	exitLower  indicator.Spec
	atr        indicator.Spec
}

// NewTurtle validates p and builds a Turtle generator.
func NewTurtle(p Params) (*Turtle, error) {
	for _, c := range []struct {
		name string
		v    int
	}{
		{"entry_window", p.EntryWindow},
		{"exit_window", p.ExitWindow},
		{"atr_window", p.ATRWindow},
		{"pyramid_unit_count_cap", p.PyramidCap},
	} {
		if err := positive(c.name, c.v); err != nil {
			return nil, err
		}
	}
	if p.StopMultiple <= 0 {
		return nil, fmt.Errorf("%w: stop_multiple must be > 0", model.ErrInvalidConfiguration)
	}
	if p.PyramidStep <= 0 {
		return nil, fmt.Errorf("%w: pyramid_step must be > 0", model.ErrInvalidConfiguration)
	}
	return &Turtle{
		p:          p,
		entryUpper: indicator.Spec{Kind: indicator.KindHighest, Period: p.EntryWindow},
		entryLower: indicator.Spec{Kind: indicator.KindLowest, Period: p.EntryWindow},
		exitUpper:  indicator.Spec{Kind: indicator.KindHighest, Period: p.ExitWindow},
		exitLower:  indicator.Spec{Kind: indicator.KindLowest, Period: p.ExitWindow},
		atr:        indicator.Spec{Kind: indicator.KindATR, Period: p.ATRWindow},
	}, nil
}

func (t *Turtle) Name() string { return "turtle" }

func (t *Turtle) Indicators() []indicator.Spec {
	return []indicator.Spec{t.entryUpper, t.entryLower, t.exitUpper, t.exitLower, t.atr}
}

// Sizer returns the ATR risk sizer matching the strategy's stop distance.
func (t *Turtle) Sizer() portfolio.Sizer {
	return portfolio.ATRRiskSizer{
		RiskFraction: t.p.RiskFraction,
		StopMultiple: t.p.StopMultiple,
		PointValue:   t.p.PointValue,
	}
}

// turtleSeries bundles the series the evaluation loop reads.
type turtleSeries struct {
	entryUpper, entryLower indicator.Series
	exitUpper, exitLower   indicator.Series
	atr                    indicator.Series
}

func (t *Turtle) GenerateSignals(bars []model.Bar, set indicator.Set) ([]model.Signal, error) {
	var (
		s   turtleSeries
		err error
	)
	for _, x := range []struct {
		dst  *indicator.Series
		spec indicator.Spec
	}{
		{&s.entryUpper, t.entryUpper},
		{&s.entryLower, t.entryLower},
		{&s.exitUpper, t.exitUpper},
		{&s.exitLower, t.exitLower},
		{&s.atr, t.atr},
	} {
		if *x.dst, err = series(set, x.spec); err != nil {
			return nil, err
		}
	}

	signals := make([]model.Signal, len(bars))
	sh := &shadow{stopped: -1}
	for i := range bars {
		sig := model.Hold(i, bars[i].Date)
		if i >= 2 {
			sig = t.evaluate(i, bars, s, sh)
		}
		signals[i] = sig
		sh.apply(sig, i, bars[i], t.p.StopMultiple)
		sh.stopCheck(i, bars[i])
	}
	return signals, nil
}

// evaluate decides the signal for bar i from bar j = i-1 and channels
// through k = i-2.
func (t *Turtle) evaluate(i int, bars []model.Bar, s turtleSeries, sh *shadow) model.Signal {
	j, k := i-1, i-2
	prev := bars[j]
	sig := model.Hold(i, bars[i].Date)

	// Stopped out intrabar on bar j: report the exit.
	if sh.stopped == j {
		sig.Kind = exitKind(sh.stoppedDir)
		sig.Level = sh.stopLevel
		sig.Reason = "stop"
		return sig
	}

	atr := s.atr.At(j)
	if math.IsNaN(atr) || atr <= 0 {
		return sig
	}

	switch sh.pos.Direction {
	case model.Flat:
		upper, lower := s.entryUpper.At(k), s.entryLower.At(k)
		if math.IsNaN(upper) || math.IsNaN(lower) {
			return sig
		}
		if prev.High > upper {
			return entry(sig, model.SignalEnterLong, 1, atr, upper, "entry channel breakout")
		}
		if t.p.AllowShort && prev.Low < lower {
			return entry(sig, model.SignalEnterShort, 1, atr, lower, "entry channel breakdown")
		}

	case model.Long:
		if exit := s.exitLower.At(k); !math.IsNaN(exit) && prev.Low < exit {
			sig.Kind, sig.Level, sig.Reason = model.SignalExitLong, exit, "exit channel"
			return sig
		}
		if last, ok := sh.pos.LastEntry(); ok && len(sh.pos.Units) < t.p.PyramidCap {
			trigger := last.EntryPrice + t.p.PyramidStep*last.ATR
			if prev.High >= trigger {
				return entry(sig, model.SignalEnterLong, len(sh.pos.Units)+1, atr, trigger, "pyramid")
			}
		}

	case model.Short:
		if exit := s.exitUpper.At(k); !math.IsNaN(exit) && prev.High > exit {
			sig.Kind, sig.Level, sig.Reason = model.SignalExitShort, exit, "exit channel"
			return sig
		}
		if last, ok := sh.pos.LastEntry(); ok && len(sh.pos.Units) < t.p.PyramidCap {
			trigger := last.EntryPrice - t.p.PyramidStep*last.ATR
			if prev.Low <= trigger {
				return entry(sig, model.SignalEnterShort, len(sh.pos.Units)+1, atr, trigger, "pyramid")
			}
		}
	}
	return sig
}

func entry(sig model.Signal, kind model.SignalKind, unit int, atr, level float64, reason string) model.Signal {
	sig.Kind = kind
	sig.Unit = unit
	sig.ATR = atr
	sig.Level = level
	sig.Reason = reason
	return sig
}

func exitKind(d model.Direction) model.SignalKind {
	if d == model.Short {
		return model.SignalExitShort
	}
	return model.SignalExitLong
}

// shadow is the generator's own view of the position the engine would hold.
type shadow struct {
	pos        model.Position
	stopped    int // bar index of the last intrabar stop-out, -1 if none
	stoppedDir model.Direction
	stopLevel  float64
}

func (sh *shadow) apply(sig model.Signal, i int, bar model.Bar, stopMultiple float64) {
	switch {
	case sig.Kind.IsExit():
		if sh.pos.Direction == sig.Kind.Direction() {
			sh.pos = model.Position{}
		}
	case sig.Kind.IsEntry():
		dir := sig.Kind.Direction()
		fresh := !sh.pos.Open() && sig.Unit <= 1
		add := sh.pos.Open() && sh.pos.Direction == dir && sig.Unit > 1
		if !fresh && !add {
			return
		}
		fill := bar.FillPrice()
		sh.pos.Direction = dir
		sh.pos.Units = append(sh.pos.Units, model.Unit{
			EntryIndex: i,
			EntryDate:  bar.Date,
			EntryPrice: fill,
			Size:       1,
			ATR:        sig.ATR,
			Stop:       fill - float64(dir)*stopMultiple*sig.ATR,
		})
	}
}

func (sh *shadow) stopCheck(i int, bar model.Bar) {
	level, hit := sh.pos.StopBreached(bar.Low, bar.High)
	if !hit {
		return
	}
	sh.stopped = i
	sh.stoppedDir = sh.pos.Direction
	sh.stopLevel = level
	sh.pos = model.Position{}
}
