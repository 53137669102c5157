// Package strategy turns bar series into per-bar trading signals.
//
// Every signal at index i is derived only from bars and indicator values at
// indices up to i-1 and is acted upon at bar i. Strategies are pure: they
// receive the full bar slice plus precomputed indicator series and return
// one Signal per bar.
package strategy

import (
	"fmt"
	"sort"

	"trading-backtestv1/internal/indicator"
	"trading-backtestv1/internal/model"
	"trading-backtestv1/internal/portfolio"
)

// Strategy is the interface that all signal generators implement.
type Strategy interface {
	// Name returns the registry name of the strategy.
	Name() string

	// Indicators lists the series GenerateSignals reads from the set.
	Indicators() []indicator.Spec

	// GenerateSignals returns exactly one signal per bar.
	GenerateSignals(bars []model.Bar, set indicator.Set) ([]model.Signal, error)
}

// SizerProvider is implemented by strategies that carry their own sizing
// model (Turtle's ATR risk sizing).
type SizerProvider interface {
	Sizer() portfolio.Sizer
}

// Params holds every recognised strategy option. Fields a strategy does not
// use are ignored.
type Params struct {
	EntryWindow   int     `mapstructure:"entry_window" json:"entry_window"`
	ExitWindow    int     `mapstructure:"exit_window" json:"exit_window"`
	ATRWindow     int     `mapstructure:"atr_window" json:"atr_window"`
	StopMultiple  float64 `mapstructure:"stop_multiple" json:"stop_multiple"`
	PyramidStep   float64 `mapstructure:"pyramid_step" json:"pyramid_step"`
	PyramidCap    int     `mapstructure:"pyramid_unit_count_cap" json:"pyramid_unit_count_cap"`
	AllowShort    bool    `mapstructure:"allow_short" json:"allow_short"`
	RiskFraction  float64 `mapstructure:"risk_fraction" json:"risk_fraction"`
	PointValue    float64 `mapstructure:"point_value" json:"point_value"`
	ShortWindow   int     `mapstructure:"short_window" json:"short_window"`
	LongWindow    int     `mapstructure:"long_window" json:"long_window"`
	MAType        string  `mapstructure:"ma_type" json:"ma_type"` // sma or ema, for sma_crossover
	RSIFilter     bool    `mapstructure:"rsi_filter" json:"rsi_filter"`
	PositionFrac  float64 `mapstructure:"position_fraction" json:"position_fraction"`
	TrendWindow   int     `mapstructure:"trend_window" json:"trend_window"`
	SupportWindow int     `mapstructure:"support_window" json:"support_window"`
	BaseWindow    int     `mapstructure:"base_window" json:"base_window"`
	RSIWindow     int     `mapstructure:"rsi_window" json:"rsi_window"`
	RSIOversold   float64 `mapstructure:"rsi_oversold" json:"rsi_oversold"`
	PullbackPct   float64 `mapstructure:"pullback_threshold" json:"pullback_threshold"`
	TakeProfit    float64 `mapstructure:"take_profit_multiple" json:"take_profit_multiple"`
	SupportBand   float64 `mapstructure:"support_band" json:"support_band"`
	VolumeWindow  int     `mapstructure:"volume_window" json:"volume_window"`
}

// DefaultParams returns the classic Turtle System 1 settings plus the
// defaults of the other strategies.
func DefaultParams() Params {
	return Params{
		EntryWindow:   20,
		ExitWindow:    10,
		ATRWindow:     20,
		StopMultiple:  2.0,
		PyramidStep:   0.5,
		PyramidCap:    4,
		AllowShort:    true,
		RiskFraction:  0.01,
		PointValue:    1,
		ShortWindow:   20,
		LongWindow:    50,
		MAType:        "sma",
		PositionFrac:  0.1,
		TrendWindow:   50,
		SupportWindow: 20,
		BaseWindow:    60,
		RSIWindow:     14,
		RSIOversold:   30,
		PullbackPct:   0.05,
		TakeProfit:    3.0,
		SupportBand:   0.03,
		VolumeWindow:  5,
	}
}

type constructor func(p Params) (Strategy, error)

var registry = map[string]constructor{
	"turtle":        func(p Params) (Strategy, error) { return NewTurtle(p) },
	"sma_crossover": func(p Params) (Strategy, error) { return NewSMACrossover(p) },
	"buy_and_hold":  func(p Params) (Strategy, error) { return NewBuyAndHold(p) },
	"pullback":      func(p Params) (Strategy, error) { return NewPullback(p) },
	"ma_pullback":   func(p Params) (Strategy, error) { return NewMAPullback(p) },
}

// New builds the named strategy.
func New(name string, p Params) (Strategy, error) {
	c, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown strategy %q", model.ErrInvalidConfiguration, name)
	}
	return c(p)
}

// Names returns the registered strategy names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// SizerFor returns the strategy's own sizer, or a fixed-fraction sizer.
func SizerFor(s Strategy, fraction float64) portfolio.Sizer {
	if sp, ok := s.(SizerProvider); ok {
		return sp.Sizer()
	}
	return portfolio.FixedFractionSizer{Fraction: fraction}
}

// series fetches a required series from the set.
func series(set indicator.Set, spec indicator.Spec) (indicator.Series, error) {
	s := set.Get(spec)
	if s == nil {
		return nil, fmt.Errorf("%w: indicator %s not computed", model.ErrInvalidConfiguration, spec.Name())
	}
	return s, nil
}

func positive(name string, v int) error {
	if v <= 0 {
		return fmt.Errorf("%w: %s must be > 0, got %d", model.ErrInvalidConfiguration, name, v)
	}
	return nil
}

func holds(bars []model.Bar) []model.Signal {
	out := make([]model.Signal, len(bars))
	for i, b := range bars {
		out[i] = model.Hold(i, b.Date)
	}
	return out
}
