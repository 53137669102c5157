package backtest

import (
	"fmt"

	"trading-backtestv1/internal/model"
)

// Config holds the engine-level settings of a run. Strategy parameters live
// in strategy.Params; PyramidCap and StopMultiple are copied from there by
// the config layer and are not read from the backtest section.
type Config struct {
	InitialCapital   float64 `mapstructure:"initial_capital" json:"initial_capital"`
	CommissionRate   float64 `mapstructure:"commission_rate" json:"commission_rate"`
	SlippageRate     float64 `mapstructure:"slippage_rate" json:"slippage_rate"`
	RiskFreeRate     float64 `mapstructure:"risk_free_rate" json:"risk_free_rate"`
	BarsPerYear      int     `mapstructure:"bars_per_year" json:"bars_per_year"`
	PyramidCap       int     `mapstructure:"-" json:"pyramid_unit_count_cap"`
	StopMultiple     float64 `mapstructure:"-" json:"stop_multiple"` // 0 disables intrabar stops
	PositionFraction float64 `mapstructure:"position_fraction" json:"position_fraction"`
	MaxDrawdown      float64 `mapstructure:"max_drawdown" json:"max_drawdown"` // 0 disables the guard
	Verbose          bool    `mapstructure:"verbose" json:"verbose"`
}

// DefaultConfig mirrors the usual retail equity assumptions: 0.1%
// commission, 5 bps slippage, 2% risk-free rate, daily bars.
func DefaultConfig() Config {
	return Config{
		InitialCapital:   100000,
		CommissionRate:   0.001,
		SlippageRate:     0.0005,
		RiskFreeRate:     0.02,
		BarsPerYear:      252,
		PyramidCap:       4,
		StopMultiple:     2.0,
		PositionFraction: 0.1,
	}
}

// Validate reports the first invalid setting, wrapped in
// model.ErrInvalidConfiguration.
func (c Config) Validate() error {
	switch {
	case c.InitialCapital <= 0:
		return invalid("initial_capital must be > 0, got %v", c.InitialCapital)
	case c.CommissionRate < 0 || c.CommissionRate >= 1:
		return invalid("commission_rate must be in [0, 1), got %v", c.CommissionRate)
	case c.SlippageRate < 0 || c.SlippageRate >= 1:
		return invalid("slippage_rate must be in [0, 1), got %v", c.SlippageRate)
	case c.BarsPerYear <= 0:
		return invalid("bars_per_year must be > 0, got %d", c.BarsPerYear)
	case c.PyramidCap < 1:
		return invalid("pyramid_unit_count_cap must be >= 1, got %d", c.PyramidCap)
	case c.StopMultiple < 0:
		return invalid("stop_multiple must be >= 0, got %v", c.StopMultiple)
	case c.PositionFraction <= 0 || c.PositionFraction > 1:
		return invalid("position_fraction must be in (0, 1], got %v", c.PositionFraction)
	case c.MaxDrawdown < 0 || c.MaxDrawdown >= 1:
		return invalid("max_drawdown must be in [0, 1), got %v", c.MaxDrawdown)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{model.ErrInvalidConfiguration}, args...)...)
}
