// Package indicator provides technical indicator calculations over bar data.
//
// All indicators implement the streaming Indicator interface, receiving bars
// one at a time and producing float64 values. Compute turns any indicator
// into a Series aligned 1:1 with the input bars.
package indicator

import "trading-backtestv1/internal/model"

// Indicator is the interface for all technical indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "SMA", "ATR").
	Name() string

	// Update feeds a new bar and recalculates.
	Update(bar model.Bar)

	// Value returns the current calculated value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool
}

// Source extracts the input value of a price-based indicator from a bar.
type Source func(bar model.Bar) float64

func CloseSource(b model.Bar) float64  { return b.Close }
func HighSource(b model.Bar) float64   { return b.High }
func LowSource(b model.Bar) float64    { return b.Low }
func VolumeSource(b model.Bar) float64 { return b.Volume }
