package indicator

import (
	"math"

	"trading-backtestv1/internal/model"
)

// ATR calculates Average True Range with Wilder's smoothing.
//
// True range is max(high-low, |high-prevClose|, |low-prevClose|); the first
// bar has no previous close and uses high-low. The average seeds with the
// simple mean of the first period true ranges, then smooths with 1/period.
type ATR struct {
	smooth    *SMMA
	prevClose float64
	seen      bool
}

// NewATR creates a new ATR indicator with the given period.
func NewATR(period int) *ATR {
	return &ATR{smooth: &SMMA{name: "ATR", period: period}}
}

func (a *ATR) Name() string { return "ATR" }

func (a *ATR) Update(bar model.Bar) {
	a.smooth.push(TrueRange(bar, a.prevClose, a.seen))
	a.prevClose = bar.Close
	a.seen = true
}

func (a *ATR) Value() float64 { return a.smooth.Value() }
func (a *ATR) Ready() bool    { return a.smooth.Ready() }

// TrueRange returns the true range of bar given the previous close.
func TrueRange(bar model.Bar, prevClose float64, hasPrev bool) float64 {
	tr := bar.High - bar.Low
	if !hasPrev {
		return tr
	}
	return math.Max(tr, math.Max(math.Abs(bar.High-prevClose), math.Abs(bar.Low-prevClose)))
}
