package indicator

import "trading-backtestv1/internal/model"

// EMA is an exponential moving average seeded with the simple mean of the
// first period values, then smoothed with alpha = 2/(period+1).
type EMA struct {
	source Source
	period int
	alpha  float64
	seed   float64 // running sum until the seed is taken
	n      int
	value  float64
}

// NewEMA creates an EMA of closing prices.
func NewEMA(period int) *EMA {
	return &EMA{
		source: CloseSource,
		period: period,
		alpha:  2.0 / float64(period+1),
	}
}

func (e *EMA) Name() string { return "EMA" }

func (e *EMA) Update(bar model.Bar) {
	v := e.source(bar)
	e.n++
	switch {
	case e.n < e.period:
		e.seed += v
	case e.n == e.period:
		e.seed += v
		e.value = e.seed / float64(e.period)
	default:
		e.value += e.alpha * (v - e.value)
	}
}

func (e *EMA) Value() float64 { return e.value }
func (e *EMA) Ready() bool    { return e.n >= e.period }

// Reset clears the EMA state for reuse.
func (e *EMA) Reset() {
	e.seed, e.value, e.n = 0, 0, 0
}
