package indicator

import "trading-backtestv1/internal/model"

// Extreme tracks the rolling maximum or minimum of a bar field over a
// trailing window that includes the latest bar. Highest(high) and
// Lowest(low) form the Donchian channel.
//
// A monotonic deque of indices keeps Update amortised O(1).
type Extreme struct {
	name   string
	source Source
	period int
	max    bool

	vals  []float64 // circular history of the last period values
	deque []int     // candidate positions, values monotonic
	count int
}

// NewHighest returns the rolling max(high) over period bars.
func NewHighest(period int) *Extreme {
	return newExtreme("HIGHEST", period, HighSource, true)
}

// NewLowest returns the rolling min(low) over period bars.
func NewLowest(period int) *Extreme {
	return newExtreme("LOWEST", period, LowSource, false)
}

func newExtreme(name string, period int, source Source, max bool) *Extreme {
	return &Extreme{
		name:   name,
		source: source,
		period: period,
		max:    max,
		vals:   make([]float64, period),
		deque:  make([]int, 0, period),
	}
}

func (e *Extreme) Name() string { return e.name }

func (e *Extreme) Update(bar model.Bar) {
	v := e.source(bar)
	pos := e.count
	e.count++

	// Drop the candidate leaving the window before its slot is reused.
	if len(e.deque) > 0 && e.deque[0] <= pos-e.period {
		e.deque = e.deque[1:]
	}
	e.vals[pos%e.period] = v

	// Drop candidates dominated by the new value.
	for len(e.deque) > 0 {
		last := e.vals[e.deque[len(e.deque)-1]%e.period]
		if (e.max && last > v) || (!e.max && last < v) {
			break
		}
		e.deque = e.deque[:len(e.deque)-1]
	}
	e.deque = append(e.deque, pos)
}

func (e *Extreme) Value() float64 {
	if len(e.deque) == 0 {
		return 0
	}
	return e.vals[e.deque[0]%e.period]
}

func (e *Extreme) Ready() bool { return e.count >= e.period }
