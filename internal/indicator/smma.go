package indicator

import "trading-backtestv1/internal/model"

// SMMA calculates Smoothed Moving Average (Wilder-style smoothing).
// First value is SMA(period), then SMMA = (prev*(period-1) + value) / period.
type SMMA struct {
	name    string
	source  Source
	period  int
	count   int
	sum     float64
	current float64
}

// NewSMMA creates a new SMMA of closing prices with the given period.
func NewSMMA(period int) *SMMA {
	return &SMMA{name: "SMMA", source: CloseSource, period: period}
}

func (s *SMMA) Name() string { return s.name }

func (s *SMMA) Update(bar model.Bar) {
	s.push(s.source(bar))
}

// push feeds a raw value; ATR reuses it with true range as the input.
func (s *SMMA) push(v float64) {
	s.count++

	if s.count <= s.period {
		// Accumulate for initial SMA seed
		s.sum += v
		if s.count == s.period {
			s.current = s.sum / float64(s.period)
		}
		return
	}

	// Wilder-style smoothing
	s.current = (s.current*float64(s.period-1) + v) / float64(s.period)
}

func (s *SMMA) Value() float64 { return s.current }
func (s *SMMA) Ready() bool    { return s.count >= s.period }
