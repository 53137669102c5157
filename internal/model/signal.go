package model

import "time"

// SignalKind is a discrete position-change instruction for one bar.
type SignalKind string

const (
	SignalHold       SignalKind = "HOLD"
	SignalEnterLong  SignalKind = "ENTER_LONG"
	SignalEnterShort SignalKind = "ENTER_SHORT"
	SignalExitLong   SignalKind = "EXIT_LONG"
	SignalExitShort  SignalKind = "EXIT_SHORT"
)

// IsEntry reports whether the kind opens or adds to a position.
func (k SignalKind) IsEntry() bool {
	return k == SignalEnterLong || k == SignalEnterShort
}

// IsExit reports whether the kind closes a position.
func (k SignalKind) IsExit() bool {
	return k == SignalExitLong || k == SignalExitShort
}

// Direction returns the position direction the signal refers to.
func (k SignalKind) Direction() Direction {
	switch k {
	case SignalEnterLong, SignalExitLong:
		return Long
	case SignalEnterShort, SignalExitShort:
		return Short
	}
	return Flat
}

// Signal is attached to the bar at which it is acted upon. It is derived
// only from data at indices strictly before Index.
type Signal struct {
	Index  int        `json:"index"`
	Date   time.Time  `json:"date"`
	Kind   SignalKind `json:"kind"`
	Unit   int        `json:"unit,omitempty"`  // 1-based pyramid unit for entries
	ATR    float64    `json:"atr,omitempty"`   // volatility known at signal time
	Level  float64    `json:"level,omitempty"` // channel / trigger level crossed
	Reason string     `json:"reason,omitempty"`
}

// Hold returns a Hold signal for bar i.
func Hold(i int, date time.Time) Signal {
	return Signal{Index: i, Date: date, Kind: SignalHold}
}
