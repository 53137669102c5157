package model

import "time"

// Direction is the side of an open position.
type Direction int

const (
	Flat  Direction = 0
	Long  Direction = 1
	Short Direction = -1
)

func (d Direction) String() string {
	switch d {
	case Long:
		return "LONG"
	case Short:
		return "SHORT"
	default:
		return "FLAT"
	}
}

// Unit is one sized increment of a position with its own entry and stop.
type Unit struct {
	EntryIndex int       `json:"entry_index"`
	EntryDate  time.Time `json:"entry_date"`
	EntryPrice float64   `json:"entry_price"` // fill price after slippage
	Size       int64     `json:"size"`
	Stop       float64   `json:"stop"`
	ATR        float64   `json:"atr"`
	Commission float64   `json:"commission"`
}

// Position aggregates same-direction pyramided units into one logical holding.
type Position struct {
	Symbol    string    `json:"symbol"`
	Direction Direction `json:"direction"`
	Units     []Unit    `json:"units"`
}

// Open reports whether the position holds any units.
func (p *Position) Open() bool {
	return p != nil && len(p.Units) > 0
}

// Size returns the total unsigned unit count across all units.
func (p *Position) Size() int64 {
	if p == nil {
		return 0
	}
	var n int64
	for _, u := range p.Units {
		n += u.Size
	}
	return n
}

// SignedSize returns Size with the direction applied (negative for shorts).
func (p *Position) SignedSize() int64 {
	if p == nil {
		return 0
	}
	return p.Size() * int64(p.Direction)
}

// AvgEntry returns the size-weighted average entry price.
func (p *Position) AvgEntry() float64 {
	size := p.Size()
	if size == 0 {
		return 0
	}
	var notional float64
	for _, u := range p.Units {
		notional += u.EntryPrice * float64(u.Size)
	}
	return notional / float64(size)
}

// LastEntry returns the most recently added unit. ok is false when flat.
func (p *Position) LastEntry() (Unit, bool) {
	if !p.Open() {
		return Unit{}, false
	}
	return p.Units[len(p.Units)-1], true
}

// MarketValue returns the signed mark-to-market value at price.
func (p *Position) MarketValue(price float64) float64 {
	return float64(p.SignedSize()) * price
}

// StopBreached reports whether a bar trading between low and high crosses
// any unit stop, returning the tightest breached stop level.
func (p *Position) StopBreached(low, high float64) (float64, bool) {
	if !p.Open() {
		return 0, false
	}
	var (
		level float64
		hit   bool
	)
	for _, u := range p.Units {
		if u.Stop <= 0 {
			continue
		}
		switch p.Direction {
		case Long:
			if low <= u.Stop && (!hit || u.Stop > level) {
				level, hit = u.Stop, true
			}
		case Short:
			if high >= u.Stop && (!hit || u.Stop < level) {
				level, hit = u.Stop, true
			}
		}
	}
	return level, hit
}
