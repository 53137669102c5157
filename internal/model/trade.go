package model

import "time"

// Trade is a closed round trip. One Trade is recorded per full exit; a
// pyramided position reports the size-weighted entry price of its units.
type Trade struct {
	Symbol     string    `json:"symbol"`
	Direction  Direction `json:"direction"`
	EntryIndex int       `json:"entry_index"`
	ExitIndex  int       `json:"exit_index"`
	EntryDate  time.Time `json:"entry_date"`
	ExitDate   time.Time `json:"exit_date"`
	Size       int64     `json:"size"`
	Units      int       `json:"units"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	Commission float64   `json:"commission"`
	PnL        float64   `json:"pnl"` // net of commission
	ExitReason string    `json:"exit_reason"`
}

// Outcome classifies the trade as "win", "loss" or "even" (zero net P&L).
func (t *Trade) Outcome() string {
	switch {
	case t.PnL > 0:
		return "win"
	case t.PnL < 0:
		return "loss"
	}
	return "even"
}

// EquityPoint is the portfolio value recorded after a bar's transitions.
type EquityPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
	Cash  float64   `json:"cash"`
}
