package model

import (
	"fmt"
	"time"
)

// Bar is one OHLCV row of a historical price series.
// Bars are immutable once fetched and are processed in chronological order.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// FillPrice returns the price a market order placed before this bar would
// execute at: the open, or the close when the source carries no open.
func (b *Bar) FillPrice() float64 {
	if b.Open > 0 {
		return b.Open
	}
	return b.Close
}

// ValidateBars checks that a bar sequence is usable by the engine:
// non-empty, strictly increasing dates, no duplicates.
func ValidateBars(bars []Bar) error {
	if len(bars) == 0 {
		return fmt.Errorf("%w: no bars", ErrInsufficientData)
	}
	for i := 1; i < len(bars); i++ {
		prev, cur := bars[i-1].Date, bars[i].Date
		if cur.Equal(prev) {
			return fmt.Errorf("%w: duplicate date %s at index %d", ErrOutOfOrderData, cur.Format("2006-01-02"), i)
		}
		if cur.Before(prev) {
			return fmt.Errorf("%w: %s at index %d precedes %s", ErrOutOfOrderData,
				cur.Format("2006-01-02"), i, prev.Format("2006-01-02"))
		}
	}
	return nil
}
