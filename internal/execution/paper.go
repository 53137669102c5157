// Package execution simulates order fills for the backtest engine.
//
// Every fill is adjusted adversely by a fixed slippage rate (buys fill
// higher, sells lower) and then charged commission on the slipped notional.
package execution

import (
	"fmt"
	"log"
	"time"
)

// Side is the direction of a simulated order.
type Side int

const (
	Buy Side = iota + 1
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "BUY"
	}
	return "SELL"
}

// Fill represents a simulated order fill.
type Fill struct {
	OrderID    string    `json:"order_id"`
	Side       Side      `json:"side"`
	Reference  float64   `json:"reference"` // price before slippage
	Price      float64   `json:"price"`     // fill price after slippage
	Size       int64     `json:"size"`
	Slippage   float64   `json:"slippage"` // per-unit adverse adjustment
	Commission float64   `json:"commission"`
	Date       time.Time `json:"date"`
	Reason     string    `json:"reason"`
}

// Notional returns price × size.
func (f Fill) Notional() float64 { return f.Price * float64(f.Size) }

// PaperExecutor simulates order execution without real broker calls.
// Not safe for concurrent use: each backtest run owns one.
type PaperExecutor struct {
	fills    []Fill
	orderSeq int64

	// Simulation parameters
	slippageRate   float64 // fraction of price, e.g. 0.0005 = 5 bps
	commissionRate float64 // fraction of notional
	verbose        bool
}

// NewPaperExecutor creates a paper executor with the given slippage and
// commission rates.
func NewPaperExecutor(slippageRate, commissionRate float64) *PaperExecutor {
	return &PaperExecutor{
		fills:          make([]Fill, 0, 64),
		slippageRate:   slippageRate,
		commissionRate: commissionRate,
	}
}

// SetVerbose enables per-fill logging.
func (p *PaperExecutor) SetVerbose(v bool) { p.verbose = v }

// CommissionRate returns the configured commission rate.
func (p *PaperExecutor) CommissionRate() float64 { return p.commissionRate }

// Quote returns the price a side would fill at for reference, without
// recording a fill.
func (p *PaperExecutor) Quote(side Side, reference float64) float64 {
	slip := reference * p.slippageRate
	if side == Buy {
		return reference + slip // buy higher
	}
	return reference - slip // sell lower
}

// Execute simulates a fill of size units at reference and records it.
func (p *PaperExecutor) Execute(side Side, reference float64, size int64, date time.Time, reason string) Fill {
	p.orderSeq++
	price := p.Quote(side, reference)
	fill := Fill{
		OrderID:    fmt.Sprintf("PAPER-%d", p.orderSeq),
		Side:       side,
		Reference:  reference,
		Price:      price,
		Size:       size,
		Slippage:   abs(price - reference),
		Commission: price * float64(size) * p.commissionRate,
		Date:       date,
		Reason:     reason,
	}
	p.fills = append(p.fills, fill)

	if p.verbose {
		log.Printf("[paper] %s qty=%d price=%.4f (slip=%.4f comm=%.4f) order=%s reason=%s",
			side, size, price, fill.Slippage, fill.Commission, fill.OrderID, reason)
	}
	return fill
}

// Fills returns a snapshot of all fills.
func (p *PaperExecutor) Fills() []Fill {
	cp := make([]Fill, len(p.fills))
	copy(cp, p.fills)
	return cp
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
