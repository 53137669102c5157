package portfolio

import "trading-backtestv1/internal/model"

// PnLTracker accumulates closed trades and realized P&L for one run.
type PnLTracker struct {
	trades      []model.Trade
	realizedPnL float64
	commission  float64
}

// NewPnLTracker creates a new P&L tracker.
func NewPnLTracker() *PnLTracker {
	return &PnLTracker{trades: make([]model.Trade, 0, 64)}
}

// RecordTrade records a closed trade and returns its realized P&L.
func (p *PnLTracker) RecordTrade(t model.Trade) float64 {
	p.trades = append(p.trades, t)
	p.realizedPnL += t.PnL
	p.commission += t.Commission
	return t.PnL
}

// Realized returns the total realized P&L, net of commission.
func (p *PnLTracker) Realized() float64 { return p.realizedPnL }

// Trades returns a snapshot of all trades.
func (p *PnLTracker) Trades() []model.Trade {
	cp := make([]model.Trade, len(p.trades))
	copy(cp, p.trades)
	return cp
}

// PnLSummary is a realized/unrealized breakdown at a point in time.
type PnLSummary struct {
	RealizedPnL   float64 `json:"realized_pnl"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	TotalPnL      float64 `json:"total_pnl"`
	Commission    float64 `json:"commission"`
	TotalTrades   int     `json:"total_trades"`
	OpenUnits     int     `json:"open_units"`
}

// Summary returns the P&L summary of s marked at price.
func (s *State) Summary(price float64) PnLSummary {
	var unrealized float64
	for _, u := range s.position.Units {
		diff := price - u.EntryPrice
		if s.position.Direction < 0 {
			diff = -diff
		}
		unrealized += diff*float64(u.Size) - u.Commission
	}
	return PnLSummary{
		RealizedPnL:   s.pnl.realizedPnL,
		UnrealizedPnL: unrealized,
		TotalPnL:      s.pnl.realizedPnL + unrealized,
		Commission:    s.pnl.commission,
		TotalTrades:   len(s.pnl.trades),
		OpenUnits:     len(s.position.Units),
	}
}
