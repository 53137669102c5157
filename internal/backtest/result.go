package backtest

import (
	"time"

	"trading-backtestv1/internal/execution"
	"trading-backtestv1/internal/model"
	"trading-backtestv1/internal/performance"
	"trading-backtestv1/internal/portfolio"
)

// Result is the complete, in-memory output of one run.
type Result struct {
	Symbol        string               `json:"symbol"`
	Strategy      string               `json:"strategy"`
	TraceID       string               `json:"trace_id"`
	Performance   performance.Report   `json:"performance"`
	Trades        []model.Trade        `json:"trades"`
	EquityCurve   []model.EquityPoint  `json:"equity_curve"`
	Signals       []model.Signal       `json:"-"`
	Fills         []execution.Fill     `json:"-"`
	FinalPosition model.Position       `json:"final_position"`
	PnL           portfolio.PnLSummary `json:"pnl"`
	Skipped       map[string]int       `json:"skipped,omitempty"` // ignored entries by reason
	Duration      time.Duration        `json:"duration"`
}

// ActiveSignals returns the non-hold signals.
func (r *Result) ActiveSignals() []model.Signal {
	var out []model.Signal
	for _, s := range r.Signals {
		if s.Kind != model.SignalHold {
			out = append(out, s)
		}
	}
	return out
}
