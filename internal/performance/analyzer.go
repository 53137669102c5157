// Package performance reduces an equity curve and trade list to summary
// statistics. Analyze is pure: the same inputs always give the same Report.
package performance

import (
	"math"

	"trading-backtestv1/internal/model"
)

// Options configure annualisation and the Sharpe baseline.
type Options struct {
	RiskFreeRate   float64 // annual, e.g. 0.02
	BarsPerYear    int     // 252 for daily bars
	InitialCapital float64 // 0 uses the first equity point
}

// DefaultOptions returns daily-bar settings with a 2% risk-free rate.
func DefaultOptions() Options {
	return Options{RiskFreeRate: 0.02, BarsPerYear: 252}
}

// Report is the performance summary of one run.
type Report struct {
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	Volatility       float64 `json:"volatility"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	MaxDrawdown      float64 `json:"max_drawdown"` // positive fraction of peak
	TradeCount       int     `json:"trade_count"`
	Wins             int     `json:"wins"`
	Losses           int     `json:"losses"`
	BreakEven        int     `json:"break_even"` // zero net P&L, neither win nor loss
	WinRate          float64 `json:"win_rate"`
	AvgWin           float64 `json:"avg_win"`
	AvgLoss          float64 `json:"avg_loss"` // negative
	ProfitFactor     float64 `json:"profit_factor"`
	TotalCommission  float64 `json:"total_commission"`
	FinalValue       float64 `json:"final_value"`
	Bars             int     `json:"bars"`
}

// Analyze computes the Report for curve and trades. Undefined ratios
// (empty curve, zero volatility, no losing trades) resolve to 0.
func Analyze(curve []model.EquityPoint, trades []model.Trade, opts Options) Report {
	if opts.BarsPerYear <= 0 {
		opts.BarsPerYear = 252
	}
	r := Report{Bars: len(curve)}
	r.tradeStats(trades)
	if len(curve) == 0 {
		return r
	}

	initial := opts.InitialCapital
	if initial <= 0 {
		initial = curve[0].Value
	}
	r.FinalValue = curve[len(curve)-1].Value
	if initial > 0 {
		r.TotalReturn = r.FinalValue/initial - 1
	}

	years := float64(len(curve)) / float64(opts.BarsPerYear)
	if growth := 1 + r.TotalReturn; growth > 0 {
		r.AnnualizedReturn = math.Pow(growth, 1/years) - 1
	} else {
		r.AnnualizedReturn = -1
	}

	r.Volatility = StdDev(Returns(curve)) * math.Sqrt(float64(opts.BarsPerYear))
	if r.Volatility > 0 {
		r.SharpeRatio = (r.AnnualizedReturn - opts.RiskFreeRate) / r.Volatility
	}
	r.MaxDrawdown = MaxDrawdown(curve)

	r.TotalReturn = finite(r.TotalReturn)
	r.AnnualizedReturn = finite(r.AnnualizedReturn)
	r.Volatility = finite(r.Volatility)
	r.SharpeRatio = finite(r.SharpeRatio)
	return r
}

func (r *Report) tradeStats(trades []model.Trade) {
	var grossWin, grossLoss float64
	for i := range trades {
		t := &trades[i]
		r.TotalCommission += t.Commission
		switch t.Outcome() {
		case "win":
			r.Wins++
			grossWin += t.PnL
		case "loss":
			r.Losses++
			grossLoss += t.PnL
		default:
			r.BreakEven++
		}
	}
	r.TradeCount = len(trades)
	if r.TradeCount > 0 {
		r.WinRate = float64(r.Wins) / float64(r.TradeCount)
	}
	if r.Wins > 0 {
		r.AvgWin = grossWin / float64(r.Wins)
	}
	if r.Losses > 0 {
		r.AvgLoss = grossLoss / float64(r.Losses)
	}
	if grossLoss < 0 {
		r.ProfitFactor = grossWin / -grossLoss
	}
}

// Returns computes per-bar simple returns of the curve. Bars following a
// non-positive value are skipped.
func Returns(curve []model.EquityPoint) []float64 {
	if len(curve) < 2 {
		return nil
	}
	out := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Value
		if prev <= 0 {
			continue
		}
		out = append(out, curve[i].Value/prev-1)
	}
	return out
}

// StdDev returns the sample standard deviation (n-1 denominator); 0 for
// fewer than two values.
func StdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

// MaxDrawdown returns the largest peak-to-trough decline as a positive
// fraction of the peak.
func MaxDrawdown(curve []model.EquityPoint) float64 {
	var peak, maxDD float64
	for _, pt := range curve {
		if pt.Value > peak {
			peak = pt.Value
		}
		if peak > 0 {
			if dd := (peak - pt.Value) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
