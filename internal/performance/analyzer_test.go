package performance

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"trading-backtestv1/internal/model"
)

func curveOf(vals ...float64) []model.EquityPoint {
	out := make([]model.EquityPoint, len(vals))
	for i, v := range vals {
		out[i] = model.EquityPoint{
			Date:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i),
			Value: v,
		}
	}
	return out
}

func TestAnalyze_Empty(t *testing.T) {
	assert.Equal(t, Report{}, Analyze(nil, nil, DefaultOptions()))
}

func TestAnalyze_FlatSeries(t *testing.T) {
	r := Analyze(curveOf(100, 100, 100, 100), nil, Options{RiskFreeRate: 0.02, BarsPerYear: 252, InitialCapital: 100})
	assert.Equal(t, 0.0, r.TotalReturn)
	assert.Equal(t, 0.0, r.AnnualizedReturn)
	assert.Equal(t, 0.0, r.Volatility)
	assert.Equal(t, 0.0, r.SharpeRatio, "zero volatility gives zero Sharpe")
	assert.Equal(t, 0.0, r.MaxDrawdown)
	assert.Equal(t, 0, r.TradeCount)
	assert.Equal(t, 100.0, r.FinalValue)
}

func TestAnalyze_KnownCurve(t *testing.T) {
	curve := curveOf(100, 110, 99, 120)
	r := Analyze(curve, nil, DefaultOptions())

	assert.InDelta(t, 0.2, r.TotalReturn, 1e-12)
	assert.InDelta(t, 0.1, r.MaxDrawdown, 1e-12)
	assert.InDelta(t, math.Pow(1.2, 252.0/4)-1, r.AnnualizedReturn, 1e-6)

	rets := []float64{0.1, -0.1, 120.0/99 - 1}
	assert.InDeltaSlice(t, rets, Returns(curve), 1e-12)
	wantVol := StdDev(rets) * math.Sqrt(252)
	assert.InDelta(t, wantVol, r.Volatility, 1e-12)
	assert.InDelta(t, (r.AnnualizedReturn-0.02)/wantVol, r.SharpeRatio, 1e-9)
	assert.Equal(t, 4, r.Bars)
}

func TestAnalyze_InitialCapitalOverridesFirstPoint(t *testing.T) {
	r := Analyze(curveOf(95, 110), nil, Options{InitialCapital: 100})
	assert.InDelta(t, 0.1, r.TotalReturn, 1e-12)
}

func TestAnalyze_OneYear(t *testing.T) {
	vals := make([]float64, 252)
	for i := range vals {
		vals[i] = 100 + 10*float64(i)/251
	}
	r := Analyze(curveOf(vals...), nil, Options{BarsPerYear: 252, InitialCapital: 100})
	assert.InDelta(t, 0.1, r.AnnualizedReturn, 1e-9)
}

func TestAnalyze_TotalLoss(t *testing.T) {
	r := Analyze(curveOf(100, 50, 0), nil, DefaultOptions())
	assert.Equal(t, -1.0, r.TotalReturn)
	assert.Equal(t, -1.0, r.AnnualizedReturn)
	assert.Equal(t, 1.0, r.MaxDrawdown)
	assert.False(t, math.IsNaN(r.SharpeRatio))
}

func TestAnalyze_TradeStats(t *testing.T) {
	trades := []model.Trade{
		{PnL: 100, Commission: 1},
		{PnL: -50, Commission: 1},
		{PnL: 30, Commission: 1},
		{PnL: -10, Commission: 1},
	}
	r := Analyze(curveOf(100, 170), trades, DefaultOptions())
	assert.Equal(t, 4, r.TradeCount)
	assert.Equal(t, 2, r.Wins)
	assert.Equal(t, 2, r.Losses)
	assert.InDelta(t, 0.5, r.WinRate, 1e-12)
	assert.InDelta(t, 65, r.AvgWin, 1e-12)
	assert.InDelta(t, -30, r.AvgLoss, 1e-12)
	assert.InDelta(t, 130.0/60, r.ProfitFactor, 1e-12)
	assert.InDelta(t, 4, r.TotalCommission, 1e-12)
}

func TestAnalyze_BreakEvenTrades(t *testing.T) {
	trades := []model.Trade{{PnL: 20}, {PnL: 0}, {PnL: -10}, {PnL: 0}}
	r := Analyze(curveOf(100, 110), trades, DefaultOptions())
	assert.Equal(t, 4, r.TradeCount)
	assert.Equal(t, 1, r.Wins)
	assert.Equal(t, 1, r.Losses)
	assert.Equal(t, 2, r.BreakEven)
	assert.InDelta(t, 0.25, r.WinRate, 1e-12)
	assert.InDelta(t, -10, r.AvgLoss, 1e-12, "even trades do not dilute the average loss")
	assert.InDelta(t, 2.0, r.ProfitFactor, 1e-12)
}

func TestAnalyze_NoLosses(t *testing.T) {
	r := Analyze(curveOf(100, 110), []model.Trade{{PnL: 10}}, DefaultOptions())
	assert.Equal(t, 0.0, r.ProfitFactor)
	assert.Equal(t, 1.0, r.WinRate)
}

func TestAnalyze_Idempotent(t *testing.T) {
	curve := curveOf(100, 103, 101, 108, 104, 111)
	trades := []model.Trade{{PnL: 5}, {PnL: -2}}
	first := Analyze(curve, trades, DefaultOptions())
	second := Analyze(curve, trades, DefaultOptions())
	assert.Equal(t, first, second)
}

func TestStdDev(t *testing.T) {
	assert.Equal(t, 0.0, StdDev(nil))
	assert.Equal(t, 0.0, StdDev([]float64{3}))
	assert.InDelta(t, math.Sqrt(2.5), StdDev([]float64{1, 2, 3, 4, 5}), 1e-12)
}
