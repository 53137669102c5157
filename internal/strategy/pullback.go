package strategy

import (
	"fmt"
	"math"

	"trading-backtestv1/internal/indicator"
	"trading-backtestv1/internal/model"
)

const recentHighWindow = 20

// Pullback buys a dip inside an established uptrend:
//   - close above the trend MA
//   - close at least pullback_threshold below the recent high
//   - close within support_band of the support MA
//   - RSI below rsi_oversold
//   - close above the previous close (the bounce)
//
// It exits when price touches the ATR stop or take-profit, or the trend
// breaks (close at or below the trend MA).
type Pullback struct {
	p Params

	trend      indicator.Spec
	support    indicator.Spec
	rsi        indicator.Spec
	atr        indicator.Spec
	recentHigh indicator.Spec
}

func NewPullback(p Params) (*Pullback, error) {
	for name, v := range map[string]int{
		"trend_window":   p.TrendWindow,
		"support_window": p.SupportWindow,
		"rsi_window":     p.RSIWindow,
		"atr_window":     p.ATRWindow,
	} {
		if err := positive(name, v); err != nil {
			return nil, err
		}
	}
	if p.StopMultiple <= 0 || p.TakeProfit <= 0 {
		return nil, fmt.Errorf("%w: stop_multiple and take_profit_multiple must be > 0", model.ErrInvalidConfiguration)
	}
	return &Pullback{
		p:          p,
		trend:      indicator.Spec{Kind: indicator.KindSMA, Period: p.TrendWindow},
		support:    indicator.Spec{Kind: indicator.KindSMA, Period: p.SupportWindow},
		rsi:        indicator.Spec{Kind: indicator.KindRSI, Period: p.RSIWindow},
		atr:        indicator.Spec{Kind: indicator.KindATR, Period: p.ATRWindow},
		recentHigh: indicator.Spec{Kind: indicator.KindHighest, Period: recentHighWindow},
	}, nil
}

func (s *Pullback) Name() string { return "pullback" }

func (s *Pullback) Indicators() []indicator.Spec {
	return []indicator.Spec{s.trend, s.support, s.rsi, s.atr, s.recentHigh}
}

func (s *Pullback) GenerateSignals(bars []model.Bar, set indicator.Set) ([]model.Signal, error) {
	var all [5]indicator.Series
	for n, spec := range s.Indicators() {
		ser, err := series(set, spec)
		if err != nil {
			return nil, err
		}
		all[n] = ser
	}
	trend, support, rsi, atr, recentHigh := all[0], all[1], all[2], all[3], all[4]

	signals := holds(bars)
	var (
		long             bool
		stop, takeProfit float64
	)
	for i := 2; i < len(bars); i++ {
		j := i - 1
		b := bars[j]
		if !trend.Valid(j) || !support.Valid(j) || !rsi.Valid(j) || !atr.Valid(j) || !recentHigh.Valid(j) {
			continue
		}
		uptrend := b.Close > trend[j]

		if !long {
			pullback := (recentHigh[j] - b.Close) / recentHigh[j]
			nearSupport := math.Abs(b.Close-support[j])/support[j] < s.p.SupportBand
			if uptrend && pullback >= s.p.PullbackPct && nearSupport &&
				rsi[j] < s.p.RSIOversold && b.Close > bars[j-1].Close && atr[j] > 0 {
				signals[i] = entry(signals[i], model.SignalEnterLong, 1, atr[j], support[j], "pullback to support")
				fill := bars[i].FillPrice()
				stop = fill - s.p.StopMultiple*atr[j]
				takeProfit = fill + s.p.TakeProfit*atr[j]
				long = true
			}
			continue
		}

		var reason string
		switch {
		case b.Low <= stop:
			reason = "stop"
		case b.High >= takeProfit:
			reason = "take profit"
		case !uptrend:
			reason = "trend lost"
		default:
			continue
		}
		signals[i].Kind = model.SignalExitLong
		signals[i].Reason = reason
		long = false
	}
	return signals, nil
}
