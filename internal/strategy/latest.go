package strategy

import (
	"fmt"
	"time"

	"trading-backtestv1/internal/indicator"
	"trading-backtestv1/internal/model"
)

// LatestSignal runs s over bars and returns the newest actionable signal
// whose trigger bar lies within the trailing lookback bars.
//
// A signal for the bar after the last one is included: it depends only on
// bars already known, so a placeholder bar is appended to obtain it. The
// reported SignalDate and Price are those of the trigger bar (i-1).
func LatestSignal(s Strategy, symbol string, bars []model.Bar, lookback int) (model.LatestSignal, error) {
	out := model.LatestSignal{Symbol: symbol, Strategy: s.Name(), AsOf: time.Now()}
	if err := model.ValidateBars(bars); err != nil {
		return out, err
	}
	if lookback <= 0 {
		return out, fmt.Errorf("%w: lookback must be > 0", model.ErrInvalidConfiguration)
	}
	last := bars[len(bars)-1]
	out.CurrentPrice = last.Close

	ext := make([]model.Bar, len(bars), len(bars)+1)
	copy(ext, bars)
	ext = append(ext, model.Bar{
		Date:  last.Date.AddDate(0, 0, 1),
		Open:  last.Close,
		High:  last.Close,
		Low:   last.Close,
		Close: last.Close,
	})

	set := make(indicator.Set)
	for _, spec := range s.Indicators() {
		ser, err := indicator.Compute(ext, spec)
		if err != nil {
			return out, err
		}
		set[spec.Name()] = ser
	}
	signals, err := s.GenerateSignals(ext, set)
	if err != nil {
		return out, err
	}

	oldest := len(bars) - lookback
	for i := len(signals) - 1; i >= 1; i-- {
		trigger := i - 1
		if trigger < oldest {
			break
		}
		sig := signals[i]
		if sig.Kind == model.SignalHold {
			continue
		}
		out.HasSignal = true
		out.Kind = sig.Kind
		out.SignalDate = bars[trigger].Date
		out.Price = bars[trigger].Close
		out.Level = sig.Level
		return out, nil
	}
	return out, nil
}

// Summary renders a one-line human summary of a latest-signal result.
func Summary(ls model.LatestSignal) string {
	if ls.Error != "" {
		return fmt.Sprintf("%s: error: %s", ls.Symbol, ls.Error)
	}
	if !ls.HasSignal {
		return fmt.Sprintf("%s: no signal (last %.2f)", ls.Symbol, ls.CurrentPrice)
	}
	action := "BUY"
	if ls.Kind == model.SignalExitLong || ls.Kind == model.SignalEnterShort {
		action = "SELL"
	}
	return fmt.Sprintf("%s: %s %s on %s at %.2f (last %.2f)",
		ls.Symbol, action, ls.Kind, ls.SignalDate.Format("2006-01-02"), ls.Price, ls.CurrentPrice)
}
