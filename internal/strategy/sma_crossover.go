package strategy

import (
	"fmt"
	"log"
	"strings"

	"trading-backtestv1/internal/indicator"
	"trading-backtestv1/internal/model"
)

// SMACrossover implements a moving average crossover strategy. The averages
// are simple by default; ma_type: ema switches both to exponential.
//
// Buy signal: fast MA crosses above slow MA (golden cross)
// Sell signal: fast MA crosses below slow MA (death cross)
//
// Optional RSI filter prevents buying when overbought (>70).
type SMACrossover struct {
	fast indicator.Spec
	slow indicator.Spec
	rsi  indicator.Spec
	ma   string // SMA or EMA, for reasons

	rsiEnabled bool
}

// NewSMACrossover creates a new SMA crossover strategy.
// short_window < long_window (e.g., 20 and 50).
func NewSMACrossover(p Params) (*SMACrossover, error) {
	if err := positive("short_window", p.ShortWindow); err != nil {
		return nil, err
	}
	if err := positive("long_window", p.LongWindow); err != nil {
		return nil, err
	}
	if p.ShortWindow >= p.LongWindow {
		return nil, fmt.Errorf("%w: short_window %d must be < long_window %d",
			model.ErrInvalidConfiguration, p.ShortWindow, p.LongWindow)
	}
	var kind indicator.Kind
	switch strings.ToLower(p.MAType) {
	case "", "sma":
		kind = indicator.KindSMA
	case "ema":
		kind = indicator.KindEMA
	default:
		return nil, fmt.Errorf("%w: ma_type %q must be sma or ema",
			model.ErrInvalidConfiguration, p.MAType)
	}
	s := &SMACrossover{
		fast:       indicator.Spec{Kind: kind, Period: p.ShortWindow},
		slow:       indicator.Spec{Kind: kind, Period: p.LongWindow},
		ma:         string(kind),
		rsiEnabled: p.RSIFilter,
	}
	if s.rsiEnabled {
		if err := positive("rsi_window", p.RSIWindow); err != nil {
			return nil, err
		}
		s.rsi = indicator.Spec{Kind: indicator.KindRSI, Period: p.RSIWindow}
	}
	return s, nil
}

func (s *SMACrossover) Name() string { return "sma_crossover" }

func (s *SMACrossover) Indicators() []indicator.Spec {
	specs := []indicator.Spec{s.fast, s.slow}
	if s.rsiEnabled {
		specs = append(specs, s.rsi)
	}
	return specs
}

func (s *SMACrossover) GenerateSignals(bars []model.Bar, set indicator.Set) ([]model.Signal, error) {
	fast, err := series(set, s.fast)
	if err != nil {
		return nil, err
	}
	slow, err := series(set, s.slow)
	if err != nil {
		return nil, err
	}
	var rsi indicator.Series
	if s.rsiEnabled {
		if rsi, err = series(set, s.rsi); err != nil {
			return nil, err
		}
	}

	signals := holds(bars)
	long := false
	for i := 2; i < len(bars); i++ {
		j := i - 1
		if !fast.Valid(j-1) || !slow.Valid(j-1) {
			continue
		}
		prevFast, prevSlow := fast[j-1], slow[j-1]
		fastMA, slowMA := fast[j], slow[j]

		// Golden cross: fast crosses above slow
		if !long && prevFast <= prevSlow && fastMA > slowMA {
			if s.rsiEnabled && rsi.Valid(j) && rsi[j] > 70 {
				log.Printf("[strategy] %s: golden cross filtered by RSI %.1f > 70", s.Name(), rsi[j])
				continue
			}
			signals[i].Kind = model.SignalEnterLong
			signals[i].Unit = 1
			signals[i].Level = slowMA
			signals[i].Reason = s.ma + " golden cross (fast > slow)"
			long = true
			continue
		}

		// Death cross: fast crosses below slow
		if long && prevFast >= prevSlow && fastMA < slowMA {
			signals[i].Kind = model.SignalExitLong
			signals[i].Level = slowMA
			signals[i].Reason = s.ma + " death cross (fast < slow)"
			long = false
		}
	}
	return signals, nil
}
