package strategy

import (
	"trading-backtestv1/internal/indicator"
	"trading-backtestv1/internal/model"
	"trading-backtestv1/internal/portfolio"
)

// BuyAndHold enters long on the first bar and never exits. The entry needs
// no prior data, so it is placed at index 0 and filled at that bar's open.
type BuyAndHold struct{}

func NewBuyAndHold(Params) (*BuyAndHold, error) { return &BuyAndHold{}, nil }

func (BuyAndHold) Name() string                 { return "buy_and_hold" }
func (BuyAndHold) Indicators() []indicator.Spec { return nil }

// Sizer commits all available cash.
func (BuyAndHold) Sizer() portfolio.Sizer { return portfolio.FixedFractionSizer{Fraction: 1} }

func (BuyAndHold) GenerateSignals(bars []model.Bar, _ indicator.Set) ([]model.Signal, error) {
	signals := holds(bars)
	if len(signals) > 0 {
		signals[0].Kind = model.SignalEnterLong
		signals[0].Unit = 1
		signals[0].Reason = "buy and hold"
	}
	return signals, nil
}
