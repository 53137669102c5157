package portfolio

import "math"

// SizeRequest carries everything a sizer may look at for one entry.
type SizeRequest struct {
	Capital        float64 // current total equity
	Cash           float64 // spendable cash
	Exposure       float64 // |market value| of the open position at Price
	Price          float64 // expected fill price per unit
	ATR            float64 // volatility known at signal time
	CommissionRate float64
}

// Sizer turns a SizeRequest into a whole number of units. Implementations are
// stateless; a result of 0 means "do not trade".
type Sizer interface {
	Size(req SizeRequest) int64
}

// ATRRiskSizer sizes a unit so that a stop-loss hit at StopMultiple×ATR loses
// roughly RiskFraction of capital:
//
//	floor(capital × risk / (stop_multiple × ATR × point_value))
type ATRRiskSizer struct {
	RiskFraction float64
	StopMultiple float64
	PointValue   float64 // price-per-unit multiplier, 1 for cash equities
}

func (s ATRRiskSizer) Size(req SizeRequest) int64 {
	pv := s.PointValue
	if pv <= 0 {
		pv = 1
	}
	if invalid(req.ATR) || req.ATR <= 0 || invalid(req.Price) || req.Price <= 0 ||
		s.RiskFraction <= 0 || s.StopMultiple <= 0 || req.Capital <= 0 {
		return 0
	}
	size := int64(math.Floor(req.Capital * s.RiskFraction / (s.StopMultiple * req.ATR * pv)))
	return clamp(size, req)
}

// FixedFractionSizer commits Fraction of capital per entry.
type FixedFractionSizer struct {
	Fraction float64
}

func (s FixedFractionSizer) Size(req SizeRequest) int64 {
	if invalid(req.Price) || req.Price <= 0 || s.Fraction <= 0 || req.Capital <= 0 {
		return 0
	}
	size := int64(math.Floor(req.Capital * s.Fraction / req.Price))
	return clamp(size, req)
}

// Affordable returns the largest whole size cash can pay for including
// commission.
func Affordable(cash, price, commissionRate float64) int64 {
	if cash <= 0 || price <= 0 {
		return 0
	}
	return int64(math.Floor(cash / (price * (1 + commissionRate))))
}

// clamp caps size at free equity: capital less the open exposure, and never
// more than cash. Short sale proceeds held in cash do not count.
func clamp(size int64, req SizeRequest) int64 {
	if size <= 0 {
		return 0
	}
	budget := min(req.Cash, req.Capital-req.Exposure)
	if limit := Affordable(budget, req.Price, req.CommissionRate); size > limit {
		size = limit
	}
	return size
}

func invalid(v float64) bool { return math.IsNaN(v) || math.IsInf(v, 0) }
