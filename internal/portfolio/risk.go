package portfolio

import (
	"log"
)

// RiskLimits are optional guards applied before new entries. Zero values
// disable a limit.
type RiskLimits struct {
	MaxDrawdown     float64 `json:"max_drawdown" mapstructure:"max_drawdown"`           // fraction of peak equity, e.g. 0.25
	MaxPositionSize int64   `json:"max_position_size" mapstructure:"max_position_size"` // total units across pyramided entries
}

// RiskManager tracks peak equity and blocks entries that would violate the
// configured limits. Exits are never blocked.
type RiskManager struct {
	limits     RiskLimits
	equity     float64
	peakEquity float64
	blocked    bool
}

// NewRiskManager creates a RiskManager starting at initialEquity.
func NewRiskManager(limits RiskLimits, initialEquity float64) *RiskManager {
	return &RiskManager{
		limits:     limits,
		equity:     initialEquity,
		peakEquity: initialEquity,
	}
}

// Observe records the end-of-bar equity.
func (rm *RiskManager) Observe(equity float64) {
	rm.equity = equity
	if equity > rm.peakEquity {
		rm.peakEquity = equity
	}
}

// Drawdown returns the current drawdown from peak as a fraction.
func (rm *RiskManager) Drawdown() float64 {
	if rm.peakEquity <= 0 {
		return 0
	}
	return (rm.peakEquity - rm.equity) / rm.peakEquity
}

// CanEnter checks whether adding size units on top of held units is allowed.
// Returns true if the entry is allowed, false with a reason if not.
func (rm *RiskManager) CanEnter(held, size int64) (bool, string) {
	if rm.limits.MaxPositionSize > 0 && held+size > rm.limits.MaxPositionSize {
		return false, "position size exceeds limit"
	}
	if rm.limits.MaxDrawdown > 0 && rm.Drawdown() > rm.limits.MaxDrawdown {
		if !rm.blocked {
			log.Printf("[risk] drawdown %.2f%% exceeds %.2f%%, entries blocked",
				rm.Drawdown()*100, rm.limits.MaxDrawdown*100)
		}
		rm.blocked = true
		return false, "max drawdown exceeded"
	}
	if rm.blocked {
		log.Printf("[risk] drawdown back to %.2f%%, entries allowed", rm.Drawdown()*100)
		rm.blocked = false
	}
	return true, ""
}

// Status returns current risk status.
func (rm *RiskManager) Status() map[string]interface{} {
	return map[string]interface{}{
		"equity":       rm.equity,
		"peak_equity":  rm.peakEquity,
		"drawdown_pct": rm.Drawdown() * 100,
		"limits":       rm.limits,
	}
}
