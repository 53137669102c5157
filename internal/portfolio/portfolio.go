// Package portfolio holds the cash ledger, open position and equity curve of
// a single backtest run, plus the stateless position sizers.
//
// Cash is kept as a decimal so that thousands of fills do not accumulate
// float rounding drift. A State is owned by one engine run and is not safe
// for concurrent use.
package portfolio

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"trading-backtestv1/internal/model"
)

// State is the mutable portfolio of one backtest run.
type State struct {
	symbol   string
	initial  decimal.Decimal
	cash     decimal.Decimal
	position model.Position
	equity   []model.EquityPoint
	pnl      *PnLTracker
}

// New creates a flat portfolio holding initialCash.
func New(symbol string, initialCash float64) *State {
	c := decimal.NewFromFloat(initialCash)
	return &State{
		symbol:   symbol,
		initial:  c,
		cash:     c,
		position: model.Position{Symbol: symbol},
		pnl:      NewPnLTracker(),
	}
}

// Cash returns the spendable cash balance.
func (s *State) Cash() float64 { return s.cash.InexactFloat64() }

// InitialCash returns the starting balance.
func (s *State) InitialCash() float64 { return s.initial.InexactFloat64() }

// Position returns a copy of the open position.
func (s *State) Position() model.Position {
	p := s.position
	p.Units = append([]model.Unit(nil), s.position.Units...)
	return p
}

// Direction returns the side of the open position, Flat when none.
func (s *State) Direction() model.Direction {
	if !s.position.Open() {
		return model.Flat
	}
	return s.position.Direction
}

// UnitCount returns the number of open units.
func (s *State) UnitCount() int { return len(s.position.Units) }

// Value returns cash plus the signed mark-to-market of the position at price.
func (s *State) Value(price float64) float64 {
	v := s.cash.Add(decimal.NewFromFloat(price).Mul(decimal.NewFromInt(s.position.SignedSize())))
	return v.InexactFloat64()
}

// StopBreached reports whether a bar's range crosses an open unit stop.
func (s *State) StopBreached(low, high float64) (float64, bool) {
	return s.position.StopBreached(low, high)
}

// OpenUnit adds a unit in dir. Longs pay price×size plus commission; shorts
// receive price×size minus commission.
func (s *State) OpenUnit(dir model.Direction, u model.Unit) error {
	if dir == model.Flat || u.Size <= 0 {
		return fmt.Errorf("open unit: invalid direction %s or size %d", dir, u.Size)
	}
	if s.position.Open() && s.position.Direction != dir {
		return fmt.Errorf("open unit: %s position already open", s.position.Direction)
	}

	notional := decimal.NewFromFloat(u.EntryPrice).Mul(decimal.NewFromInt(u.Size))
	comm := decimal.NewFromFloat(u.Commission)
	if dir == model.Long {
		s.cash = s.cash.Sub(notional).Sub(comm)
	} else {
		s.cash = s.cash.Add(notional).Sub(comm)
	}

	s.position.Direction = dir
	s.position.Units = append(s.position.Units, u)
	return nil
}

// Close exits every open unit at price and returns the resulting trade.
func (s *State) Close(index int, date time.Time, price, commission float64, reason string) (model.Trade, error) {
	if !s.position.Open() {
		return model.Trade{}, fmt.Errorf("close: no open position")
	}
	pos := s.position
	size := pos.Size()

	notional := decimal.NewFromFloat(price).Mul(decimal.NewFromInt(size))
	exitComm := decimal.NewFromFloat(commission)
	if pos.Direction == model.Long {
		s.cash = s.cash.Add(notional).Sub(exitComm)
	} else {
		s.cash = s.cash.Sub(notional).Sub(exitComm)
	}

	entryNotional := decimal.Zero
	totalComm := exitComm
	for _, u := range pos.Units {
		entryNotional = entryNotional.Add(decimal.NewFromFloat(u.EntryPrice).Mul(decimal.NewFromInt(u.Size)))
		totalComm = totalComm.Add(decimal.NewFromFloat(u.Commission))
	}
	gross := notional.Sub(entryNotional)
	if pos.Direction == model.Short {
		gross = gross.Neg()
	}

	first := pos.Units[0]
	t := model.Trade{
		Symbol:     s.symbol,
		Direction:  pos.Direction,
		EntryIndex: first.EntryIndex,
		ExitIndex:  index,
		EntryDate:  first.EntryDate,
		ExitDate:   date,
		Size:       size,
		Units:      len(pos.Units),
		EntryPrice: pos.AvgEntry(),
		ExitPrice:  price,
		Commission: totalComm.InexactFloat64(),
		PnL:        gross.Sub(totalComm).InexactFloat64(),
		ExitReason: reason,
	}

	s.position = model.Position{Symbol: s.symbol}
	s.pnl.RecordTrade(t)
	return t, nil
}

// Mark appends the end-of-bar equity point valued at close.
func (s *State) Mark(date time.Time, close float64) model.EquityPoint {
	pt := model.EquityPoint{Date: date, Value: s.Value(close), Cash: s.Cash()}
	s.equity = append(s.equity, pt)
	return pt
}

// EquityCurve returns the recorded equity points.
func (s *State) EquityCurve() []model.EquityPoint { return s.equity }

// Trades returns closed trades in exit order.
func (s *State) Trades() []model.Trade { return s.pnl.Trades() }

// PnL exposes the realized P&L tracker.
func (s *State) PnL() *PnLTracker { return s.pnl }
