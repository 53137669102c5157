package report

import (
	"encoding/csv"
	"io"
	"strconv"

	"trading-backtestv1/internal/model"
)

const dateLayout = "2006-01-02"

// WriteTradesCSV writes one row per closed trade.
func WriteTradesCSV(w io.Writer, trades []model.Trade) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{"symbol", "direction", "entry_date", "exit_date", "units", "size",
		"entry_price", "exit_price", "commission", "pnl", "exit_reason"})
	for _, t := range trades {
		cw.Write([]string{
			t.Symbol,
			t.Direction.String(),
			t.EntryDate.Format(dateLayout),
			t.ExitDate.Format(dateLayout),
			strconv.Itoa(t.Units),
			strconv.FormatInt(t.Size, 10),
			ff(t.EntryPrice),
			ff(t.ExitPrice),
			ff(t.Commission),
			ff(t.PnL),
			t.ExitReason,
		})
	}
	cw.Flush()
	return cw.Error()
}

// WriteEquityCSV writes the equity curve as date,value,cash rows.
func WriteEquityCSV(w io.Writer, curve []model.EquityPoint) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{"date", "value", "cash"})
	for _, pt := range curve {
		cw.Write([]string{pt.Date.Format(dateLayout), ff(pt.Value), ff(pt.Cash)})
	}
	cw.Flush()
	return cw.Error()
}

func ff(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
