// Package report renders backtest results as text tables, JSON and CSV.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"trading-backtestv1/internal/backtest"
	"trading-backtestv1/internal/performance"
)

var printer = message.NewPrinter(language.English)

// SortKey selects the ranking metric for comparison tables.
type SortKey string

const (
	BySharpe      SortKey = "sharpe"
	ByTotalReturn SortKey = "return"
	ByDrawdown    SortKey = "drawdown"
)

// Sort orders results best-first by key. Ties keep input order.
func Sort(results []*backtest.Result, key SortKey) {
	metric := func(r *backtest.Result) float64 {
		switch key {
		case ByTotalReturn:
			return r.Performance.TotalReturn
		case ByDrawdown:
			return -r.Performance.MaxDrawdown
		default:
			return r.Performance.SharpeRatio
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return metric(results[i]) > metric(results[j])
	})
}

// Best returns the top result per symbol by key.
func Best(results []*backtest.Result, key SortKey) map[string]*backtest.Result {
	sorted := append([]*backtest.Result(nil), results...)
	Sort(sorted, key)
	best := make(map[string]*backtest.Result)
	for _, r := range sorted {
		if _, ok := best[r.Symbol]; !ok {
			best[r.Symbol] = r
		}
	}
	return best
}

// WriteSummary writes a comparison table with one row per result.
func WriteSummary(w io.Writer, results []*backtest.Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Symbol\tStrategy\tReturn\tAnnual\tVol\tSharpe\tMaxDD\tTrades\tWinRate\tFinal\t")
	for _, r := range results {
		p := r.Performance
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%.2f\t%s\t%d\t%s\t%s\t\n",
			r.Symbol, r.Strategy,
			pct(p.TotalReturn), pct(p.AnnualizedReturn), pct(p.Volatility),
			p.SharpeRatio, pct(p.MaxDrawdown), p.TradeCount, pct(p.WinRate),
			money(p.FinalValue))
	}
	return tw.Flush()
}

// WriteResult writes the detailed report of one run: metrics, then trades.
func WriteResult(w io.Writer, r *backtest.Result) error {
	p := r.Performance
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s / %s\t(%d bars, trace %s)\n", r.Symbol, r.Strategy, p.Bars, r.TraceID)
	writeMetrics(tw, p)
	if r.FinalPosition.Open() {
		fmt.Fprintf(tw, "Open position\t%s %d units @ %.4f\n",
			r.FinalPosition.Direction, r.FinalPosition.Size(), r.FinalPosition.AvgEntry())
		fmt.Fprintf(tw, "Unrealized P&L\t%s\n", money(r.PnL.UnrealizedPnL))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(r.Trades) == 0 {
		_, err := fmt.Fprintln(w, "\nNo closed trades.")
		return err
	}

	fmt.Fprintln(w, "\nTrades:")
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Entry\tExit\tSide\tUnits\tSize\tEntryPx\tExitPx\tPnL\tReason\t")
	for _, t := range r.Trades {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%.2f\t%.2f\t%s\t%s\t\n",
			t.EntryDate.Format("2006-01-02"), t.ExitDate.Format("2006-01-02"),
			t.Direction, t.Units, t.Size, t.EntryPrice, t.ExitPrice, money(t.PnL), t.ExitReason)
	}
	return tw.Flush()
}

func writeMetrics(tw io.Writer, p performance.Report) {
	fmt.Fprintf(tw, "Total return\t%s\n", pct(p.TotalReturn))
	fmt.Fprintf(tw, "Annualized return\t%s\n", pct(p.AnnualizedReturn))
	fmt.Fprintf(tw, "Volatility\t%s\n", pct(p.Volatility))
	fmt.Fprintf(tw, "Sharpe ratio\t%.3f\n", p.SharpeRatio)
	fmt.Fprintf(tw, "Max drawdown\t%s\n", pct(p.MaxDrawdown))
	fmt.Fprintf(tw, "Trades\t%d (%d wins, %d losses, %d even)\n", p.TradeCount, p.Wins, p.Losses, p.BreakEven)
	fmt.Fprintf(tw, "Win rate\t%s\n", pct(p.WinRate))
	fmt.Fprintf(tw, "Avg win / loss\t%s / %s\n", money(p.AvgWin), money(p.AvgLoss))
	fmt.Fprintf(tw, "Profit factor\t%.2f\n", p.ProfitFactor)
	fmt.Fprintf(tw, "Commission\t%s\n", money(p.TotalCommission))
	fmt.Fprintf(tw, "Final value\t%s\n", money(p.FinalValue))
}

// WriteJSON writes the result (performance, trades, equity curve) as JSON.
func WriteJSON(w io.Writer, r *backtest.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func pct(v float64) string { return printer.Sprintf("%.2f%%", v*100) }

func money(v float64) string { return printer.Sprintf("%.2f", v) }
