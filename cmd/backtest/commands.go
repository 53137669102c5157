package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/urfave/cli/v2"

	"trading-backtestv1/internal/backtest"
	"trading-backtestv1/internal/model"
	"trading-backtestv1/internal/report"
	"trading-backtestv1/internal/strategy"
)

// dataFlags returns the data-selection flags shared by the commands. Each
// command gets its own flag values.
func dataFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{Name: "symbols", Aliases: []string{"s"}, Usage: "symbols to use (default: watchlist)"},
		&cli.StringFlag{Name: "provider", Aliases: []string{"p"}, Usage: "csv, angel, sqlite or clickhouse"},
		&cli.StringFlag{Name: "csv-dir", Usage: "directory of <SYMBOL>.csv files"},
		&cli.StringFlag{Name: "start", Usage: "first date, YYYY-MM-DD"},
		&cli.StringFlag{Name: "end", Usage: "last date, YYYY-MM-DD"},
		&cli.BoolFlag{Name: "cache", Usage: "read bars through the SQLite cache"},
	}
}

// applyDataFlags copies set flags onto cfg and returns the symbol list.
func applyDataFlags(c *cli.Context) ([]string, error) {
	if c.IsSet("provider") {
		cfg.Data.Provider = c.String("provider")
	}
	if c.IsSet("csv-dir") {
		cfg.Data.CSVDir = c.String("csv-dir")
	}
	if c.IsSet("start") {
		cfg.Data.Start = c.String("start")
	}
	if c.IsSet("end") {
		cfg.Data.End = c.String("end")
	}
	if c.IsSet("cache") {
		cfg.Data.Cache = c.Bool("cache")
	}
	symbols := cfg.Watchlist
	if c.IsSet("symbols") {
		symbols = cleanList(c.StringSlice("symbols"))
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("%w: no symbols: set watchlist or pass --symbols", model.ErrInvalidConfiguration)
	}
	return symbols, nil
}

func cleanList(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

var runCommand = &cli.Command{
	Name:  "run",
	Usage: "backtest one strategy over each symbol and print the full report",
	Flags: append(dataFlags(),
		&cli.StringFlag{Name: "strategy", Usage: "strategy name (default: first of strategies)"},
		&cli.BoolFlag{Name: "json", Usage: "print results as JSON"},
		&cli.StringFlag{Name: "export", Usage: "directory for <symbol>_<strategy>_{trades,equity}.csv"},
	),
	Action: runAction,
}

func runAction(c *cli.Context) error {
	symbols, err := applyDataFlags(c)
	if err != nil {
		return err
	}
	if s := c.String("strategy"); s != "" {
		cfg.Strategies = []string{s}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	results, err := runBacktests(c.Context, symbols, cfg.Strategies[:1])
	if err != nil {
		return err
	}
	for i, r := range results {
		if c.Bool("json") {
			err = report.WriteJSON(os.Stdout, r)
		} else {
			if i > 0 {
				fmt.Println()
			}
			err = report.WriteResult(os.Stdout, r)
		}
		if err != nil {
			return err
		}
		if dir := c.String("export"); dir != "" {
			if err := exportCSV(dir, r); err != nil {
				return err
			}
		}
	}
	return nil
}

var compareCommand = &cli.Command{
	Name:  "compare",
	Usage: "run several strategies over each symbol and print a ranked table",
	Flags: append(dataFlags(),
		&cli.StringSliceFlag{Name: "strategies", Usage: "strategy names (default: strategies from config)"},
		&cli.StringFlag{Name: "sort", Value: string(report.BySharpe), Usage: "sharpe, return or drawdown"},
	),
	Action: compareAction,
}

func compareAction(c *cli.Context) error {
	symbols, err := applyDataFlags(c)
	if err != nil {
		return err
	}
	if c.IsSet("strategies") {
		cfg.Strategies = cleanList(c.StringSlice("strategies"))
	}
	key := report.SortKey(c.String("sort"))
	if !slices.Contains([]report.SortKey{report.BySharpe, report.ByTotalReturn, report.ByDrawdown}, key) {
		return fmt.Errorf("%w: unknown sort key %q", model.ErrInvalidConfiguration, key)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	results, err := runBacktests(c.Context, symbols, cfg.Strategies)
	if err != nil {
		return err
	}
	report.Sort(results, key)
	if err := report.WriteSummary(os.Stdout, results); err != nil {
		return err
	}

	best := report.Best(results, key)
	fmt.Printf("\nBest by %s:\n", key)
	for _, sym := range symbols {
		if r, ok := best[sym]; ok {
			fmt.Printf("  %-12s %s\n", sym, r.Strategy)
		}
	}
	return nil
}

var strategiesCommand = &cli.Command{
	Name:  "strategies",
	Usage: "list the available strategies",
	Action: func(c *cli.Context) error {
		for _, name := range strategy.Names() {
			fmt.Println(name)
		}
		return nil
	},
}

// runBacktests loads bars once per symbol and runs every strategy over
// them. Failed runs are logged and left out of the results.
func runBacktests(ctx context.Context, symbols, strategies []string) ([]*backtest.Result, error) {
	st := &stores{}
	defer st.Close()

	p, err := buildProvider(ctx, cfg, st, nil)
	if err != nil {
		return nil, err
	}
	rng, err := cfg.Range()
	if err != nil {
		return nil, err
	}
	bars, err := loadBars(ctx, p, symbols, rng, cfg.Concurrency)
	if err != nil {
		return nil, err
	}

	var jobs []backtest.Job
	for _, sym := range symbols {
		b, ok := bars[sym]
		if !ok {
			continue
		}
		for _, name := range strategies {
			s, err := strategy.New(name, cfg.Strategy)
			if err != nil {
				return nil, err
			}
			jobs = append(jobs, backtest.Job{Symbol: sym, Strategy: s, Bars: b})
		}
	}

	outcomes, err := backtest.NewRunner(cfg.Engine(), cfg.Concurrency, nil).RunAll(ctx, jobs)
	if err != nil {
		return nil, err
	}
	var results []*backtest.Result
	for _, o := range outcomes {
		if o.Err != nil {
			log.Printf("[backtest] %s/%s: %v", o.Job.Symbol, o.Job.Strategy.Name(), o.Err)
			continue
		}
		results = append(results, o.Result)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("all %d runs failed", len(jobs))
	}
	return results, nil
}

func exportCSV(dir string, r *backtest.Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	base := filepath.Join(dir, fmt.Sprintf("%s_%s", r.Symbol, r.Strategy))
	if err := writeFile(base+"_trades.csv", func(f *os.File) error {
		return report.WriteTradesCSV(f, r.Trades)
	}); err != nil {
		return err
	}
	if err := writeFile(base+"_equity.csv", func(f *os.File) error {
		return report.WriteEquityCSV(f, r.EquityCurve)
	}); err != nil {
		return err
	}
	log.Printf("[backtest] exported %s_{trades,equity}.csv", base)
	return nil
}

func writeFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
