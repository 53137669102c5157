// Command backtest runs the Turtle breakout system and its companion
// strategies over daily bars, compares them, fills the local bar stores and
// watches a watchlist for fresh signals.
//
// Usage:
//
//	backtest -c config.yaml run --symbols INFY,TCS --strategy turtle
//	backtest compare --strategies turtle,sma_crossover,buy_and_hold --sort sharpe
//	backtest fetch --provider angel --to sqlite
//	backtest monitor --interval 24h
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"trading-backtestv1/config"
	"trading-backtestv1/internal/logger"
)

// cfg is loaded by the app's Before hook and adjusted by command flags.
var cfg *config.Config

func main() {
	app := &cli.App{
		Name:                 "backtest",
		Usage:                "backtest and monitor breakout strategies on daily bars",
		EnableBashCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML config file (values may be overridden by BACKTEST_* env vars)",
				EnvVars: []string{"BACKTEST_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error (overrides log.level)",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			runCommand,
			compareCommand,
			fetchCommand,
			monitorCommand,
			strategiesCommand,
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Printf("[backtest] %v", err)
		stop()
		os.Exit(1)
	}
}

func setup(c *cli.Context) error {
	loaded, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if lvl := c.String("log-level"); lvl != "" {
		loaded.Log.Level = lvl
	}
	level, err := logger.ParseLevel(loaded.Log.Level)
	if err != nil {
		return err
	}
	logger.Init(logger.Options{Service: "backtest", Level: level, Format: loaded.Log.Format})
	cfg = loaded
	return nil
}
