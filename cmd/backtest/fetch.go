package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"trading-backtestv1/internal/model"
	sqlitestore "trading-backtestv1/internal/store/sqlite"
)

var fetchCommand = &cli.Command{
	Name:  "fetch",
	Usage: "download bars from the provider into a local store",
	Flags: append(dataFlags(),
		&cli.StringFlag{Name: "to", Value: "sqlite", Usage: "sqlite, clickhouse or csv"},
		&cli.StringFlag{Name: "out-dir", Value: "data", Usage: "target directory for --to csv"},
		&cli.BoolFlag{Name: "full", Usage: "refetch everything instead of resuming after the newest stored bar"},
	),
	Action: fetchAction,
}

func fetchAction(c *cli.Context) error {
	symbols, err := applyDataFlags(c)
	if err != nil {
		return err
	}
	to := c.String("to")
	if to == cfg.Data.Provider {
		return fmt.Errorf("%w: --to %s is also the source provider", model.ErrInvalidConfiguration, to)
	}
	// Always go upstream; the cache would answer from the target store.
	cfg.Data.Cache = false
	if err := cfg.Validate(); err != nil {
		return err
	}
	rng, err := cfg.Range()
	if err != nil {
		return err
	}

	st := &stores{}
	defer st.Close()
	p, err := buildProvider(c.Context, cfg, st, nil)
	if err != nil {
		return err
	}
	out, err := sink(c.Context, to, c.String("out-dir"), cfg, st)
	if err != nil {
		return err
	}

	var resumeFrom func(ctx context.Context, symbol string) (model.Range, bool)
	if w, ok := out.(*sqlitestore.Writer); ok && !c.Bool("full") {
		resumeFrom = func(ctx context.Context, symbol string) (model.Range, bool) {
			return resume(ctx, w, symbol, rng)
		}
	}

	var written, missing atomic.Int64
	g, gctx := errgroup.WithContext(c.Context)
	g.SetLimit(cfg.Concurrency)
	for _, sym := range symbols {
		g.Go(func() error {
			r := rng
			if resumeFrom != nil {
				var todo bool
				if r, todo = resumeFrom(gctx, sym); !todo {
					log.Printf("[fetch] %s: up to date", sym)
					return nil
				}
			}
			bars, err := p.Fetch(gctx, sym, r)
			if errors.Is(err, model.ErrDataUnavailable) {
				log.Printf("[fetch] %s: %v", sym, err)
				missing.Add(1)
				return nil
			}
			if err != nil {
				return fmt.Errorf("fetch %s: %w", sym, err)
			}
			if err := out.WriteBars(gctx, sym, bars); err != nil {
				return fmt.Errorf("write %s: %w", sym, err)
			}
			written.Add(int64(len(bars)))
			log.Printf("[fetch] %s: %d bars -> %s", sym, len(bars), to)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	log.Printf("[fetch] done: %d bars written, %d of %d symbols without data",
		written.Load(), missing.Load(), len(symbols))
	return nil
}

// resume narrows rng to start the day after the newest stored bar. It
// reports false when the store already covers rng.
func resume(ctx context.Context, w *sqlitestore.Writer, symbol string, rng model.Range) (model.Range, bool) {
	last, ok, err := w.LastDate(ctx, symbol)
	if err != nil {
		log.Printf("[fetch] %s: reading last stored date: %v", symbol, err)
		return rng, true
	}
	if !ok {
		return rng, true
	}
	next := last.AddDate(0, 0, 1)
	if next.After(rng.From) {
		rng.From = next
	}
	if !rng.To.IsZero() && rng.From.After(rng.To) {
		return rng, false
	}
	return rng, true
}
