package backtest

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"trading-backtestv1/internal/logger"
	"trading-backtestv1/internal/metrics"
	"trading-backtestv1/internal/model"
	"trading-backtestv1/internal/strategy"
)

// Job is one independent backtest: a strategy over one symbol's bars.
type Job struct {
	Symbol   string
	Strategy strategy.Strategy
	Bars     []model.Bar
}

// Outcome pairs a job with its result or error.
type Outcome struct {
	Job    Job
	Result *Result
	Err    error
}

// Runner executes many jobs in parallel, one Engine per job.
type Runner struct {
	cfg         Config
	concurrency int
	metrics     *metrics.Metrics
}

// NewRunner creates a runner. concurrency <= 0 means one job at a time.
func NewRunner(cfg Config, concurrency int, m *metrics.Metrics) *Runner {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Runner{cfg: cfg, concurrency: concurrency, metrics: m}
}

// RunAll runs every job and returns outcomes in job order. A failing job is
// reported in its Outcome and does not stop the others; the returned error
// is non-nil only when ctx is cancelled.
func (r *Runner) RunAll(ctx context.Context, jobs []Job) ([]Outcome, error) {
	out := make([]Outcome, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, job := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i].Job = job

			var opts []Option
			if r.metrics != nil {
				opts = append(opts, WithMetrics(r.metrics))
			}
			eng, err := New(r.cfg, job.Strategy, opts...)
			if err != nil {
				out[i].Err = err
				return nil
			}
			jobCtx := logger.WithTraceID(gctx, logger.GenerateTraceID(job.Symbol+"-"+job.Strategy.Name(), time.Now()))
			out[i].Result, out[i].Err = eng.Run(jobCtx, job.Symbol, job.Bars)
			if out[i].Err != nil {
				log.Printf("[runner] %s/%s failed: %v", job.Symbol, job.Strategy.Name(), out[i].Err)
				if gctx.Err() != nil {
					return gctx.Err()
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}
