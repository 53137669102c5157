package provider

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"trading-backtestv1/internal/breaker"
	"trading-backtestv1/internal/metrics"
	"trading-backtestv1/internal/model"
)

// RetryPolicy controls Resilient's retries. Delay doubles after each
// failed attempt, capped at MaxDelay.
type RetryPolicy struct {
	Retries  int
	Delay    time.Duration
	MaxDelay time.Duration
	Timeout  time.Duration // per attempt; 0 = none
}

// DefaultRetryPolicy retries three times starting at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Retries: 3, Delay: time.Second, MaxDelay: 30 * time.Second, Timeout: 30 * time.Second}
}

// Resilient retries a provider with exponential backoff behind a circuit
// breaker. Final failures wrap model.ErrDataUnavailable.
type Resilient struct {
	next    model.BarProvider
	name    string
	policy  RetryPolicy
	cb      *breaker.Breaker
	metrics *metrics.Metrics
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewResilient wraps next. cb and m may be nil.
func NewResilient(next model.BarProvider, policy RetryPolicy, cb *breaker.Breaker, m *metrics.Metrics) *Resilient {
	if m != nil && cb != nil {
		m.WatchBreaker(cb)
	}
	return &Resilient{
		next:    next,
		name:    NameOf(next),
		policy:  policy,
		cb:      cb,
		metrics: m,
		sleep:   sleepCtx,
	}
}

func (r *Resilient) Name() string { return r.name }

// Fetch implements model.BarProvider.
func (r *Resilient) Fetch(ctx context.Context, symbol string, rng model.Range) ([]model.Bar, error) {
	start := time.Now()
	delay := r.policy.Delay

	var lastErr error
	for attempt := 0; attempt <= r.policy.Retries; attempt++ {
		if attempt > 0 {
			if r.metrics != nil {
				r.metrics.FetchRetries.WithLabelValues(r.name).Inc()
			}
			log.Printf("[provider] %s %s attempt %d/%d after %v: %v",
				r.name, symbol, attempt+1, r.policy.Retries+1, delay, lastErr)
			if err := r.sleep(ctx, delay); err != nil {
				return nil, err
			}
			delay *= 2
			if r.policy.MaxDelay > 0 && delay > r.policy.MaxDelay {
				delay = r.policy.MaxDelay
			}
		}

		bars, err := r.attempt(ctx, symbol, rng)
		if err == nil {
			if r.metrics != nil {
				r.metrics.FetchDuration.WithLabelValues(r.name).Observe(time.Since(start).Seconds())
			}
			return bars, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, breaker.ErrOpen) || permanent(err) {
			break
		}
	}

	if r.metrics != nil {
		r.metrics.FetchFailures.WithLabelValues(r.name).Inc()
	}
	if errors.Is(lastErr, model.ErrDataUnavailable) {
		return nil, lastErr
	}
	return nil, fmt.Errorf("%w: %s %s: %v", model.ErrDataUnavailable, r.name, symbol, lastErr)
}

func (r *Resilient) attempt(ctx context.Context, symbol string, rng model.Range) ([]model.Bar, error) {
	if r.policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.policy.Timeout)
		defer cancel()
	}
	var bars []model.Bar
	call := func() error {
		var err error
		bars, err = r.next.Fetch(ctx, symbol, rng)
		return err
	}
	if r.cb == nil {
		return bars, call()
	}
	return bars, r.cb.Execute(call)
}

// permanent reports errors a retry cannot fix: the source has no data for
// the symbol, or the request itself is invalid.
func permanent(err error) bool {
	return errors.Is(err, model.ErrDataUnavailable) || errors.Is(err, model.ErrInvalidConfiguration)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
