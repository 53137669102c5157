package redis

import (
	"context"
	"errors"
	"log"
	"sync"

	"trading-backtestv1/internal/breaker"
	"trading-backtestv1/internal/model"
)

// BufferedPublisher wraps a SignalPublisher with a circuit breaker. While
// the breaker is open, signals are held locally (latest per symbol) and
// replayed once the breaker closes.
type BufferedPublisher struct {
	pub model.SignalPublisher
	cb  *breaker.Breaker

	mu      sync.Mutex
	pending map[string]model.LatestSignal
	order   []string

	// Callbacks
	OnBuffer func()          // called when a signal is held back
	OnFlush  func(count int) // called after replaying held signals
}

// NewBufferedPublisher wires the flush to the breaker's close transition.
func NewBufferedPublisher(pub model.SignalPublisher, cb *breaker.Breaker) *BufferedPublisher {
	bp := &BufferedPublisher{
		pub:     pub,
		cb:      cb,
		pending: make(map[string]model.LatestSignal),
	}

	prev := cb.OnStateChange
	cb.OnStateChange = func(name string, from, to breaker.State) {
		if prev != nil {
			prev(name, from, to)
		}
		if to == breaker.StateClosed {
			go bp.Flush(context.Background())
		}
	}
	return bp
}

// PublishSignal publishes through the breaker. A rejected call is buffered
// and reported as success; failures from the publisher are returned.
func (bp *BufferedPublisher) PublishSignal(ctx context.Context, sig model.LatestSignal) error {
	err := bp.cb.Execute(func() error {
		return bp.pub.PublishSignal(ctx, sig)
	})
	if errors.Is(err, breaker.ErrOpen) {
		bp.hold(sig)
		return nil
	}
	return err
}

func (bp *BufferedPublisher) hold(sig model.LatestSignal) {
	bp.mu.Lock()
	if _, ok := bp.pending[sig.Symbol]; !ok {
		bp.order = append(bp.order, sig.Symbol)
	}
	bp.pending[sig.Symbol] = sig
	bp.mu.Unlock()

	if bp.OnBuffer != nil {
		bp.OnBuffer()
	}
}

// Flush replays held signals in first-held order. Signals that fail again
// stay buffered.
func (bp *BufferedPublisher) Flush(ctx context.Context) int {
	bp.mu.Lock()
	if len(bp.order) == 0 {
		bp.mu.Unlock()
		return 0
	}
	order, pending := bp.order, bp.pending
	bp.order, bp.pending = nil, make(map[string]model.LatestSignal)
	bp.mu.Unlock()

	flushed := 0
	for _, sym := range order {
		if err := bp.pub.PublishSignal(ctx, pending[sym]); err != nil {
			log.Printf("[buffered-publisher] replay %s failed: %v", sym, err)
			bp.mu.Lock()
			if _, newer := bp.pending[sym]; !newer {
				bp.order = append(bp.order, sym)
				bp.pending[sym] = pending[sym]
			}
			bp.mu.Unlock()
			continue
		}
		flushed++
	}

	log.Printf("[buffered-publisher] flushed %d buffered signals", flushed)
	if bp.OnFlush != nil {
		bp.OnFlush(flushed)
	}
	return flushed
}

// PendingCount returns the number of symbols waiting to be flushed.
func (bp *BufferedPublisher) PendingCount() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return len(bp.order)
}
