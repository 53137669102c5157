package model

import (
	"context"
	"time"
)

// ── Collaborator Port Interfaces ──
// These interfaces decouple the backtest core from concrete data sources
// (SQLite, ClickHouse, broker APIs) and signal sinks (Redis).

// Range selects the bars a provider should return. Zero times are open bounds.
type Range struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the range.
func (r Range) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}

// BarProvider fetches historical bars for a symbol.
type BarProvider interface {
	// Fetch returns bars in chronological order or an error wrapping
	// ErrDataUnavailable.
	Fetch(ctx context.Context, symbol string, rng Range) ([]Bar, error)
}

// BarWriter persists fetched bars (used as a read-through cache).
type BarWriter interface {
	WriteBars(ctx context.Context, symbol string, bars []Bar) error
}

// LatestSignal is the newest actionable signal for a symbol, as consumed
// by the daily monitor and the signal gateway.
type LatestSignal struct {
	Symbol       string     `json:"symbol"`
	Strategy     string     `json:"strategy"`
	HasSignal    bool       `json:"has_signal"`
	Kind         SignalKind `json:"kind,omitempty"`
	SignalDate   time.Time  `json:"signal_date,omitempty"`
	Price        float64    `json:"price,omitempty"`
	Level        float64    `json:"level,omitempty"`
	CurrentPrice float64    `json:"current_price"`
	AsOf         time.Time  `json:"as_of"`
	Error        string     `json:"error,omitempty"`
}

// SignalPublisher publishes latest signals to downstream consumers.
type SignalPublisher interface {
	PublishSignal(ctx context.Context, sig LatestSignal) error
}
