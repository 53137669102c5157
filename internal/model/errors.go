package model

import "errors"

// Error kinds surfaced by the backtester. Callers match them with errors.Is;
// the returned errors wrap these with context.
var (
	// ErrInsufficientData is returned when a run has zero usable bars.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrInvalidConfiguration is returned for non-positive windows, capital or risk values.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrOutOfOrderData is returned for non-monotonic or duplicate bar dates.
	ErrOutOfOrderData = errors.New("out of order data")

	// ErrDataUnavailable is returned by price providers when a fetch fails.
	ErrDataUnavailable = errors.New("data unavailable")
)
