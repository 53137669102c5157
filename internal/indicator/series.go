package indicator

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"trading-backtestv1/internal/model"
)

// Kind names an indicator type.
type Kind string

const (
	KindSMA       Kind = "SMA"
	KindEMA       Kind = "EMA"
	KindSMMA      Kind = "SMMA"
	KindRSI       Kind = "RSI"
	KindATR       Kind = "ATR"
	KindHighest   Kind = "HIGHEST"
	KindLowest    Kind = "LOWEST"
	KindVolumeSMA Kind = "VOLUME_SMA"
)

// Spec specifies a single indicator to compute.
type Spec struct {
	Kind   Kind
	Period int
}

// Name returns the series key, e.g. "ATR_20".
func (s Spec) Name() string {
	return string(s.Kind) + "_" + strconv.Itoa(s.Period)
}

// New creates a fresh indicator instance for the spec.
func (s Spec) New() (Indicator, error) {
	if s.Period <= 0 {
		return nil, fmt.Errorf("%w: %s period must be > 0", model.ErrInvalidConfiguration, s.Kind)
	}
	switch s.Kind {
	case KindSMA:
		return NewSMA(s.Period), nil
	case KindEMA:
		return NewEMA(s.Period), nil
	case KindSMMA:
		return NewSMMA(s.Period), nil
	case KindRSI:
		return NewRSI(s.Period), nil
	case KindATR:
		return NewATR(s.Period), nil
	case KindHighest:
		return NewHighest(s.Period), nil
	case KindLowest:
		return NewLowest(s.Period), nil
	case KindVolumeSMA:
		return NewVolumeSMA(s.Period), nil
	}
	return nil, fmt.Errorf("%w: unknown indicator %q", model.ErrInvalidConfiguration, s.Kind)
}

// Series is a derived value per bar index. Indices before the lookback
// window fills hold NaN.
type Series []float64

// At returns the value at i, or NaN when i is out of range.
func (s Series) At(i int) float64 {
	if i < 0 || i >= len(s) {
		return math.NaN()
	}
	return s[i]
}

// Valid reports whether the value at i is defined.
func (s Series) Valid(i int) bool {
	return !math.IsNaN(s.At(i))
}

// Set holds computed series keyed by Spec.Name().
type Set map[string]Series

// Get returns the series for spec, or nil when it was not computed.
func (s Set) Get(spec Spec) Series {
	return s[spec.Name()]
}

// Compute feeds every bar through a fresh instance of spec and records the
// value once the indicator is ready.
func Compute(bars []model.Bar, spec Spec) (Series, error) {
	ind, err := spec.New()
	if err != nil {
		return nil, err
	}
	out := make(Series, len(bars))
	for i, b := range bars {
		ind.Update(b)
		if ind.Ready() {
			out[i] = ind.Value()
		} else {
			out[i] = math.NaN()
		}
	}
	return out, nil
}

// specsKey builds a stable, order-independent key for a spec list.
func specsKey(specs []Spec) string {
	names := make([]string, 0, len(specs))
	for _, s := range specs {
		names = append(names, s.Name())
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}
