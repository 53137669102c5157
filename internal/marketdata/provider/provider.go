// Package provider implements model.BarProvider over CSV files and the
// Angel One history API, and layers retry, circuit breaking and a
// read-through cache on top of any provider.
package provider

import (
	"sort"

	"trading-backtestv1/internal/model"
)

// Named is implemented by providers that report a metrics label.
type Named interface {
	Name() string
}

// NameOf returns p's label, or "provider" when it has none.
func NameOf(p model.BarProvider) string {
	if n, ok := p.(Named); ok {
		return n.Name()
	}
	return "provider"
}

// Normalize sorts bars by date, keeps the last row for duplicate dates,
// drops rows without a positive close and trims to rng. The input slice
// is reordered in place.
func Normalize(bars []model.Bar, rng model.Range) []model.Bar {
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })

	out := bars[:0]
	for _, b := range bars {
		if b.Close <= 0 || !rng.Contains(b.Date) {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Date.Equal(b.Date) {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}
