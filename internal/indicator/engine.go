package indicator

import (
	"encoding/binary"
	"hash/fnv"
	"math"
	"strconv"

	"trading-backtestv1/internal/model"
)

// Engine computes indicator sets for bar sequences and caches the results
// by symbol, spec set and bar content.
// Not safe for concurrent use; the runner gives each backtest its own Engine.
type Engine struct {
	cache map[string]Set
	hits  int
}

// NewEngine creates an empty indicator engine.
func NewEngine() *Engine {
	return &Engine{cache: make(map[string]Set, 8)}
}

// Compute returns one Series per spec, each aligned with bars.
// Results are served from cache when the same symbol, specs and bars were
// computed before.
func (e *Engine) Compute(symbol string, bars []model.Bar, specs []Spec) (Set, error) {
	key := cacheKey(symbol, bars, specs)
	if set, ok := e.cache[key]; ok {
		e.hits++
		return set, nil
	}

	set := make(Set, len(specs))
	for _, spec := range specs {
		if _, done := set[spec.Name()]; done {
			continue
		}
		series, err := Compute(bars, spec)
		if err != nil {
			return nil, err
		}
		set[spec.Name()] = series
	}
	e.cache[key] = set
	return set, nil
}

// CacheHits returns how many Compute calls were served from cache.
func (e *Engine) CacheHits() int { return e.hits }

func cacheKey(symbol string, bars []model.Bar, specs []Spec) string {
	return symbol + "|" + specsKey(specs) + "|" + strconv.Itoa(len(bars)) +
		"|" + strconv.FormatUint(fingerprint(bars), 16)
}

// fingerprint hashes dates and OHLCV so that edited bars miss the cache.
func fingerprint(bars []model.Bar) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	put := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	for i := range bars {
		b := &bars[i]
		put(uint64(b.Date.UnixNano()))
		put(math.Float64bits(b.Open))
		put(math.Float64bits(b.High))
		put(math.Float64bits(b.Low))
		put(math.Float64bits(b.Close))
		put(math.Float64bits(b.Volume))
	}
	return h.Sum64()
}
