package indicator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_ComputeAligned(t *testing.T) {
	e := NewEngine()
	bars := sampleBars()
	specs := []Spec{{KindATR, 3}, {KindHighest, 2}, {KindLowest, 2}}

	set, err := e.Compute("TEST", bars, specs)
	require.NoError(t, err)
	require.Len(t, set, 3)
	for _, s := range specs {
		assert.Len(t, set.Get(s), len(bars), s.Name())
	}
	assert.Nil(t, set.Get(Spec{KindSMA, 9}))
}

func TestEngine_Cache(t *testing.T) {
	e := NewEngine()
	bars := sampleBars()

	first, err := e.Compute("TEST", bars, []Spec{{KindSMA, 2}, {KindATR, 3}})
	require.NoError(t, err)
	second, err := e.Compute("TEST", bars, []Spec{{KindATR, 3}, {KindSMA, 2}})
	require.NoError(t, err)
	assert.Equal(t, 1, e.CacheHits())
	assert.Equal(t, first, second)

	// A longer window is a different key.
	_, err = e.Compute("TEST", bars[:3], []Spec{{KindSMA, 2}, {KindATR, 3}})
	require.NoError(t, err)
	assert.Equal(t, 1, e.CacheHits())

	_, err = e.Compute("OTHER", bars, []Spec{{KindSMA, 2}, {KindATR, 3}})
	require.NoError(t, err)
	assert.Equal(t, 1, e.CacheHits())
}

func TestEngine_InvalidSpec(t *testing.T) {
	_, err := NewEngine().Compute("TEST", sampleBars(), []Spec{{KindSMA, 0}})
	require.Error(t, err)
}

func TestEngine_Pure(t *testing.T) {
	bars := sampleBars()
	a, err := NewEngine().Compute("TEST", bars, []Spec{{KindATR, 3}})
	require.NoError(t, err)
	b, err := NewEngine().Compute("TEST", bars, []Spec{{KindATR, 3}})
	require.NoError(t, err)
	assertSeries(t, a.Get(Spec{KindATR, 3}), b.Get(Spec{KindATR, 3}))
}

func TestEngine_EditedBarsMissCache(t *testing.T) {
	e := NewEngine()
	bars := sampleBars()
	_, err := e.Compute("TEST", bars, []Spec{{KindATR, 3}})
	require.NoError(t, err)

	edited := append(bars[:0:0], bars...)
	edited[2].High = 50
	set, err := e.Compute("TEST", edited, []Spec{{KindATR, 3}})
	require.NoError(t, err)
	assert.Equal(t, 0, e.CacheHits())
	assert.NotEqual(t, 7.0/3, set.Get(Spec{KindATR, 3})[2])
}
