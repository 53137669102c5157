package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-backtestv1/internal/model"
)

func turtleParams() Params {
	p := DefaultParams()
	p.EntryWindow, p.ExitWindow, p.ATRWindow = 3, 2, 2
	p.PyramidCap = 2
	p.AllowShort = false
	return p
}

// breakoutBars: flat at 10 for bars 0-4, breakout on bar 5.
func breakoutBars() []model.Bar {
	bars := flat(5, 10)
	return append(bars, mk(5, 11, 12.5, 11.5, 12))
}

func TestTurtle_BreakoutUsesLaggedChannel(t *testing.T) {
	s, err := NewTurtle(turtleParams())
	require.NoError(t, err)

	bars := append(breakoutBars(), mk(6, 12, 12.5, 11.5, 12))
	sigs := run(t, s, bars)

	for i := 0; i < 6; i++ {
		assert.Equalf(t, model.SignalHold, sigs[i].Kind, "bar %d", i)
	}
	sig := sigs[6]
	assert.Equal(t, model.SignalEnterLong, sig.Kind)
	assert.Equal(t, 1, sig.Unit)
	assert.Equal(t, 10.5, sig.Level, "channel through bar 4")
	assert.InDelta(t, 1.75, sig.ATR, 1e-9)
}

func TestTurtle_ExitChannel(t *testing.T) {
	s, err := NewTurtle(turtleParams())
	require.NoError(t, err)

	bars := append(breakoutBars(),
		mk(6, 12, 12.5, 11.5, 12),
		mk(7, 12, 12.5, 11.5, 12),
		mk(8, 12, 12.5, 11.5, 12),
		mk(9, 11.5, 11.5, 10.5, 11),
		mk(10, 11, 11.5, 10.5, 11),
	)
	sigs := run(t, s, bars)
	assert.Equal(t, model.SignalEnterLong, sigs[6].Kind)
	for i := 7; i < 10; i++ {
		assert.Equalf(t, model.SignalHold, sigs[i].Kind, "bar %d", i)
	}
	assert.Equal(t, model.SignalExitLong, sigs[10].Kind)
	assert.Equal(t, "exit channel", sigs[10].Reason)
	assert.Equal(t, 11.5, sigs[10].Level)
}

func TestTurtle_StopExit(t *testing.T) {
	s, err := NewTurtle(turtleParams())
	require.NoError(t, err)

	// entry fill 12, ATR 1.75, stop 8.5
	bars := append(breakoutBars(),
		mk(6, 12, 12.5, 11.5, 12),
		mk(7, 12, 12.5, 11.5, 12),
		mk(8, 12, 12.5, 11.5, 12),
		mk(9, 9, 9.5, 7.5, 8),
		mk(10, 8, 8.5, 7.5, 8),
	)
	sigs := run(t, s, bars)
	assert.Equal(t, model.SignalExitLong, sigs[10].Kind)
	assert.Equal(t, "stop", sigs[10].Reason)
	assert.Equal(t, 8.5, sigs[10].Level)
}

func TestTurtle_PyramidCap(t *testing.T) {
	p := turtleParams()
	p.PyramidCap = 4
	s, err := NewTurtle(p)
	require.NoError(t, err)

	bars := flat(5, 10)
	for i := 5; i < 40; i++ {
		c := 10 + float64(i-4)
		bars = append(bars, mk(i, c-0.5, c+0.5, c-0.5, c))
	}
	sigs := run(t, s, bars)

	var units []int
	for _, sig := range sigs {
		require.NotEqual(t, model.SignalExitLong, sig.Kind)
		if sig.Kind == model.SignalEnterLong {
			units = append(units, sig.Unit)
		}
	}
	assert.Equal(t, []int{1, 2, 3, 4}, units)
}

func TestTurtle_Short(t *testing.T) {
	falling := flat(5, 20)
	for i := 5; i < 12; i++ {
		c := 20 - float64(i-4)
		falling = append(falling, mk(i, c+0.5, c+0.5, c-0.5, c))
	}

	p := turtleParams()
	s, err := NewTurtle(p)
	require.NoError(t, err)
	for _, sig := range run(t, s, falling) {
		assert.NotEqual(t, model.SignalEnterShort, sig.Kind, "shorts disabled")
	}

	p.AllowShort = true
	s, err = NewTurtle(p)
	require.NoError(t, err)
	sigs := run(t, s, falling)
	assert.Equal(t, model.SignalEnterShort, sigs[6].Kind)
	assert.Equal(t, 19.5, sigs[6].Level)
	assert.Equal(t, model.SignalEnterShort, sigs[7].Kind)
	assert.Equal(t, 2, sigs[7].Unit)
}

func TestTurtle_FlatSeriesHolds(t *testing.T) {
	s, err := NewTurtle(turtleParams())
	require.NoError(t, err)
	for _, sig := range run(t, s, flat(50, 10)) {
		assert.Equal(t, model.SignalHold, sig.Kind)
	}
}
