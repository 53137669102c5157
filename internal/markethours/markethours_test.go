package markethours

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ist(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, IST)
}

func utcDate(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestIsTradingDay(t *testing.T) {
	assert.True(t, IsTradingDay(ist(2026, time.March, 2, 12, 0)))     // Monday
	assert.False(t, IsTradingDay(ist(2026, time.March, 7, 12, 0)))    // Saturday
	assert.False(t, IsTradingDay(ist(2026, time.January, 26, 12, 0))) // Republic Day
	assert.False(t, IsTradingDay(ist(2025, time.April, 18, 12, 0)))   // Good Friday
}

func TestIsMarketOpen(t *testing.T) {
	assert.False(t, IsMarketOpen(ist(2026, time.March, 2, 9, 14)))
	assert.True(t, IsMarketOpen(ist(2026, time.March, 2, 9, 15)))
	assert.True(t, IsMarketOpen(ist(2026, time.March, 2, 15, 29)))
	assert.False(t, IsMarketOpen(ist(2026, time.March, 2, 15, 30)))
	// 04:00 UTC is 09:30 IST.
	assert.True(t, IsMarketOpen(time.Date(2026, time.March, 2, 4, 0, 0, 0, time.UTC)))
}

func TestLastCompletedSession(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want time.Time
	}{
		{"after close", ist(2026, time.March, 3, 16, 0), utcDate(2026, time.March, 3)},
		{"at close", ist(2026, time.March, 3, 15, 30), utcDate(2026, time.March, 3)},
		{"during session", ist(2026, time.March, 3, 11, 0), utcDate(2026, time.March, 2)},
		{"monday morning", ist(2026, time.March, 2, 8, 0), utcDate(2026, time.February, 27)},
		{"sunday", ist(2026, time.March, 8, 12, 0), utcDate(2026, time.March, 6)},
		{"day after holiday weekend", ist(2025, time.April, 21, 10, 0), utcDate(2025, time.April, 17)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LastCompletedSession(tt.at))
		})
	}
}

func TestNextClose(t *testing.T) {
	assert.Equal(t, ist(2026, time.March, 3, 15, 30), NextClose(ist(2026, time.March, 3, 10, 0)))
	assert.Equal(t, ist(2026, time.March, 4, 15, 30), NextClose(ist(2026, time.March, 3, 15, 30)))
	// Friday evening rolls over the weekend.
	assert.Equal(t, ist(2026, time.March, 9, 15, 30), NextClose(ist(2026, time.March, 6, 18, 0)))
	// Good Friday 2025 is skipped.
	assert.Equal(t, ist(2025, time.April, 21, 15, 30), NextClose(ist(2025, time.April, 17, 16, 0)))
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "open", StatusString(ist(2026, time.March, 2, 10, 0)))
	assert.Equal(t, "pre-open", StatusString(ist(2026, time.March, 2, 8, 0)))
	assert.Equal(t, "closed", StatusString(ist(2026, time.March, 2, 16, 0)))
	assert.Equal(t, "weekend", StatusString(ist(2026, time.March, 7, 10, 0)))
	assert.Equal(t, "holiday", StatusString(ist(2026, time.January, 26, 10, 0)))
}
