package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func TestValidateBars(t *testing.T) {
	tests := []struct {
		name string
		bars []Bar
		want error
	}{
		{"empty", nil, ErrInsufficientData},
		{"single", []Bar{{Date: day(0)}}, nil},
		{"ordered with gaps", []Bar{{Date: day(0)}, {Date: day(3)}, {Date: day(4)}}, nil},
		{"duplicate", []Bar{{Date: day(0)}, {Date: day(1)}, {Date: day(1)}}, ErrOutOfOrderData},
		{"reversed", []Bar{{Date: day(2)}, {Date: day(1)}}, ErrOutOfOrderData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBars(tt.bars)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestBar_FillPrice(t *testing.T) {
	b := Bar{Open: 10, Close: 12}
	assert.Equal(t, 10.0, b.FillPrice())

	b.Open = 0
	assert.Equal(t, 12.0, b.FillPrice())
}

func TestRange_Contains(t *testing.T) {
	r := Range{From: day(1), To: day(3)}
	assert.False(t, r.Contains(day(0)))
	assert.True(t, r.Contains(day(1)))
	assert.True(t, r.Contains(day(3)))
	assert.False(t, r.Contains(day(4)))
	assert.True(t, Range{}.Contains(day(100)))
}
