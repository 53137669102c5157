package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrade_Outcome(t *testing.T) {
	assert.Equal(t, "win", (&Trade{PnL: 0.01}).Outcome())
	assert.Equal(t, "loss", (&Trade{PnL: -0.01}).Outcome())
	assert.Equal(t, "even", (&Trade{}).Outcome())
}
