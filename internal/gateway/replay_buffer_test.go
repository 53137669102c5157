package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplayBuffer_Since(t *testing.T) {
	rb := NewReplayBuffer(100)
	for i := int64(1); i <= 10; i++ {
		rb.Push(i, []byte("msg"))
	}

	got := rb.Since(6)
	require.Len(t, got, 4)
	for i, e := range got {
		assert.Equal(t, int64(i)+7, e.Seq)
	}
	assert.Equal(t, int64(1), rb.Oldest())
}

func TestReplayBuffer_Wraparound(t *testing.T) {
	rb := NewReplayBuffer(5)

	// 8 pushes into 5 slots evicts 1..3.
	for i := int64(1); i <= 8; i++ {
		rb.Push(i, []byte("msg"))
	}

	require.Equal(t, 5, rb.Len())
	got := rb.Since(0)
	require.Len(t, got, 5)
	assert.Equal(t, int64(4), got[0].Seq)
	assert.Equal(t, int64(8), got[4].Seq)
	assert.Equal(t, int64(4), rb.Oldest())
}

func TestReplayBuffer_Empty(t *testing.T) {
	rb := NewReplayBuffer(10)
	assert.Empty(t, rb.Since(0))
	assert.Zero(t, rb.Oldest())
	assert.Zero(t, rb.Len())
}
