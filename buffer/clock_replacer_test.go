package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClockReplacerShouldReturnError_When_No_Possible_Victim_Is_Found(t *testing.T) {
	PoolSize := 32
	r := NewClockReplacer(PoolSize)
	for i := 0; i < PoolSize; i++ {
		r.Pin(i)
	}
	v, err := r.ChooseVictim()
	assert.Zero(t, v)
	assert.ErrorIs(t, err, ErrBufferExceeded)
}

func TestClockReplacer_Should_Not_Choose_Frames_That_Never_Held_A_Page(t *testing.T) {
	r := NewClockReplacer(8)
	_, err := r.ChooseVictim()
	assert.ErrorIs(t, err, ErrBufferExceeded)

	r.Pin(5)
	r.Unpin(5)
	v, err := r.ChooseVictim()
	require.NoError(t, err)
	assert.Equal(t, 5, v)
}

func TestClockReplacer_Should_Not_Choose_Pinned(t *testing.T) {
	PoolSize := 32
	r := NewClockReplacer(PoolSize)
	for i := 0; i < PoolSize; i++ {
		r.Pin(i)
	}
	r.Unpin(PoolSize - 1)
	v, err := r.ChooseVictim()
	assert.NoError(t, err)
	assert.Equal(t, PoolSize-1, v)
	assert.Equal(t, PoolSize-1, r.NumPinnedPages())
}

func TestClockReplacer_Should_Give_Second_Chance(t *testing.T) {
	r := NewClockReplacer(3)
	for i := 0; i < 3; i++ {
		r.Pin(i)
		r.Unpin(i)
	}

	// every frame has its second chance bit, first sweep clears them all and hand comes back to frame 0
	v, err := r.ChooseVictim()
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	// frame 0 is reused, hand continues from frame 1
	r.Pin(0)
	r.Unpin(0)
	v, err = r.ChooseVictim()
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = r.ChooseVictim()
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestClockReplacer_Removed_Frame_Should_Not_Be_Chosen(t *testing.T) {
	r := NewClockReplacer(2)
	r.Pin(0)
	r.Pin(1)
	r.Unpin(0)
	r.Unpin(1)
	r.Remove(0)

	v, err := r.ChooseVictim()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestClockReplacer_Unpin_Should_Panic_When_Not_Pinned(t *testing.T) {
	r := NewClockReplacer(2)
	r.Pin(0)
	r.Unpin(0)
	assert.Panics(t, func() { r.Unpin(0) })
}

func TestNewReplacer_Should_Reject_Unknown_Policy(t *testing.T) {
	r, err := NewReplacer("", 4)
	require.NoError(t, err)
	assert.IsType(t, &ClockReplacer{}, r)

	r, err = NewReplacer(LruPolicy, 4)
	require.NoError(t, err)
	assert.IsType(t, &LruReplacer{}, r)
	assert.Equal(t, 4, r.GetSize())

	_, err = NewReplacer("fifo", 4)
	assert.ErrorIs(t, err, ErrUnknownReplacer)
}

func TestClockReplacer_Hold_Should_Not_Give_Second_Chance(t *testing.T) {
	r := NewClockReplacer(2)
	r.Pin(0)
	r.Pin(1)
	r.Unpin(0)
	r.Unpin(1)

	// first sweep clears both bits and returns frame 0, hand stays at frame 1
	v, err := r.ChooseVictim()
	require.NoError(t, err)
	assert.Equal(t, 0, v)
	r.Pin(0)
	r.Unpin(0)

	r.Hold(1)
	assert.Equal(t, 1, r.NumPinnedPages())
	v, err = r.ChooseVictim()
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	r.Pin(0)
	r.Unpin(0)
	r.Unpin(1)
	v, err = r.ChooseVictim()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}
