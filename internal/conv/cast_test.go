package conv

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUint64ToInt(t *testing.T) {
	got, err := Uint64ToInt(123)
	require.NoError(t, err)
	assert.Equal(t, 123, got)

	got, err = Uint64ToInt(math.MaxInt)
	require.NoError(t, err)
	assert.Equal(t, math.MaxInt, got)

	_, err = Uint64ToInt(math.MaxUint64)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestBytes(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		got, err := Bytes(16384, 8)
		require.NoError(t, err)
		assert.Equal(t, 131072, got)
	})

	t.Run("zero", func(t *testing.T) {
		got, err := Bytes(0, 8)
		require.NoError(t, err)
		assert.Equal(t, 0, got)
	})

	t.Run("product overflow", func(t *testing.T) {
		_, err := Bytes(math.MaxUint64/4, 8)
		assert.ErrorIs(t, err, ErrOverflow)
	})

	t.Run("int overflow", func(t *testing.T) {
		_, err := Bytes(math.MaxInt/4+1, 8)
		assert.ErrorIs(t, err, ErrOverflow)
	})
}

func TestRoundUp(t *testing.T) {
	for _, tc := range []struct {
		n, m, want uint64
	}{
		{0, 16384, 0},
		{1, 16384, 16384},
		{16384, 16384, 16384},
		{16385, 16384, 32768},
		{math.MaxUint64, 1, math.MaxUint64},
	} {
		got, err := RoundUp(tc.n, tc.m)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "RoundUp(%d, %d)", tc.n, tc.m)
	}

	_, err := RoundUp(math.MaxUint64-1, 16384)
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = RoundUp(1, 0)
	assert.ErrorIs(t, err, ErrOverflow)
}
