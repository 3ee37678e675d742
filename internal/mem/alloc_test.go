//go:build amd64 || arm64

package mem

import (
	"math"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func aligned(buf []byte) bool {
	return uintptr(unsafe.Pointer(&buf[0]))%Alignment == 0
}

func TestAllocAligned(t *testing.T) {
	for _, size := range []int{1, 63, 64, 65, 1024, 16384 * 8} {
		buf, err := AllocAligned(size)
		require.NoError(t, err)
		require.Len(t, buf, size)
		assert.Equal(t, size, cap(buf))
		assert.True(t, aligned(buf), "size %d", size)
		assert.Equal(t, make([]byte, size), buf)
	}

	buf, err := AllocAligned(0)
	require.NoError(t, err)
	assert.Nil(t, buf)
}

func TestAllocAligned_TooLarge(t *testing.T) {
	for _, size := range []int{int(MaxSize) + 1, math.MaxInt / 2, math.MaxInt} {
		buf, err := AllocAligned(size)
		assert.ErrorIs(t, err, ErrTooLarge)
		assert.Nil(t, buf)
	}
}

func TestRealloc(t *testing.T) {
	buf, err := AllocAligned(8)
	require.NoError(t, err)
	copy(buf, "abcdefgh")

	grown, err := Realloc(buf, 16)
	require.NoError(t, err)
	require.Len(t, grown, 16)
	assert.True(t, aligned(grown))
	assert.Equal(t, []byte("abcdefgh\x00\x00\x00\x00\x00\x00\x00\x00"), grown)

	shrunk, err := Realloc(grown, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcd"), shrunk)

	same, err := Realloc(shrunk, 4)
	require.NoError(t, err)
	assert.Same(t, &shrunk[0], &same[0])

	empty, err := Realloc(shrunk, 0)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestRealloc_TooLargeKeepsOld(t *testing.T) {
	old := []byte("keep")
	buf, err := Realloc(old, math.MaxInt)
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Nil(t, buf)
	assert.Equal(t, []byte("keep"), old)
}
