package mmap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hupe1980/bmapdb/internal/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openFile(t *testing.T, fsys fs.FileSystem, path string) *Region {
	t.Helper()
	r := NewFile(fsys, path)
	require.NoError(t, r.Load())
	return r
}

func TestRegion_FileGrowShrink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.BMP")

	r := openFile(t, fs.Default, path)
	defer r.Release()

	assert.Nil(t, r.Bytes())
	assert.Equal(t, 0, r.Len())

	require.NoError(t, r.Resize(4096))
	assert.Equal(t, 4096, r.Len())
	require.NoError(t, r.Advise(AccessSequential))

	words := View[uint64](r.Bytes())
	require.Len(t, words, 512)
	for _, w := range words {
		assert.Zero(t, w)
	}
	words[0] = 0xdeadbeef
	words[511] = 42

	// Growth keeps old content and zero-fills the tail.
	require.NoError(t, r.Resize(8192))
	words = View[uint64](r.Bytes())
	require.Len(t, words, 1024)
	assert.Equal(t, uint64(0xdeadbeef), words[0])
	assert.Equal(t, uint64(42), words[511])
	assert.Zero(t, words[1023])

	require.NoError(t, r.Sync())

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(8192), fi.Size())

	require.NoError(t, r.Resize(0))
	assert.Nil(t, r.Bytes())

	fi, err = os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(0), fi.Size())
}

func TestRegion_ReleaseAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.SAR")

	r := openFile(t, nil, path)

	require.NoError(t, r.Resize(1024))
	View[float64](r.Bytes())[3] = 2.5
	require.NoError(t, r.Advise(AccessRandom))

	require.NoError(t, r.Release())
	assert.Nil(t, r.Bytes())

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(1024), fi.Size())

	require.NoError(t, r.Load())
	assert.Equal(t, 2.5, View[float64](r.Bytes())[3])

	// Load on a mapped region is a no-op.
	require.NoError(t, r.Load())
	require.NoError(t, r.Release())

	reopened := openFile(t, nil, path)
	defer reopened.Release()
	assert.Equal(t, 2.5, View[float64](reopened.Bytes())[3])
}

func TestRegion_Anonymous(t *testing.T) {
	r := NewAnon()
	assert.True(t, r.Anonymous())
	assert.Equal(t, "", r.Path())

	require.NoError(t, r.Resize(128))
	b := View[uint32](r.Bytes())
	require.Len(t, b, 32)
	b[7] = 7

	require.NoError(t, r.Resize(256))
	b = View[uint32](r.Bytes())
	require.Len(t, b, 64)
	assert.Equal(t, uint32(7), b[7])
	assert.Zero(t, b[63])

	// Sync and Advise are no-ops for heap memory.
	require.NoError(t, r.Sync())
	require.NoError(t, r.Advise(AccessRandom))

	require.NoError(t, r.Resize(0))
	assert.Nil(t, r.Bytes())
}

func TestRegion_InvalidSize(t *testing.T) {
	r := NewAnon()
	assert.ErrorIs(t, r.Resize(-1), ErrInvalidSize)
}

func TestRegion_InconsistentStatePanics(t *testing.T) {
	r := NewAnon()
	r.size = 64 // size without memory

	assert.Panics(t, func() { _ = r.Resize(128) })
}

func TestRegion_TruncateFailureKeepsMapping(t *testing.T) {
	ffs := fs.NewFaultyFS(nil)
	path := filepath.Join(t.TempDir(), "t.SAI")

	r := openFile(t, ffs, path)
	defer r.Release()
	require.NoError(t, r.Resize(64))
	View[uint64](r.Bytes())[1] = 99

	ffs.AddRule(".SAI", fs.Fault{FailOnTruncate: true, FailAfterBytes: -1})
	for _, size := range []int{128, 8, 0} {
		err := r.Resize(size)
		require.ErrorIs(t, err, fs.ErrInjected)
		require.Equal(t, 64, r.Len(), "size %d", size)
		assert.Equal(t, uint64(99), View[uint64](r.Bytes())[1])
	}

	ffs.ClearRules()
	require.NoError(t, r.Resize(128))
	assert.Equal(t, uint64(99), View[uint64](r.Bytes())[1])
}

func TestRegion_Remove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.BMP")

	r := openFile(t, nil, path)
	require.NoError(t, r.Resize(64))
	require.NoError(t, r.Remove())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Removing twice is fine.
	require.NoError(t, r.Remove())
}

func TestScratch(t *testing.T) {
	s, err := NewScratch(4096)
	require.NoError(t, err)

	keys := View[uint64](s.Bytes())
	require.Len(t, keys, 512)
	keys[10] = 10

	require.NoError(t, s.Free())
	require.NoError(t, s.Free())
	assert.Nil(t, s.Bytes())

	empty, err := NewScratch(0)
	require.NoError(t, err)
	assert.Nil(t, empty.Bytes())
	require.NoError(t, empty.Free())

	_, err = NewScratch(-1)
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestSizeOf(t *testing.T) {
	assert.Equal(t, 1, SizeOf[uint8]())
	assert.Equal(t, 2, SizeOf[int16]())
	assert.Equal(t, 4, SizeOf[float32]())
	assert.Equal(t, 8, SizeOf[uint64]())
}
