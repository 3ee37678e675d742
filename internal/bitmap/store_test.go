package bitmap

import (
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/hupe1980/bmapdb/internal/fs"
	"github.com/hupe1980/bmapdb/internal/unit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counter struct{ bytes int64 }

func (c *counter) Account(delta int64, _ unit.LockState) { c.bytes += delta }

func openTemp(t *testing.T, acct unit.Accountant) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "t.BMP")
	s, err := Open(nil, "t", path, acct, unit.EngineUnlocked)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(unit.EngineUnlocked) })
	return s, path
}

func mustSet(t *testing.T, s *Store, keys ...uint64) {
	t.Helper()
	for _, k := range keys {
		_, err := s.Set(k, unit.EngineUnlocked)
		require.NoError(t, err)
	}
}

func collectForward(s *Store) []uint64 {
	var out []uint64
	for k := s.Next(NotFound); k != NotFound; k = s.Next(k) {
		out = append(out, k)
	}
	return out
}

func collectBackward(s *Store) []uint64 {
	var out []uint64
	for k := s.Prev(NotFound); k != NotFound; k = s.Prev(k) {
		out = append(out, k)
	}
	return out
}

func TestStore_Scenario(t *testing.T) {
	s, _ := openTemp(t, nil)
	mustSet(t, s, 3, 5, 9999)

	assert.Equal(t, uint64(3), s.Next(0))
	assert.Equal(t, uint64(5), s.Next(3))
	assert.Equal(t, uint64(9999), s.Next(5))
	assert.Equal(t, NotFound, s.Next(9999))
	assert.Equal(t, uint64(3), s.Records())
	assert.Equal(t, uint64(9999), s.MaxValue())

	assert.Equal(t, []uint64{3, 5, 9999}, collectForward(s))
	assert.Equal(t, []uint64{9999, 5, 3}, collectBackward(s))
}

func TestStore_NextPrevOutOfBounds(t *testing.T) {
	s, _ := openTemp(t, nil)

	assert.Equal(t, NotFound, s.Next(NotFound), "empty store")
	assert.Equal(t, NotFound, s.Prev(NotFound), "empty store")

	mustSet(t, s, 0, 63, 64, 130)

	assert.Equal(t, uint64(0), s.First())
	assert.Equal(t, uint64(130), s.Last())
	assert.Equal(t, NotFound, s.Next(1<<40))
	assert.Equal(t, uint64(130), s.Prev(1<<40))
	assert.Equal(t, uint64(130), s.Prev(131))
	assert.Equal(t, uint64(64), s.Prev(130))
	assert.Equal(t, uint64(63), s.Prev(64))
	assert.Equal(t, uint64(0), s.Prev(63))
	assert.Equal(t, NotFound, s.Prev(0))
	assert.Equal(t, uint64(63), s.Next(0))
	assert.Equal(t, uint64(64), s.Next(63))
}

func TestStore_RoundTripAgainstModel(t *testing.T) {
	s, _ := openTemp(t, nil)
	rng := rand.New(rand.NewPCG(1, 2))
	model := map[uint64]bool{}

	for i := 0; i < 20000; i++ {
		k := rng.Uint64N(100000)
		if rng.IntN(3) == 0 {
			was, err := s.Unset(k, unit.EngineUnlocked)
			require.NoError(t, err)
			assert.Equal(t, model[k], was)
			delete(model, k)
		} else {
			fresh, err := s.Set(k, unit.EngineUnlocked)
			require.NoError(t, err)
			assert.Equal(t, !model[k], fresh)
			model[k] = true
		}
	}

	want := make([]uint64, 0, len(model))
	for k := range model {
		want = append(want, k)
		assert.True(t, s.Test(k))
	}
	slices.Sort(want)

	assert.Equal(t, uint64(len(model)), s.Records())
	assert.Equal(t, want, collectForward(s))
	require.NoError(t, s.Check())

	if len(want) > 0 {
		assert.Equal(t, want[len(want)-1], s.MaxValue())
	}
}

func TestStore_ChunkedGrowthAndShrink(t *testing.T) {
	acct := &counter{}
	s, path := openTemp(t, acct)

	mustSet(t, s, 1)
	assert.Equal(t, ChunkWords, s.Words())
	assert.Equal(t, int64(ChunkBytes), acct.bytes)

	// First key of the second chunk.
	second := uint64(ChunkWords * 64)
	mustSet(t, s, second)
	assert.Equal(t, 2*ChunkWords, s.Words())
	assert.Equal(t, int64(2*ChunkBytes), acct.bytes)

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(2*ChunkBytes), fi.Size())

	_, err = s.Unset(second, unit.EngineUnlocked)
	require.NoError(t, err)
	assert.Equal(t, ChunkWords, s.Words(), "unsetting the max shrinks to the chunk holding the new max")
	assert.Equal(t, uint64(1), s.MaxValue())

	_, err = s.Unset(1, unit.EngineUnlocked)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Words())
	assert.Equal(t, NotFound, s.MaxValue())
	assert.Equal(t, int64(0), acct.bytes)

	fi, err = os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(0), fi.Size())
}

func TestStore_UnsetAbsent(t *testing.T) {
	s, _ := openTemp(t, nil)
	mustSet(t, s, 10)

	was, err := s.Unset(11, unit.EngineUnlocked)
	require.NoError(t, err)
	assert.False(t, was)

	was, err = s.Unset(1<<30, unit.EngineUnlocked)
	require.NoError(t, err)
	assert.False(t, was)
	assert.Equal(t, uint64(1), s.Records())
}

func TestStore_PersistAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.BMP")

	s, err := Open(nil, "t", path, nil, unit.EngineUnlocked)
	require.NoError(t, err)
	mustSet(t, s, 7, 700, 70000)
	require.NoError(t, s.Sync())
	require.NoError(t, s.Close(unit.EngineUnlocked))

	s, err = Open(nil, "t", path, nil, unit.EngineUnlocked)
	require.NoError(t, err)
	defer s.Close(unit.EngineUnlocked)

	assert.Equal(t, uint64(3), s.Records())
	assert.Equal(t, uint64(70000), s.MaxValue())
	assert.Equal(t, []uint64{7, 700, 70000}, collectForward(s))
}

func TestStore_HibernateWakeup(t *testing.T) {
	acct := &counter{}
	s, _ := openTemp(t, acct)
	mustSet(t, s, 1, 2, 3)

	require.NoError(t, s.Hibernate(unit.EngineUnlocked))
	assert.True(t, s.Hibernated())
	assert.Equal(t, int64(0), acct.bytes)
	require.NoError(t, s.Hibernate(unit.EngineUnlocked), "idempotent")

	require.NoError(t, s.Wakeup(unit.EngineUnlocked))
	assert.False(t, s.Hibernated())
	assert.Equal(t, int64(ChunkBytes), acct.bytes)
	assert.Equal(t, []uint64{1, 2, 3}, collectForward(s))
	require.NoError(t, s.Wakeup(unit.EngineUnlocked), "idempotent")
}

func TestStore_MisalignedFileCrashes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.BMP")
	// Key 3 set in the first word, file one word long.
	require.NoError(t, os.WriteFile(path, []byte{0x08, 0, 0, 0, 0, 0, 0, 0}, 0o644))

	s, err := Open(nil, "t", path, nil, unit.EngineUnlocked)
	require.NoError(t, err)
	defer s.Close(unit.EngineUnlocked)

	assert.True(t, s.Crashed())
	assert.ErrorIs(t, s.CrashReason(), ErrSizeMismatch)
	_, err = s.Set(1, unit.EngineUnlocked)
	assert.ErrorIs(t, err, unit.ErrCrashed)
	_, err = s.Unset(1, unit.EngineUnlocked)
	assert.ErrorIs(t, err, unit.ErrCrashed)
	assert.ErrorIs(t, s.Check(), unit.ErrCrashed)

	require.NoError(t, s.Repair(unit.EngineUnlocked))
	assert.False(t, s.Crashed())
	assert.Equal(t, ChunkWords, s.Words())
	assert.True(t, s.Test(3))
	assert.Equal(t, uint64(1), s.Records())
	require.NoError(t, s.Check())

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(ChunkBytes), fi.Size())
}

func TestStore_MisalignedWhileHibernated(t *testing.T) {
	s, path := openTemp(t, nil)
	mustSet(t, s, 3, 70000)
	require.NoError(t, s.Sync())
	require.NoError(t, s.Hibernate(unit.EngineUnlocked))

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, s.Wakeup(unit.EngineUnlocked))
	assert.True(t, s.Crashed())
	assert.ErrorIs(t, s.CrashReason(), ErrSizeMismatch)
	assert.False(t, s.Test(3))
	_, err = s.Set(1, unit.EngineUnlocked)
	assert.ErrorIs(t, err, unit.ErrCrashed)

	require.NoError(t, s.Repair(unit.EngineUnlocked))
	assert.Equal(t, []uint64{3, 70000}, collectForward(s))
	require.NoError(t, s.Check())

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(2*ChunkBytes), fi.Size())
}

func TestStore_KeyTooLarge(t *testing.T) {
	s, path := openTemp(t, nil)
	mustSet(t, s, 1)

	for _, key := range []uint64{MaxKey + 1, 1 << 62, NotFound - 1} {
		_, err := s.Set(key, unit.EngineUnlocked)
		require.ErrorIs(t, err, ErrKeyTooLarge, "key %d", key)
	}
	err := s.AddRoaring(roaring64.BitmapOf(5, 1<<62), unit.EngineUnlocked)
	require.ErrorIs(t, err, ErrKeyTooLarge)

	require.NoError(t, s.Usable())
	assert.True(t, s.Test(1))
	assert.False(t, s.Test(5))
	assert.Equal(t, uint64(1), s.Records())
	assert.Equal(t, ChunkWords, s.Words())
	require.NoError(t, s.Check())

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(ChunkBytes), fi.Size())
}

func TestStore_GrowFailureKeepsStore(t *testing.T) {
	ffs := fs.NewFaultyFS(nil)
	s, err := Open(ffs, "t", filepath.Join(t.TempDir(), "t.BMP"), nil, unit.EngineUnlocked)
	require.NoError(t, err)
	defer s.Close(unit.EngineUnlocked)
	mustSet(t, s, 1)

	ffs.AddRule(".BMP", fs.Fault{FailOnTruncate: true, FailAfterBytes: -1})
	_, err = s.Set(ChunkWords*64, unit.EngineUnlocked)
	require.ErrorIs(t, err, fs.ErrInjected)
	require.NoError(t, s.Usable())
	assert.True(t, s.Test(1))
	assert.Equal(t, ChunkWords, s.Words())

	ffs.ClearRules()
	mustSet(t, s, ChunkWords*64)
	assert.Equal(t, []uint64{1, ChunkWords * 64}, collectForward(s))
}

func TestStore_ReleaseWithRecordsCrashes(t *testing.T) {
	s, _ := openTemp(t, nil)
	mustSet(t, s, 5)

	err := s.Reallocate(NotFound, unit.EngineUnlocked)
	require.Error(t, err)
	assert.True(t, s.Crashed())
}

func TestStore_Truncate(t *testing.T) {
	s, _ := openTemp(t, nil)
	mustSet(t, s, 1, 100, 100000)

	require.NoError(t, s.Truncate(unit.EngineUnlocked))
	assert.Equal(t, uint64(0), s.Records())
	assert.Equal(t, NotFound, s.MaxValue())
	assert.Equal(t, 0, s.Words())
	assert.Nil(t, collectForward(s))

	mustSet(t, s, 2)
	assert.Equal(t, []uint64{2}, collectForward(s))
}

func TestStore_UnionIntersect(t *testing.T) {
	a := NewAnon(nil)
	b := NewAnon(nil)
	c := NewAnon(nil)
	mustSet(t, a, 1, 2, 3, 200000)
	mustSet(t, b, 2, 3, 4)
	mustSet(t, c, 3, 4, 5, 2)

	dst := NewAnon(nil)
	mustSet(t, dst, 99) // previous content is replaced

	require.NoError(t, dst.UnionOf(unit.EngineUnlocked, a, b, c))
	assert.Equal(t, []uint64{1, 2, 3, 4, 5, 200000}, collectForward(dst))
	assert.Equal(t, uint64(6), dst.Records())
	assert.Equal(t, uint64(200000), dst.MaxValue())
	require.NoError(t, dst.Check())

	require.NoError(t, dst.IntersectOf(unit.EngineUnlocked, a, b, c))
	assert.Equal(t, []uint64{2, 3}, collectForward(dst))
	assert.Equal(t, uint64(2), dst.Records())
	assert.Equal(t, uint64(3), dst.MaxValue())
	assert.Equal(t, ChunkWords, dst.Words())
	require.NoError(t, dst.Check())

	empty := NewAnon(nil)
	require.NoError(t, dst.IntersectOf(unit.EngineUnlocked, a, empty))
	assert.Equal(t, uint64(0), dst.Records())
	assert.Equal(t, NotFound, dst.MaxValue())

	require.NoError(t, dst.UnionOf(unit.EngineUnlocked))
	assert.Equal(t, uint64(0), dst.Records())
}

func TestStore_IntersectInPlace(t *testing.T) {
	a := NewAnon(nil)
	b := NewAnon(nil)
	mustSet(t, a, 1, 64, 128, 129)
	mustSet(t, b, 64, 129)

	require.NoError(t, a.IntersectOf(unit.EngineUnlocked, a, b))
	assert.Equal(t, []uint64{64, 129}, collectForward(a))
}

func TestStore_CountRange(t *testing.T) {
	s := NewAnon(nil)
	mustSet(t, s, 0, 5, 63, 64, 65, 1000, 5000)

	assert.Equal(t, uint64(7), s.CountRange(0, NotFound))
	assert.Equal(t, uint64(3), s.CountRange(5, 64))
	assert.Equal(t, uint64(1), s.CountRange(63, 63))
	assert.Equal(t, uint64(0), s.CountRange(6, 62))
	assert.Equal(t, uint64(2), s.CountRange(1000, 1<<40))
	assert.Equal(t, uint64(0), s.CountRange(6000, 7000))
	assert.Equal(t, uint64(0), s.CountRange(10, 5))
}

func TestStore_EstimateRange(t *testing.T) {
	s := NewAnon(nil)
	assert.Equal(t, uint64(0), s.EstimateRange(KeyBound{Unbounded: true}, KeyBound{Unbounded: true}))

	for k := uint64(0); k < 1000; k += 2 {
		mustSet(t, s, k)
	}
	all := s.EstimateRange(KeyBound{Unbounded: true}, KeyBound{Unbounded: true})
	assert.InDelta(t, 500, float64(all), 2)

	half := s.EstimateRange(KeyBound{Key: 0}, KeyBound{Key: 499})
	assert.InDelta(t, 250, float64(half), 2)

	assert.Equal(t, uint64(0), s.EstimateRange(KeyBound{Key: 998, Exclusive: true}, KeyBound{Unbounded: true}))
	assert.Equal(t, uint64(0), s.EstimateRange(KeyBound{Unbounded: true}, KeyBound{Key: 0, Exclusive: true}))
	assert.Equal(t, uint64(0), s.EstimateRange(KeyBound{Key: 600}, KeyBound{Key: 500}))
}

func TestStore_Roaring(t *testing.T) {
	s := NewAnon(nil)
	mustSet(t, s, 1, 2, 3, 1<<20)

	rb := s.ToRoaring()
	assert.Equal(t, uint64(4), rb.GetCardinality())
	assert.True(t, rb.Contains(1<<20))

	dst := NewAnon(nil)
	require.NoError(t, dst.AddRoaring(rb, unit.EngineUnlocked))
	assert.Equal(t, collectForward(s), collectForward(dst))

	require.NoError(t, dst.AddRoaring(roaring64.New(), unit.EngineUnlocked))
	assert.Equal(t, uint64(4), dst.Records())
}

func TestStore_ForEachStops(t *testing.T) {
	s := NewAnon(nil)
	mustSet(t, s, 1, 2, 3, 4)

	var seen []uint64
	s.ForEach(func(k uint64) bool {
		seen = append(seen, k)
		return len(seen) < 2
	})
	assert.Equal(t, []uint64{1, 2}, seen)
}

func TestStore_Remove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.BMP")
	s, err := Open(nil, "t", path, nil, unit.EngineUnlocked)
	require.NoError(t, err)
	mustSet(t, s, 1)

	require.NoError(t, s.Remove(unit.EngineUnlocked))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
