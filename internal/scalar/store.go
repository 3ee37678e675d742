package scalar

import (
	"cmp"
	"fmt"

	"github.com/hupe1980/bmapdb/internal/bitmap"
	"github.com/hupe1980/bmapdb/internal/conv"
	"github.com/hupe1980/bmapdb/internal/fs"
	"github.com/hupe1980/bmapdb/internal/mmap"
	"github.com/hupe1980/bmapdb/internal/unit"
)

// File name suffixes of the three backing files.
const (
	PresenceExt = ".BMP"
	ValuesExt   = ".SAR"
	IndexExt    = ".SAI"
)

// Store is a sorted scalar-array store over keys K and values V.
//
// The presence and inserted bitmaps are owned by the store and are only
// touched while the store's own lock is held; they are never locked
// themselves.
type Store[K Key, V Value] struct {
	*unit.Unit

	presence *bitmap.Store
	inserted *bitmap.Store

	valRegion *mmap.Region
	idxRegion *mmap.Region
	values    []V
	index     []K

	committed      uint64
	pendingInserts uint64
	pendingDeletes uint64

	minValue V
	maxValue V
}

// Open opens the store whose files share the path prefix base. Missing files
// yield an empty store. Inconsistent files yield a crashed store, not an
// error; check Usable.
func Open[K Key, V Value](fsys fs.FileSystem, name, base string, acct unit.Accountant, ls unit.LockState) (*Store[K, V], error) {
	presence, err := bitmap.Open(fsys, name+"#presence", base+PresenceExt, acct, ls)
	if err != nil {
		return nil, err
	}
	s := &Store[K, V]{
		Unit:      unit.New(name, acct),
		presence:  presence,
		inserted:  bitmap.NewAnon(acct),
		valRegion: mmap.NewFile(fsys, base+ValuesExt),
		idxRegion: mmap.NewFile(fsys, base+IndexExt),
	}
	if err := s.load(ls); err != nil {
		_ = presence.Close(ls)
		return nil, err
	}
	return s, nil
}

func (s *Store[K, V]) load(ls unit.LockState) error {
	if err := s.Map(s.valRegion, ls); err != nil {
		return err
	}
	if err := s.Map(s.idxRegion, ls); err != nil {
		_ = s.Unmap(s.valRegion, ls)
		return err
	}
	s.SetHibernated(false)
	s.MarkLoaded()
	s.views()
	_ = s.valRegion.Advise(mmap.AccessRandom)

	s.pendingInserts, s.pendingDeletes = 0, 0
	s.committed = 0
	if err := s.validate(); err != nil {
		s.MarkCrashed(err)
		return nil
	}
	s.committed = s.presence.Records()
	s.updateBounds()
	return nil
}

func (s *Store[K, V]) views() {
	s.values = mmap.View[V](s.valRegion.Bytes())
	s.index = mmap.View[K](s.idxRegion.Bytes())
}

// validate checks what can be checked cheaply on load. The index content is
// trusted; Check verifies it.
func (s *Store[K, V]) validate() error {
	if err := s.presence.Usable(); err != nil {
		return err
	}
	if n := s.valRegion.Len(); n%(ChunkSlots*mmap.SizeOf[V]()) != 0 {
		return fmt.Errorf("%w: %s has %d bytes", ErrSizeMismatch, s.valRegion.Path(), n)
	}
	if n := s.idxRegion.Len(); n%(ChunkSlots*mmap.SizeOf[K]()) != 0 {
		return fmt.Errorf("%w: %s has %d bytes", ErrSizeMismatch, s.idxRegion.Path(), n)
	}
	if n := s.presence.Records(); n > uint64(len(s.index)) {
		return fmt.Errorf("%w: %d records, %d index slots", ErrIndexMismatch, n, len(s.index))
	}
	if last := s.presence.Last(); last != bitmap.NotFound && last >= uint64(len(s.values)) {
		return fmt.Errorf("%w: key %d has no value slot", ErrIndexMismatch, last)
	}
	return nil
}

// Usable returns an error wrapping unit.ErrCrashed if the store or its
// presence bitmap is crashed.
func (s *Store[K, V]) Usable() error {
	if err := s.Unit.Usable(); err != nil {
		return err
	}
	if err := s.presence.Usable(); err != nil {
		s.MarkCrashed(err)
		return s.Unit.Usable()
	}
	return nil
}

// Records returns the number of present keys, pending inserts included.
func (s *Store[K, V]) Records() uint64 { return s.presence.Records() }

// Committed returns the number of sorted index entries.
func (s *Store[K, V]) Committed() uint64 { return s.committed }

// PendingInserts returns the length of the unsorted index tail.
func (s *Store[K, V]) PendingInserts() uint64 { return s.pendingInserts }

// PendingDeletes returns the number of removals since the last
// consolidation.
func (s *Store[K, V]) PendingDeletes() uint64 { return s.pendingDeletes }

// State returns the consolidation state.
func (s *Store[K, V]) State() State {
	switch {
	case s.pendingInserts > 0 && s.pendingDeletes > 0:
		return PendingBoth
	case s.pendingInserts > 0:
		return PendingInserts
	case s.pendingDeletes > 0:
		return PendingDeletes
	default:
		return Clean
	}
}

// Presence returns the presence bitmap. Callers must hold the store lock.
func (s *Store[K, V]) Presence() *bitmap.Store { return s.presence }

// Stats returns a snapshot of the index bookkeeping.
func (s *Store[K, V]) Stats() Stats {
	return Stats{
		Records:        s.Records(),
		Committed:      s.committed,
		PendingInserts: s.pendingInserts,
		PendingDeletes: s.pendingDeletes,
		State:          s.State(),
		ValueSlots:     len(s.values),
		IndexSlots:     len(s.index),
	}
}

// MappedBytes returns the bytes mapped by the store and its bitmaps.
func (s *Store[K, V]) MappedBytes() int64 {
	return s.Unit.MappedBytes() + s.presence.MappedBytes() + s.inserted.MappedBytes()
}

// MinValue returns the smallest committed value.
func (s *Store[K, V]) MinValue() (V, bool) { return s.minValue, s.committed > 0 }

// MaxValue returns the largest committed value.
func (s *Store[K, V]) MaxValue() (V, bool) { return s.maxValue, s.committed > 0 }

// Get returns the value stored for key.
func (s *Store[K, V]) Get(key K) (V, bool, error) {
	var zero V
	if err := s.Usable(); err != nil {
		return zero, false, err
	}
	if !s.presence.Test(uint64(key)) {
		return zero, false, nil
	}
	return s.values[key], true, nil
}

// Contains reports whether key holds a value.
func (s *Store[K, V]) Contains(key K) bool {
	return s.presence.Test(uint64(key))
}

// Put stores value under key. Writing an existing key overwrites it; the
// stale index entry is dropped on the next consolidation. Keys above
// bitmap.MaxKey are rejected before any file is resized.
func (s *Store[K, V]) Put(key K, value V, ls unit.LockState) error {
	if err := s.Usable(); err != nil {
		return err
	}
	k := uint64(key)
	if k > bitmap.MaxKey {
		return fmt.Errorf("scalar %s: %w: %d", s.Name(), ErrKeyTooLarge, k)
	}
	if k >= uint64(len(s.values)) {
		if err := s.reallocValues(k+1, ls); err != nil {
			return err
		}
	}

	if !s.inserted.Test(k) {
		tail := s.committed + s.pendingInserts
		if tail >= uint64(len(s.index)) {
			if err := s.reallocIndex(tail+1, ls); err != nil {
				return err
			}
		}
		if _, err := s.inserted.Set(k, ls); err != nil {
			if s.inserted.Crashed() {
				s.MarkCrashed(err)
			}
			return err
		}
		if s.presence.Test(k) {
			s.pendingDeletes++
		}
		s.index[tail] = key
		s.pendingInserts++
	}

	s.values[key] = value
	if _, err := s.presence.Set(k, ls); err != nil {
		s.MarkCrashed(err)
		return s.Usable()
	}
	s.MarkDirty()
	return nil
}

// Remove deletes key and reports whether it was present. The index entry is
// dropped on the next consolidation.
func (s *Store[K, V]) Remove(key K, ls unit.LockState) (bool, error) {
	if err := s.Usable(); err != nil {
		return false, err
	}
	removed, err := s.presence.Unset(uint64(key), ls)
	if err != nil {
		s.MarkCrashed(err)
		return removed, s.Usable()
	}
	if removed {
		s.pendingDeletes++
		s.MarkDirty()
	}
	return removed, nil
}

// Truncate removes every key and shrinks all backing files to zero.
func (s *Store[K, V]) Truncate(ls unit.LockState) error {
	if err := s.Usable(); err != nil {
		return err
	}
	if err := s.presence.Truncate(ls); err != nil {
		s.MarkCrashed(err)
		return s.Usable()
	}
	if err := s.inserted.Truncate(ls); err != nil {
		s.MarkCrashed(err)
		return s.Usable()
	}
	s.committed, s.pendingInserts, s.pendingDeletes = 0, 0, 0
	if err := s.resize(s.valRegion, 0, ls); err != nil {
		return err
	}
	if err := s.resize(s.idxRegion, 0, ls); err != nil {
		return err
	}
	s.MarkDirty()
	return nil
}

// slotBytes returns the byte size of n slots of elemSize bytes, rounded up to
// whole chunks.
func slotBytes(n uint64, elemSize int) (int, error) {
	slots, err := conv.RoundUp(n, ChunkSlots)
	if err != nil {
		return 0, err
	}
	return conv.Bytes(slots, uint64(elemSize)) //nolint:gosec // element sizes are at most 8
}

// valueBytes returns the value file size holding at least n slots.
func (s *Store[K, V]) valueBytes(n uint64) (int, error) {
	size, err := slotBytes(n, mmap.SizeOf[V]())
	if err != nil {
		return 0, fmt.Errorf("scalar %s: %w", s.Name(), err)
	}
	return size, nil
}

// indexBytes returns the index file size holding at least n entries.
func (s *Store[K, V]) indexBytes(n uint64) (int, error) {
	size, err := slotBytes(n, mmap.SizeOf[K]())
	if err != nil {
		return 0, fmt.Errorf("scalar %s: %w", s.Name(), err)
	}
	return size, nil
}

// reallocValues sizes the value array to hold at least n slots.
func (s *Store[K, V]) reallocValues(n uint64, ls unit.LockState) error {
	size, err := s.valueBytes(n)
	if err != nil {
		return err
	}
	return s.resize(s.valRegion, size, ls)
}

// reallocIndex sizes the index array to hold at least n entries.
func (s *Store[K, V]) reallocIndex(n uint64, ls unit.LockState) error {
	size, err := s.indexBytes(n)
	if err != nil {
		return err
	}
	return s.resize(s.idxRegion, size, ls)
}

// resize remaps one of the core files. A failed resize that kept the old
// mapping leaves the store as it was; one that lost the mapping crashes the
// store since the views no longer match the bookkeeping.
func (s *Store[K, V]) resize(r *mmap.Region, size int, ls unit.LockState) error {
	old := r.Len()
	err := s.Resize(r, size, ls)
	s.views()
	if err != nil {
		if r.Len() != old {
			s.MarkCrashed(err)
		}
		return err
	}
	return nil
}

func (s *Store[K, V]) valueAt(pos uint64) V { return s.values[s.index[pos]] }

// less orders keys by (value, key).
func (s *Store[K, V]) less(a, b K) bool {
	if c := cmp.Compare(s.values[a], s.values[b]); c != 0 {
		return c < 0
	}
	return a < b
}

func (s *Store[K, V]) updateBounds() {
	if s.committed == 0 {
		var zero V
		s.minValue, s.maxValue = zero, zero
		return
	}
	s.minValue = s.valueAt(0)
	s.maxValue = s.valueAt(s.committed - 1)
}

// Hibernate consolidates and releases all mappings. It is a no-op on a
// hibernated store. A crashed store is released without consolidation.
func (s *Store[K, V]) Hibernate(ls unit.LockState) error {
	if s.Hibernated() {
		return nil
	}
	if s.Usable() == nil {
		if err := s.Consolidate(ls); err != nil {
			return err
		}
	}
	if err := s.release(ls); err != nil {
		return err
	}
	if err := s.presence.Hibernate(ls); err != nil {
		return err
	}
	s.SetHibernated(true)
	s.ClearDirty()
	return nil
}

// Wakeup remaps the backing files and revalidates them. It is a no-op on a
// store that is not hibernated.
func (s *Store[K, V]) Wakeup(ls unit.LockState) error {
	if !s.Hibernated() {
		return nil
	}
	if err := s.presence.Wakeup(ls); err != nil {
		return err
	}
	return s.load(ls)
}

func (s *Store[K, V]) release(ls unit.LockState) error {
	s.values, s.index = nil, nil
	if err := s.inserted.Truncate(ls); err != nil {
		return err
	}
	if err := s.Unmap(s.valRegion, ls); err != nil {
		return err
	}
	return s.Unmap(s.idxRegion, ls)
}

// Sync consolidates and flushes all mappings to their files.
func (s *Store[K, V]) Sync(ls unit.LockState) error {
	if err := s.Consolidate(ls); err != nil {
		return err
	}
	if err := s.presence.Sync(); err != nil {
		return err
	}
	if err := s.valRegion.Sync(); err != nil {
		return err
	}
	if err := s.idxRegion.Sync(); err != nil {
		return err
	}
	s.ClearDirty()
	return nil
}

// Close consolidates a usable store and releases it for good. The files are
// kept.
func (s *Store[K, V]) Close(ls unit.LockState) error {
	var err error
	if !s.Hibernated() && s.Usable() == nil {
		err = s.Consolidate(ls)
	}
	if rerr := s.release(ls); err == nil {
		err = rerr
	}
	if cerr := s.presence.Close(ls); err == nil {
		err = cerr
	}
	if cerr := s.inserted.Close(ls); err == nil {
		err = cerr
	}
	return err
}

// Drop releases the store and deletes its files.
func (s *Store[K, V]) Drop(ls unit.LockState) error {
	s.values, s.index = nil, nil
	if err := s.inserted.Close(ls); err != nil {
		return err
	}
	if err := s.presence.Remove(ls); err != nil {
		return err
	}
	for _, r := range []*mmap.Region{s.valRegion, s.idxRegion} {
		if err := s.Unmap(r, ls); err != nil {
			return err
		}
		if err := r.Remove(); err != nil {
			return err
		}
	}
	return nil
}
