package scalar

import (
	"cmp"
	"fmt"

	"github.com/hupe1980/bmapdb/internal/mmap"
	"github.com/hupe1980/bmapdb/internal/unit"
)

// Check verifies the store without modifying it: chunk alignment, index
// bounds and, for a store without pending deletes, that the committed
// prefix is sorted and agrees with presence.
func (s *Store[K, V]) Check() error {
	if err := s.Usable(); err != nil {
		return err
	}
	if err := s.presence.Check(); err != nil {
		return err
	}
	if len(s.values)%ChunkSlots != 0 || len(s.index)%ChunkSlots != 0 {
		return fmt.Errorf("%w: %d value slots, %d index slots", ErrSizeMismatch, len(s.values), len(s.index))
	}

	used := s.committed + s.pendingInserts
	if used > uint64(len(s.index)) {
		return fmt.Errorf("%w: %d entries, %d index slots", ErrIndexMismatch, used, len(s.index))
	}
	for i := uint64(0); i < used; i++ {
		if k := uint64(s.index[i]); k >= uint64(len(s.values)) {
			return fmt.Errorf("%w: entry %d key %d has no value slot", ErrIndexMismatch, i, k)
		}
	}
	if s.pendingDeletes > 0 {
		return nil
	}

	if used != s.presence.Records() {
		return fmt.Errorf("%w: %d entries, %d present keys", ErrIndexMismatch, used, s.presence.Records())
	}
	for i := uint64(0); i < s.committed; i++ {
		k := s.index[i]
		if !s.presence.Test(uint64(k)) {
			return fmt.Errorf("%w: entry %d key %d is not present", ErrIndexMismatch, i, k)
		}
		if i > 0 && cmp.Less(s.values[k], s.valueAt(i-1)) {
			return fmt.Errorf("%w: at entry %d", ErrUnsorted, i)
		}
	}
	return nil
}

// Repair rebuilds the store from its presence bitmap. Misaligned files are
// extended to the next chunk, keys without a value slot are dropped and the
// index is rebuilt from the present keys and consolidated.
func (s *Store[K, V]) Repair(ls unit.LockState) error {
	if err := s.presence.Repair(ls); err != nil {
		return err
	}

	for _, r := range []struct {
		region *mmap.Region
		slot   int
	}{
		{s.valRegion, mmap.SizeOf[V]()},
		{s.idxRegion, mmap.SizeOf[K]()},
	} {
		if err := s.realign(r.region, ChunkSlots*r.slot, ls); err != nil {
			return err
		}
	}
	s.views()
	s.SetHibernated(false)

	var orphans []uint64
	s.presence.ForEach(func(k uint64) bool {
		if k >= uint64(len(s.values)) || uint64(K(k)) != k {
			orphans = append(orphans, k)
		}
		return true
	})
	for _, k := range orphans {
		if _, err := s.presence.Unset(k, ls); err != nil {
			return err
		}
	}

	n := s.presence.Records()
	if n > uint64(len(s.index)) {
		size, err := s.indexBytes(n)
		if err != nil {
			return err
		}
		if err := s.Resize(s.idxRegion, size, ls); err != nil {
			s.views()
			return err
		}
		s.views()
	}
	var i uint64
	s.presence.ForEach(func(k uint64) bool {
		s.index[i] = K(k)
		i++
		return true
	})

	if err := s.inserted.Truncate(ls); err != nil {
		return err
	}
	s.committed, s.pendingInserts, s.pendingDeletes = 0, n, 0
	s.ClearCrashed()
	s.MarkLoaded()
	if err := s.Consolidate(ls); err != nil {
		return err
	}
	return s.Check()
}

// realign remaps r and extends it to a multiple of chunk bytes.
func (s *Store[K, V]) realign(r *mmap.Region, chunk int, ls unit.LockState) error {
	if err := s.Unmap(r, ls); err != nil {
		return err
	}
	if err := s.Map(r, ls); err != nil {
		return err
	}
	if n := r.Len(); n%chunk != 0 {
		return s.Resize(r, (n/chunk+1)*chunk, ls)
	}
	return nil
}

// CheckAndRepair runs Check and repairs the store if it fails or the store
// is crashed. It reports whether a repair happened.
func (s *Store[K, V]) CheckAndRepair(ls unit.LockState) (bool, error) {
	if s.Check() == nil {
		return false, nil
	}
	return true, s.Repair(ls)
}
