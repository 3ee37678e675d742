package scalar

import (
	"fmt"

	"github.com/hupe1980/bmapdb/internal/bitmap"
	"github.com/hupe1980/bmapdb/internal/mmap"
	"github.com/hupe1980/bmapdb/internal/unit"
)

// Consolidate restores the sorted index: it sorts the insert tail, purges
// stale committed entries and merges both runs. It is a no-op on a clean
// store.
//
// The merge buffer is allocated before anything is touched. If that
// allocation fails the store is marked crashed with the index unchanged.
func (s *Store[K, V]) Consolidate(ls unit.LockState) error {
	if err := s.Usable(); err != nil {
		return err
	}
	if s.State() == Clean {
		return nil
	}

	var scratch *mmap.Scratch
	if s.committed > 0 && s.pendingInserts > 0 {
		var err error
		scratch, err = mmap.NewScratch(int(s.committed+s.pendingInserts) * mmap.SizeOf[K]())
		if err != nil {
			s.MarkCrashed(fmt.Errorf("consolidate: %w", err))
			return s.Usable()
		}
		defer func() { _ = scratch.Free() }()
	}

	tailStart := s.committed
	s.sortTail()
	if s.pendingDeletes > 0 {
		s.purge()
	}
	s.merge(tailStart, scratch)

	if err := s.inserted.Truncate(ls); err != nil {
		s.MarkCrashed(err)
		return s.Usable()
	}
	s.pendingInserts, s.pendingDeletes = 0, 0
	s.updateBounds()
	s.MarkDirty()
	return s.shrink(ls)
}

func (s *Store[K, V]) sortTail() {
	if s.pendingInserts < 2 {
		return
	}
	sortByValue(s.index[s.committed:s.committed+s.pendingInserts], s.values)
}

// purge compacts the committed prefix, keeping keys that are present and not
// waiting in the insert tail.
func (s *Store[K, V]) purge() {
	var n uint64
	for i := uint64(0); i < s.committed; i++ {
		k := uint64(s.index[i])
		if s.presence.Test(k) && !s.inserted.Test(k) {
			s.index[n] = s.index[i]
			n++
		}
	}
	s.committed = n
}

// merge folds the sorted tail starting at tailStart into the committed
// prefix. Tail keys that were removed after their insert are skipped.
func (s *Store[K, V]) merge(tailStart uint64, scratch *mmap.Scratch) {
	tail := s.index[tailStart : tailStart+s.pendingInserts]

	if s.committed == 0 {
		var n uint64
		for _, k := range tail {
			if s.presence.Test(uint64(k)) {
				s.index[n] = k
				n++
			}
		}
		s.committed = n
		return
	}
	if len(tail) == 0 {
		return
	}

	out := mmap.View[K](scratch.Bytes())
	head := s.index[:s.committed]
	var i, j, n int
	for i < len(head) && j < len(tail) {
		if !s.presence.Test(uint64(tail[j])) {
			j++
			continue
		}
		if s.less(tail[j], head[i]) {
			out[n] = tail[j]
			j++
		} else {
			out[n] = head[i]
			i++
		}
		n++
	}
	n += copy(out[n:], head[i:])
	for ; j < len(tail); j++ {
		if s.presence.Test(uint64(tail[j])) {
			out[n] = tail[j]
			n++
		}
	}

	copy(s.index, out[:n])
	s.committed = uint64(n)
}

// shrink releases whole chunks no longer needed by the index or the values.
func (s *Store[K, V]) shrink(ls unit.LockState) error {
	size, err := s.indexBytes(s.committed)
	if err != nil {
		return err
	}
	if size < s.idxRegion.Len() {
		if err := s.resize(s.idxRegion, size, ls); err != nil {
			return err
		}
	}
	var need uint64
	if last := s.presence.Last(); last != bitmap.NotFound {
		need = last + 1
	}
	if size, err = s.valueBytes(need); err != nil {
		return err
	}
	if size < s.valRegion.Len() {
		return s.resize(s.valRegion, size, ls)
	}
	return nil
}
