package bitmap

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/hupe1980/bmapdb/internal/mmap"
	"github.com/hupe1980/bmapdb/internal/unit"
)

// ToRoaring returns a compressed copy of the set keys.
func (s *Store) ToRoaring() *roaring64.Bitmap {
	rb := roaring64.New()
	if s.maxValue == NotFound {
		return rb
	}
	_ = s.region.Advise(mmap.AccessSequential)
	defer func() { _ = s.region.Advise(mmap.AccessDefault) }()

	buf := make([]uint64, 0, 1024)
	s.ForEach(func(key uint64) bool {
		buf = append(buf, key)
		if len(buf) == cap(buf) {
			rb.AddMany(buf)
			buf = buf[:0]
		}
		return true
	})
	rb.AddMany(buf)
	rb.RunOptimize()
	return rb
}

// AddRoaring sets every key of rb. The word array is grown once, up front,
// and a bitmap holding a key above MaxKey is rejected as a whole.
func (s *Store) AddRoaring(rb *roaring64.Bitmap, ls unit.LockState) error {
	if err := s.Usable(); err != nil {
		return err
	}
	if rb.IsEmpty() {
		return nil
	}
	top := rb.Maximum()
	if top > MaxKey {
		return fmt.Errorf("%w: %d", ErrKeyTooLarge, top)
	}
	if top >= uint64(len(s.words))<<wordShift {
		if err := s.Reallocate(top, ls); err != nil {
			return err
		}
	}
	it := rb.Iterator()
	for it.HasNext() {
		if _, err := s.Set(it.Next(), ls); err != nil {
			return err
		}
	}
	return nil
}
