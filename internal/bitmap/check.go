package bitmap

import (
	"fmt"
	"math/bits"

	"github.com/hupe1980/bmapdb/internal/mmap"
	"github.com/hupe1980/bmapdb/internal/unit"
)

// Check verifies the chunk alignment, record count and max value against the
// words.
func (s *Store) Check() error {
	if err := s.Usable(); err != nil {
		return err
	}
	if len(s.words)%ChunkWords != 0 {
		return fmt.Errorf("%w: %d words", ErrSizeMismatch, len(s.words))
	}
	var n uint64
	maxValue := NotFound
	for i, w := range s.words {
		if w != 0 {
			n += uint64(bits.OnesCount64(w))
			maxValue = uint64(i)<<wordShift + uint64(63-bits.LeadingZeros64(w))
		}
	}
	if n != s.Records() {
		return fmt.Errorf("%w: have %d, counted %d", ErrCountMismatch, s.Records(), n)
	}
	if maxValue != s.maxValue {
		return fmt.Errorf("%w: max value %d, highest set key %d", ErrCountMismatch, s.maxValue, maxValue)
	}
	return nil
}

// Repair brings the store back to a consistent state. A misaligned backing
// file is extended to the next chunk boundary, so no set key is lost, and
// the counts are recomputed.
func (s *Store) Repair(ls unit.LockState) error {
	if !s.region.Anonymous() {
		s.words = nil
		if err := s.Unmap(s.region, ls); err != nil {
			return err
		}
		if err := s.Map(s.region, ls); err != nil {
			return err
		}
		if n := s.region.Len(); n%ChunkBytes != 0 {
			if err := s.Resize(s.region, (n/ChunkBytes+1)*ChunkBytes, ls); err != nil {
				return err
			}
		}
	}
	s.words = mmap.View[uint64](s.region.Bytes())
	s.recount()
	s.ClearCrashed()
	s.SetHibernated(false)
	s.MarkLoaded()
	s.MarkDirty()
	return nil
}

// CheckAndRepair runs Check and repairs the store if it fails. It reports
// whether a repair happened.
func (s *Store) CheckAndRepair(ls unit.LockState) (bool, error) {
	if s.Check() == nil {
		return false, nil
	}
	return true, s.Repair(ls)
}
