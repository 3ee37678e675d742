package bitmap

import (
	"math/bits"

	"github.com/hupe1980/bmapdb/internal/unit"
)

// UnionOf replaces the content of s with the union of srcs. s may be one of
// the operands.
func (s *Store) UnionOf(ls unit.LockState, srcs ...*Store) error {
	if err := s.Usable(); err != nil {
		return err
	}
	maxValue := NotFound
	for _, src := range srcs {
		if err := src.Usable(); err != nil {
			return err
		}
		if src.maxValue != NotFound && (maxValue == NotFound || src.maxValue > maxValue) {
			maxValue = src.maxValue
		}
	}
	if maxValue == NotFound {
		return s.replace(nil, NotFound, ls)
	}

	combined := make([]uint64, maxValue>>wordShift+1)
	for _, src := range srcs {
		n := min(len(combined), len(src.words))
		for i := 0; i < n; i++ {
			combined[i] |= src.words[i]
		}
	}
	return s.replace(combined, maxValue, ls)
}

// IntersectOf replaces the content of s with the intersection of srcs. The
// result only covers the domain of the shortest operand. With no operands the
// result is empty. s may be one of the operands.
func (s *Store) IntersectOf(ls unit.LockState, srcs ...*Store) error {
	if err := s.Usable(); err != nil {
		return err
	}
	if len(srcs) == 0 {
		return s.replace(nil, NotFound, ls)
	}
	n := len(srcs[0].words)
	for _, src := range srcs {
		if err := src.Usable(); err != nil {
			return err
		}
		n = min(n, len(src.words))
	}

	and := func(i int) uint64 {
		w := srcs[0].words[i]
		for _, src := range srcs[1:] {
			w &= src.words[i]
		}
		return w
	}

	top := n - 1
	for ; top >= 0; top-- {
		if and(top) != 0 {
			break
		}
	}
	if top < 0 {
		return s.replace(nil, NotFound, ls)
	}

	combined := make([]uint64, top+1)
	for i := range combined {
		combined[i] = and(i)
	}
	maxValue := uint64(top)<<wordShift + uint64(63-bits.LeadingZeros64(combined[top]))
	return s.replace(combined, maxValue, ls)
}

// replace swaps in a precomputed word array whose highest set key is maxValue.
func (s *Store) replace(words []uint64, maxValue uint64, ls unit.LockState) error {
	s.SetRecords(0)
	s.maxValue = NotFound
	s.MarkDirty()
	if err := s.Reallocate(maxValue, ls); err != nil {
		s.recount()
		return err
	}
	n := copy(s.words, words)
	clear(s.words[n:])

	var count uint64
	for _, w := range words {
		count += uint64(bits.OnesCount64(w))
	}
	s.SetRecords(count)
	s.maxValue = maxValue
	return nil
}

// CountRange returns the exact number of set keys in [lo, hi].
func (s *Store) CountRange(lo, hi uint64) uint64 {
	if s.maxValue == NotFound || lo > hi || lo > s.maxValue {
		return 0
	}
	hi = min(hi, s.maxValue)

	lw, hw := lo>>wordShift, hi>>wordShift
	loMask := ^uint64(0) << (lo & wordMask)
	hiMask := ^uint64(0) >> (wordMask - hi&wordMask)
	if lw == hw {
		return uint64(bits.OnesCount64(s.words[lw] & loMask & hiMask))
	}

	count := uint64(bits.OnesCount64(s.words[lw] & loMask))
	for w := lw + 1; w < hw; w++ {
		count += uint64(bits.OnesCount64(s.words[w]))
	}
	return count + uint64(bits.OnesCount64(s.words[hw]&hiMask))
}

// KeyBound is one end of a key range.
type KeyBound struct {
	Key       uint64
	Exclusive bool
	Unbounded bool
}

// EstimateRange estimates the number of keys between lower and upper from
// the average density of the store. It is O(1); use CountRange for an exact
// answer.
func (s *Store) EstimateRange(lower, upper KeyBound) uint64 {
	records := s.Records()
	if records == 0 || s.maxValue == NotFound {
		return 0
	}

	lo := uint64(0)
	if !lower.Unbounded {
		lo = lower.Key
		if lower.Exclusive {
			if lo == NotFound {
				return 0
			}
			lo++
		}
		if lo > s.maxValue {
			return 0
		}
	}

	hi := s.maxValue
	if !upper.Unbounded {
		hi = upper.Key
		if upper.Exclusive {
			if hi == 0 {
				return 0
			}
			hi--
		}
		hi = min(hi, s.maxValue)
	}
	if lo > hi {
		return 0
	}
	if s.maxValue == 0 {
		return records
	}

	density := float64(records) / float64(s.maxValue)
	return min(uint64(float64(hi-lo+1)*density), records)
}

// ForEach calls fn for every set key in ascending order until fn returns
// false.
func (s *Store) ForEach(fn func(key uint64) bool) {
	if s.maxValue == NotFound {
		return
	}
	last := int(s.maxValue >> wordShift)
	for i := 0; i <= last; i++ {
		w := s.words[i]
		base := uint64(i) << wordShift
		for w != 0 {
			if !fn(base + uint64(bits.TrailingZeros64(w))) {
				return
			}
			w &= w - 1
		}
	}
}
