package scalar

import (
	"cmp"

	"github.com/hupe1980/bmapdb/internal/unit"
)

// bsearch2 probes the committed index for v. On equality the search moves
// right for sign > 0 and left otherwise. It returns the last probed position,
// which is adjacent to the boundary but not necessarily on it; callers fix up
// with a short linear scan. The committed index must not be empty.
func (s *Store[K, V]) bsearch2(v V, sign int) uint64 {
	var base, mid uint64
	for n := s.committed; n > 0; {
		mid = base + n>>1
		c := cmp.Compare(v, s.valueAt(mid))
		if c == 0 {
			c = sign
		}
		if c > 0 {
			base = mid + 1
			n = (n - 1) >> 1
		} else {
			n >>= 1
		}
	}
	return mid
}

// firstAtOrAfter returns the position of the first committed entry whose
// value is >= v and whether that value equals v.
func (s *Store[K, V]) firstAtOrAfter(v V) (uint64, bool) {
	n := s.committed
	switch {
	case n == 0:
		return NotFound, false
	case cmp.Less(v, s.minValue):
		return 0, false
	case cmp.Less(s.maxValue, v):
		return NotFound, false
	}
	pos := s.bsearch2(v, -1)
	for pos < n && cmp.Less(s.valueAt(pos), v) {
		pos++
	}
	return pos, cmp.Compare(s.valueAt(pos), v) == 0
}

// lastAtOrBefore returns the position of the last committed entry whose
// value is <= v and whether that value equals v.
func (s *Store[K, V]) lastAtOrBefore(v V) (uint64, bool) {
	n := s.committed
	switch {
	case n == 0:
		return NotFound, false
	case cmp.Less(s.maxValue, v):
		return n - 1, false
	case cmp.Less(v, s.minValue):
		return NotFound, false
	}
	pos := s.bsearch2(v, 1)
	for pos > 0 && cmp.Less(v, s.valueAt(pos)) {
		pos--
	}
	return pos, cmp.Compare(s.valueAt(pos), v) == 0
}

// FirstAtOrAfter consolidates and returns the index position of the first
// entry with a value >= v, or NotFound. exact reports a value equal to v.
func (s *Store[K, V]) FirstAtOrAfter(v V, ls unit.LockState) (pos uint64, exact bool, err error) {
	if err := s.Consolidate(ls); err != nil {
		return NotFound, false, err
	}
	pos, exact = s.firstAtOrAfter(v)
	return pos, exact, nil
}

// LastAtOrBefore consolidates and returns the index position of the last
// entry with a value <= v, or NotFound. exact reports a value equal to v.
func (s *Store[K, V]) LastAtOrBefore(v V, ls unit.LockState) (pos uint64, exact bool, err error) {
	if err := s.Consolidate(ls); err != nil {
		return NotFound, false, err
	}
	pos, exact = s.lastAtOrBefore(v)
	return pos, exact, nil
}

// At returns the entry at index position pos. pos must be below Committed
// of a consolidated store.
func (s *Store[K, V]) At(pos uint64) (K, V) {
	k := s.index[pos]
	return k, s.values[k]
}

// span returns the half-open index positions [lo, hi) of the committed
// entries between lower and upper.
func (s *Store[K, V]) span(lower, upper Bound[V]) (lo, hi uint64) {
	n := s.committed
	if n == 0 {
		return 0, 0
	}

	switch {
	case lower.Unbounded:
		lo = 0
	case lower.Exclusive:
		p, _ := s.lastAtOrBefore(lower.Value)
		if p == NotFound {
			lo = 0
		} else {
			lo = p + 1
		}
	default:
		p, _ := s.firstAtOrAfter(lower.Value)
		if p == NotFound {
			return 0, 0
		}
		lo = p
	}

	switch {
	case upper.Unbounded:
		hi = n
	case upper.Exclusive:
		p, _ := s.firstAtOrAfter(upper.Value)
		if p == NotFound {
			hi = n
		} else {
			hi = p
		}
	default:
		p, _ := s.lastAtOrBefore(upper.Value)
		if p == NotFound {
			return 0, 0
		}
		hi = p + 1
	}

	if hi < lo {
		return 0, 0
	}
	return lo, hi
}

// RangeCount consolidates and returns the exact number of entries whose
// value lies between lower and upper.
func (s *Store[K, V]) RangeCount(lower, upper Bound[V], ls unit.LockState) (uint64, error) {
	if err := s.Consolidate(ls); err != nil {
		return 0, err
	}
	lo, hi := s.span(lower, upper)
	return hi - lo, nil
}
