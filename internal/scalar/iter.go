package scalar

import (
	"github.com/hupe1980/bmapdb/internal/bitmap"
	"github.com/hupe1980/bmapdb/internal/unit"
)

// AscendKeys calls fn for every entry in ascending key order until fn
// returns false. It does not need a consolidated index.
func (s *Store[K, V]) AscendKeys(fn func(key K, value V) bool) error {
	if err := s.Usable(); err != nil {
		return err
	}
	for k := s.presence.First(); k != bitmap.NotFound; k = s.presence.Next(k) {
		if !fn(K(k), s.values[k]) {
			break
		}
	}
	return nil
}

// DescendKeys calls fn for every entry in descending key order until fn
// returns false.
func (s *Store[K, V]) DescendKeys(fn func(key K, value V) bool) error {
	if err := s.Usable(); err != nil {
		return err
	}
	for k := s.presence.Last(); k != bitmap.NotFound; k = s.presence.Prev(k) {
		if !fn(K(k), s.values[k]) {
			break
		}
	}
	return nil
}

// AscendValues consolidates and calls fn for every entry in ascending
// (value, key) order until fn returns false.
func (s *Store[K, V]) AscendValues(ls unit.LockState, fn func(key K, value V) bool) error {
	return s.AscendRange(Unbounded[V](), Unbounded[V](), ls, fn)
}

// DescendValues consolidates and calls fn for every entry in descending
// (value, key) order until fn returns false.
func (s *Store[K, V]) DescendValues(ls unit.LockState, fn func(key K, value V) bool) error {
	return s.DescendRange(Unbounded[V](), Unbounded[V](), ls, fn)
}

// AscendRange consolidates and calls fn in ascending order for the entries
// whose value lies between lower and upper.
func (s *Store[K, V]) AscendRange(lower, upper Bound[V], ls unit.LockState, fn func(key K, value V) bool) error {
	if err := s.Consolidate(ls); err != nil {
		return err
	}
	lo, hi := s.span(lower, upper)
	for pos := lo; pos < hi; pos++ {
		if !fn(s.At(pos)) {
			break
		}
	}
	return nil
}

// DescendRange consolidates and calls fn in descending order for the
// entries whose value lies between lower and upper.
func (s *Store[K, V]) DescendRange(lower, upper Bound[V], ls unit.LockState, fn func(key K, value V) bool) error {
	if err := s.Consolidate(ls); err != nil {
		return err
	}
	lo, hi := s.span(lower, upper)
	for pos := hi; pos > lo; pos-- {
		if !fn(s.At(pos - 1)) {
			break
		}
	}
	return nil
}
