package scalar

import (
	"github.com/hupe1980/bmapdb/internal/bitmap"
	"github.com/hupe1980/bmapdb/internal/unit"
)

// FilterFrom copies into s the entries of src whose key is set in filter and
// returns the number of copied entries. Existing entries of s are
// overwritten.
func (s *Store[K, V]) FilterFrom(src *Store[K, V], filter *bitmap.Store, ls unit.LockState) (uint64, error) {
	if err := s.Usable(); err != nil {
		return 0, err
	}
	if err := src.Usable(); err != nil {
		return 0, err
	}
	if err := filter.Usable(); err != nil {
		return 0, err
	}

	var (
		n   uint64
		err error
	)
	filter.ForEach(func(k uint64) bool {
		if !src.presence.Test(k) {
			return true
		}
		if err = s.Put(K(k), src.values[k], ls); err != nil {
			return false
		}
		n++
		return true
	})
	return n, err
}

// MatchValues sets in dst every key of s whose value is one of values and
// returns the number of matching keys.
func (s *Store[K, V]) MatchValues(dst *bitmap.Store, ls unit.LockState, values ...V) (uint64, error) {
	if err := s.Usable(); err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, nil
	}
	want := make(map[V]struct{}, len(values))
	for _, v := range values {
		want[v] = struct{}{}
	}

	var (
		n   uint64
		err error
	)
	s.presence.ForEach(func(k uint64) bool {
		if _, ok := want[s.values[k]]; !ok {
			return true
		}
		if _, err = dst.Set(k, ls); err != nil {
			return false
		}
		n++
		return true
	})
	return n, err
}
