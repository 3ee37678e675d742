package engine

import (
	"fmt"
	"time"

	"github.com/hupe1980/bmapdb/internal/unit"
)

// ScalarTable is a handle to a table of (key, value) pairs ordered by value.
// Values are passed as any and must hold the table's value type; see
// TypeCode.ValueType. int, int64, uint64 and float64 are also accepted when
// they convert exactly.
type ScalarTable struct {
	table
}

var _ Table = (*ScalarTable)(nil)

// OpenScalar opens the scalar table name, creating it with code if it does
// not exist. An existing table must have the same type code.
func (e *Engine) OpenScalar(name string, code TypeCode) (*ScalarTable, error) {
	if err := code.Validate(); err != nil {
		return nil, err
	}
	sh, err := e.acquire(name, KindScalar, code, true)
	if err != nil {
		return nil, err
	}
	return &ScalarTable{table: table{e: e, sh: sh}}, nil
}

// Open opens an existing table of either kind.
func (e *Engine) Open(name string) (Table, error) {
	sh, err := e.acquire(name, 0, 0, false)
	if err != nil {
		return nil, err
	}
	if sh.kind == KindScalar {
		return &ScalarTable{table: table{e: e, sh: sh}}, nil
	}
	return &BitmapTable{table: table{e: e, sh: sh}}, nil
}

func (t *ScalarTable) store() scalarStore { return t.sh.scalar() }

// Put stores value for key.
func (t *ScalarTable) Put(key uint64, value any) error {
	return keyError(t.do(func(tableStore) error {
		return t.store().put(key, value, unit.EngineUnlocked)
	}))
}

// Get returns the value of key.
func (t *ScalarTable) Get(key uint64) (any, bool, error) {
	var (
		v  any
		ok bool
	)
	err := t.read(func(tableStore) error {
		var err error
		v, ok, err = t.store().get(key)
		return err
	})
	return v, ok, err
}

// Remove deletes key and reports whether it was present.
func (t *ScalarTable) Remove(key uint64) (bool, error) {
	var removed bool
	err := t.do(func(tableStore) error {
		var err error
		removed, err = t.store().remove(key, unit.EngineUnlocked)
		return err
	})
	return removed, err
}

// Consolidate sorts pending inserts into the index and purges removed keys.
// Ordered operations consolidate on demand; calling it explicitly moves the
// cost out of the read path.
func (t *ScalarTable) Consolidate() error {
	return t.do(func(tableStore) error {
		start := time.Now()
		err := t.store().consolidate(unit.EngineUnlocked)
		records := t.sh.store.Records()
		t.e.metrics.OnConsolidate(t.sh.name, time.Since(start), records, err)
		if err != nil {
			t.e.logger.Error("consolidate failed", "table", t.sh.name, "error", err)
			return err
		}
		t.e.logger.Debug("table consolidated", "table", t.sh.name,
			"records", records, "duration", time.Since(start))
		return nil
	})
}

// FirstAtOrAfter returns the first entry in value order whose value is not
// less than v. exact reports whether its value equals v.
func (t *ScalarTable) FirstAtOrAfter(v any) (e Entry, found, exact bool, err error) {
	err = t.do(func(tableStore) error {
		var err error
		e, found, exact, err = t.store().firstAtOrAfter(v, unit.EngineUnlocked)
		return err
	})
	return e, found, exact, err
}

// LastAtOrBefore returns the last entry in value order whose value is not
// greater than v.
func (t *ScalarTable) LastAtOrBefore(v any) (e Entry, found, exact bool, err error) {
	err = t.do(func(tableStore) error {
		var err error
		e, found, exact, err = t.store().lastAtOrBefore(v, unit.EngineUnlocked)
		return err
	})
	return e, found, exact, err
}

// RangeCount returns the exact number of entries with a value between lower
// and upper.
func (t *ScalarTable) RangeCount(lower, upper Bound) (uint64, error) {
	var n uint64
	err := t.do(func(tableStore) error {
		var err error
		n, err = t.store().rangeCount(lower, upper, unit.EngineUnlocked)
		return err
	})
	return n, err
}

// MinMax returns the smallest and largest value.
func (t *ScalarTable) MinMax() (lo, hi any, ok bool, err error) {
	err = t.do(func(tableStore) error {
		if err := t.store().consolidate(unit.EngineUnlocked); err != nil {
			return err
		}
		lo, hi, ok = t.store().minMax()
		return nil
	})
	return lo, hi, ok, err
}

// AscendKeys calls fn for every entry in ascending key order until fn
// returns false. The table is locked for the whole iteration, so fn must
// not use it.
func (t *ScalarTable) AscendKeys(fn func(key uint64, value any) bool) error {
	return t.read(func(tableStore) error { return t.store().ascendKeys(fn) })
}

// DescendKeys is AscendKeys in descending key order.
func (t *ScalarTable) DescendKeys(fn func(key uint64, value any) bool) error {
	return t.read(func(tableStore) error { return t.store().descendKeys(fn) })
}

// AscendRange calls fn for every entry with a value between lower and upper,
// in ascending (value, key) order.
func (t *ScalarTable) AscendRange(lower, upper Bound, fn func(key uint64, value any) bool) error {
	return t.do(func(tableStore) error {
		return t.store().ascendRange(lower, upper, unit.EngineUnlocked, fn)
	})
}

// DescendRange is AscendRange in descending order.
func (t *ScalarTable) DescendRange(lower, upper Bound, fn func(key uint64, value any) bool) error {
	return t.do(func(tableStore) error {
		return t.store().descendRange(lower, upper, unit.EngineUnlocked, fn)
	})
}

// AscendValues iterates every entry in ascending value order.
func (t *ScalarTable) AscendValues(fn func(key uint64, value any) bool) error {
	return t.AscendRange(Unbounded(), Unbounded(), fn)
}

// DescendValues iterates every entry in descending value order.
func (t *ScalarTable) DescendValues(fn func(key uint64, value any) bool) error {
	return t.DescendRange(Unbounded(), Unbounded(), fn)
}

// FilterFrom copies into t the entries of src whose key is set in filter
// and returns the number copied. Existing entries of t are overwritten. src
// must have the same type code.
func (t *ScalarTable) FilterFrom(src *ScalarTable, filter *BitmapTable) (uint64, error) {
	if src.sh.code != t.sh.code {
		return 0, fmt.Errorf("%w: %s has type code %d, %s has %d",
			ErrTypeMismatch, src.sh.name, src.sh.code, t.sh.name, t.sh.code)
	}
	if t.isClosed() || src.isClosed() || filter.isClosed() {
		return 0, ErrClosed
	}
	unlock, err := t.e.lockShares(t.sh, src.sh, filter.sh)
	if err != nil {
		return 0, err
	}
	defer unlock()
	return t.store().filterFrom(src.store(), filter.store(), unit.EngineUnlocked)
}

// MatchValues sets in dst every key of t whose value is one of values and
// returns the number of keys set. dst is not cleared first.
func (t *ScalarTable) MatchValues(dst *BitmapTable, values ...any) (uint64, error) {
	if t.isClosed() || dst.isClosed() {
		return 0, ErrClosed
	}
	unlock, err := t.e.lockShares(t.sh, dst.sh)
	if err != nil {
		return 0, err
	}
	defer unlock()
	return t.store().matchValues(dst.store(), unit.EngineUnlocked, values)
}
