package engine

import (
	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/hupe1980/bmapdb/internal/bitmap"
	"github.com/hupe1980/bmapdb/internal/unit"
)

// NotFound is returned by Next, Prev, First and Last when there is no key.
const NotFound = bitmap.NotFound

// MaxKey is the highest key a table accepts.
const MaxKey = bitmap.MaxKey

// KeyBound is one end of a key range.
type KeyBound = bitmap.KeyBound

// BitmapTable is a handle to a set of uint64 keys.
type BitmapTable struct {
	table
}

var _ Table = (*BitmapTable)(nil)

// OpenBitmap opens the bitmap table name, creating it if it does not exist.
func (e *Engine) OpenBitmap(name string) (*BitmapTable, error) {
	sh, err := e.acquire(name, KindBitmap, 0, true)
	if err != nil {
		return nil, err
	}
	return &BitmapTable{table: table{e: e, sh: sh}}, nil
}

func (t *BitmapTable) store() *bitmap.Store { return t.sh.bitmap().Store }

// Set adds key and reports whether it was absent.
func (t *BitmapTable) Set(key uint64) (bool, error) {
	var added bool
	err := t.do(func(tableStore) error {
		var err error
		added, err = t.store().Set(key, unit.EngineUnlocked)
		return err
	})
	return added, keyError(err)
}

// Unset removes key and reports whether it was present.
func (t *BitmapTable) Unset(key uint64) (bool, error) {
	var removed bool
	err := t.do(func(tableStore) error {
		var err error
		removed, err = t.store().Unset(key, unit.EngineUnlocked)
		return err
	})
	return removed, err
}

// Test reports whether key is set.
func (t *BitmapTable) Test(key uint64) (bool, error) {
	var ok bool
	err := t.read(func(tableStore) error {
		ok = t.store().Test(key)
		return nil
	})
	return ok, err
}

// Next returns the smallest key greater than from. NotFound as from starts
// at the beginning.
func (t *BitmapTable) Next(from uint64) (uint64, error) {
	key := NotFound
	err := t.read(func(tableStore) error {
		key = t.store().Next(from)
		return nil
	})
	return key, err
}

// Prev returns the largest key smaller than from. NotFound as from starts
// at the end.
func (t *BitmapTable) Prev(from uint64) (uint64, error) {
	key := NotFound
	err := t.read(func(tableStore) error {
		key = t.store().Prev(from)
		return nil
	})
	return key, err
}

// First returns the smallest key.
func (t *BitmapTable) First() (uint64, error) { return t.Next(NotFound) }

// Last returns the largest key.
func (t *BitmapTable) Last() (uint64, error) {
	key := NotFound
	err := t.read(func(tableStore) error {
		key = t.store().Last()
		return nil
	})
	return key, err
}

// CountRange returns the exact number of keys in [lo, hi].
func (t *BitmapTable) CountRange(lo, hi uint64) (uint64, error) {
	var n uint64
	err := t.read(func(tableStore) error {
		n = t.store().CountRange(lo, hi)
		return nil
	})
	return n, err
}

// EstimateRange estimates the number of keys between lower and upper from
// the average key density.
func (t *BitmapTable) EstimateRange(lower, upper KeyBound) (uint64, error) {
	var n uint64
	err := t.read(func(tableStore) error {
		n = t.store().EstimateRange(lower, upper)
		return nil
	})
	return n, err
}

// ForEach calls fn for every key in ascending order until fn returns false.
// The table is locked for the whole iteration, so fn must not use it.
func (t *BitmapTable) ForEach(fn func(key uint64) bool) error {
	return t.read(func(tableStore) error {
		t.store().ForEach(fn)
		return nil
	})
}

// ToRoaring returns a compressed copy of the keys.
func (t *BitmapTable) ToRoaring() (*roaring64.Bitmap, error) {
	var rb *roaring64.Bitmap
	err := t.read(func(tableStore) error {
		rb = t.store().ToRoaring()
		return nil
	})
	return rb, err
}

// AddRoaring sets every key of rb.
func (t *BitmapTable) AddRoaring(rb *roaring64.Bitmap) error {
	return keyError(t.do(func(tableStore) error {
		return t.store().AddRoaring(rb, unit.EngineUnlocked)
	}))
}
