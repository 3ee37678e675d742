package engine

import (
	"encoding/binary"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/hupe1980/bmapdb/internal/bitmap"
	"github.com/hupe1980/bmapdb/internal/conv"
	"github.com/hupe1980/bmapdb/internal/fs"
	"github.com/hupe1980/bmapdb/internal/scalar"
	"github.com/hupe1980/bmapdb/internal/unit"
)

// Entry is a key with its value.
type Entry struct {
	Key   uint64
	Value any
}

// Bound is one end of a value range. Value must be convertible to the
// table's value type.
type Bound struct {
	Value     any
	Exclusive bool
	Unbounded bool
}

// Inclusive returns a bound that includes v.
func Inclusive(v any) Bound { return Bound{Value: v} }

// Exclusive returns a bound that excludes v.
func Exclusive(v any) Bound { return Bound{Value: v, Exclusive: true} }

// Unbounded returns an open range end.
func Unbounded() Bound { return Bound{Unbounded: true} }

// scalarStore is the type-erased view of a scalar.Store[K, V]. Keys are
// uint64 and values are the table's exact value type boxed in an any.
type scalarStore interface {
	tableStore

	put(key uint64, v any, ls unit.LockState) error
	get(key uint64) (any, bool, error)
	remove(key uint64, ls unit.LockState) (bool, error)
	consolidate(ls unit.LockState) error
	firstAtOrAfter(v any, ls unit.LockState) (Entry, bool, bool, error)
	lastAtOrBefore(v any, ls unit.LockState) (Entry, bool, bool, error)
	rangeCount(lower, upper Bound, ls unit.LockState) (uint64, error)
	ascendKeys(fn func(key uint64, v any) bool) error
	descendKeys(fn func(key uint64, v any) bool) error
	ascendRange(lower, upper Bound, ls unit.LockState, fn func(key uint64, v any) bool) error
	descendRange(lower, upper Bound, ls unit.LockState, fn func(key uint64, v any) bool) error
	minMax() (lo, hi any, ok bool)
	stats() scalar.Stats
	presence() *bitmap.Store
	filterFrom(src scalarStore, filter *bitmap.Store, ls unit.LockState) (uint64, error)
	matchValues(dst *bitmap.Store, ls unit.LockState, values []any) (uint64, error)
	encodeValues() ([]byte, error)
	putValues(keys *roaring64.Bitmap, data []byte, ls unit.LockState) error
}

// openScalar dispatches on the index width, then on the value type.
func openScalar(code TypeCode, fsys fs.FileSystem, name, base string, acct unit.Accountant, ls unit.LockState) (scalarStore, error) {
	vt, err := code.ValueType()
	if err != nil {
		return nil, err
	}
	switch code.IndexWidth() {
	case 1:
		return openWithKey[uint8](vt, fsys, name, base, acct, ls)
	case 2:
		return openWithKey[uint16](vt, fsys, name, base, acct, ls)
	case 4:
		return openWithKey[uint32](vt, fsys, name, base, acct, ls)
	default:
		return openWithKey[uint64](vt, fsys, name, base, acct, ls)
	}
}

func openWithKey[K scalar.Key](vt ValueType, fsys fs.FileSystem, name, base string, acct unit.Accountant, ls unit.LockState) (scalarStore, error) {
	switch vt {
	case Int8:
		return openTyped[K, int8](fsys, name, base, acct, ls)
	case Int16:
		return openTyped[K, int16](fsys, name, base, acct, ls)
	case Int32:
		return openTyped[K, int32](fsys, name, base, acct, ls)
	case Int64:
		return openTyped[K, int64](fsys, name, base, acct, ls)
	case Uint8:
		return openTyped[K, uint8](fsys, name, base, acct, ls)
	case Uint16:
		return openTyped[K, uint16](fsys, name, base, acct, ls)
	case Uint32:
		return openTyped[K, uint32](fsys, name, base, acct, ls)
	case Uint64:
		return openTyped[K, uint64](fsys, name, base, acct, ls)
	case Float32:
		return openTyped[K, float32](fsys, name, base, acct, ls)
	default:
		return openTyped[K, float64](fsys, name, base, acct, ls)
	}
}

func openTyped[K scalar.Key, V scalar.Value](fsys fs.FileSystem, name, base string, acct unit.Accountant, ls unit.LockState) (scalarStore, error) {
	s, err := scalar.Open[K, V](fsys, name, base, acct, ls)
	if err != nil {
		return nil, err
	}
	return &typedScalar[K, V]{Store: s}, nil
}

type typedScalar[K scalar.Key, V scalar.Value] struct {
	*scalar.Store[K, V]
}

func toKey[K scalar.Key](key uint64) (K, error) {
	k := K(key)
	if uint64(k) != key {
		return 0, fmt.Errorf("%w: key %d exceeds the index width", ErrInvalidArgument, key)
	}
	return k, nil
}

// toValue converts x to V. Besides V itself it accepts int, int64, uint64
// and float64 when the conversion is exact.
func toValue[V scalar.Value](x any) (V, error) {
	if v, ok := x.(V); ok {
		return v, nil
	}
	var v V
	exact := false
	switch n := x.(type) {
	case int:
		v = V(n)
		exact = int64(v) == int64(n) && (n < 0) == (v < 0)
	case int64:
		v = V(n)
		exact = int64(v) == n && (n < 0) == (v < 0)
	case uint64:
		v = V(n)
		exact = uint64(v) == n && !(v < 0)
	case float64:
		v = V(n)
		exact = float64(v) == n || (n != n && v != v)
	}
	if !exact {
		return v, fmt.Errorf("%w: %T(%v) is not a %T", ErrTypeMismatch, x, x, v)
	}
	return v, nil
}

func toBound[V scalar.Value](b Bound) (scalar.Bound[V], error) {
	if b.Unbounded {
		return scalar.Unbounded[V](), nil
	}
	v, err := toValue[V](b.Value)
	if err != nil {
		return scalar.Bound[V]{}, err
	}
	return scalar.Bound[V]{Value: v, Exclusive: b.Exclusive}, nil
}

func (t *typedScalar[K, V]) put(key uint64, x any, ls unit.LockState) error {
	k, err := toKey[K](key)
	if err != nil {
		return err
	}
	v, err := toValue[V](x)
	if err != nil {
		return err
	}
	return t.Put(k, v, ls)
}

func (t *typedScalar[K, V]) get(key uint64) (any, bool, error) {
	k, err := toKey[K](key)
	if err != nil {
		return nil, false, nil
	}
	v, ok, err := t.Get(k)
	if err != nil || !ok {
		return nil, false, err
	}
	return v, true, nil
}

func (t *typedScalar[K, V]) remove(key uint64, ls unit.LockState) (bool, error) {
	k, err := toKey[K](key)
	if err != nil {
		return false, nil
	}
	return t.Remove(k, ls)
}

func (t *typedScalar[K, V]) consolidate(ls unit.LockState) error { return t.Consolidate(ls) }

func (t *typedScalar[K, V]) entryAt(pos uint64) Entry {
	k, v := t.At(pos)
	return Entry{Key: uint64(k), Value: v}
}

func (t *typedScalar[K, V]) firstAtOrAfter(x any, ls unit.LockState) (Entry, bool, bool, error) {
	v, err := toValue[V](x)
	if err != nil {
		return Entry{}, false, false, err
	}
	pos, exact, err := t.FirstAtOrAfter(v, ls)
	if err != nil || pos == scalar.NotFound {
		return Entry{}, false, false, err
	}
	return t.entryAt(pos), true, exact, nil
}

func (t *typedScalar[K, V]) lastAtOrBefore(x any, ls unit.LockState) (Entry, bool, bool, error) {
	v, err := toValue[V](x)
	if err != nil {
		return Entry{}, false, false, err
	}
	pos, exact, err := t.LastAtOrBefore(v, ls)
	if err != nil || pos == scalar.NotFound {
		return Entry{}, false, false, err
	}
	return t.entryAt(pos), true, exact, nil
}

func (t *typedScalar[K, V]) bounds(lower, upper Bound) (scalar.Bound[V], scalar.Bound[V], error) {
	lo, err := toBound[V](lower)
	if err != nil {
		return lo, lo, err
	}
	hi, err := toBound[V](upper)
	return lo, hi, err
}

func (t *typedScalar[K, V]) rangeCount(lower, upper Bound, ls unit.LockState) (uint64, error) {
	lo, hi, err := t.bounds(lower, upper)
	if err != nil {
		return 0, err
	}
	return t.RangeCount(lo, hi, ls)
}

func erase[K scalar.Key, V scalar.Value](fn func(uint64, any) bool) func(K, V) bool {
	return func(k K, v V) bool { return fn(uint64(k), v) }
}

func (t *typedScalar[K, V]) ascendKeys(fn func(uint64, any) bool) error {
	return t.AscendKeys(erase[K, V](fn))
}

func (t *typedScalar[K, V]) descendKeys(fn func(uint64, any) bool) error {
	return t.DescendKeys(erase[K, V](fn))
}

func (t *typedScalar[K, V]) ascendRange(lower, upper Bound, ls unit.LockState, fn func(uint64, any) bool) error {
	lo, hi, err := t.bounds(lower, upper)
	if err != nil {
		return err
	}
	return t.AscendRange(lo, hi, ls, erase[K, V](fn))
}

func (t *typedScalar[K, V]) descendRange(lower, upper Bound, ls unit.LockState, fn func(uint64, any) bool) error {
	lo, hi, err := t.bounds(lower, upper)
	if err != nil {
		return err
	}
	return t.DescendRange(lo, hi, ls, erase[K, V](fn))
}

func (t *typedScalar[K, V]) minMax() (any, any, bool) {
	lo, ok := t.MinValue()
	if !ok {
		return nil, nil, false
	}
	hi, _ := t.MaxValue()
	return lo, hi, true
}

func (t *typedScalar[K, V]) stats() scalar.Stats { return t.Stats() }

func (t *typedScalar[K, V]) presence() *bitmap.Store { return t.Presence() }

func (t *typedScalar[K, V]) filterFrom(src scalarStore, filter *bitmap.Store, ls unit.LockState) (uint64, error) {
	other, ok := src.(*typedScalar[K, V])
	if !ok {
		return 0, fmt.Errorf("%w: filter source has a different type code", ErrTypeMismatch)
	}
	return t.FilterFrom(other.Store, filter, ls)
}

func (t *typedScalar[K, V]) matchValues(dst *bitmap.Store, ls unit.LockState, values []any) (uint64, error) {
	vals := make([]V, 0, len(values))
	for _, x := range values {
		v, err := toValue[V](x)
		if err != nil {
			return 0, err
		}
		vals = append(vals, v)
	}
	return t.MatchValues(dst, ls, vals...)
}

// encodeValues returns the value of every present key in ascending key
// order, little endian.
func (t *typedScalar[K, V]) encodeValues() ([]byte, error) {
	var zero V
	size, err := conv.Bytes(t.Records(), uint64(binary.Size(zero))) //nolint:gosec // value sizes are at most 8
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, size)
	var aerr error
	err = t.AscendKeys(func(_ K, v V) bool {
		buf, aerr = binary.Append(buf, binary.LittleEndian, v)
		return aerr == nil
	})
	if err != nil {
		return nil, err
	}
	return buf, aerr
}

// putValues puts one value of data per key of keys, in ascending key order.
func (t *typedScalar[K, V]) putValues(keys *roaring64.Bitmap, data []byte, ls unit.LockState) error {
	var v V
	width := binary.Size(v)
	if want, err := conv.Bytes(keys.GetCardinality(), uint64(width)); err != nil || want != len(data) { //nolint:gosec // value sizes are at most 8
		return fmt.Errorf("%w: %d value bytes for %d keys", ErrInvalidArgument, len(data), keys.GetCardinality())
	}
	it := keys.Iterator()
	for off := 0; it.HasNext(); off += width {
		key := it.Next()
		k, err := toKey[K](key)
		if err != nil {
			return err
		}
		if _, err := binary.Decode(data[off:off+width], binary.LittleEndian, &v); err != nil {
			return err
		}
		if err := t.Put(k, v, ls); err != nil {
			return err
		}
	}
	return nil
}
