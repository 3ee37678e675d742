package scalar

import (
	"errors"
	"math"

	"github.com/hupe1980/bmapdb/internal/bitmap"
)

// Key is the set of index widths a store supports.
type Key interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64
}

// Value is the set of value types a store supports.
type Value interface {
	~int8 | ~int16 | ~int32 | ~int64 |
		~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// ChunkSlots is the growth granularity of the value and index arrays.
const ChunkSlots = 16 * 1024

// NotFound is the position returned by searches that match nothing.
const NotFound uint64 = math.MaxUint64

var (
	// ErrSizeMismatch marks a value or index file whose length is not a
	// multiple of the chunk size.
	ErrSizeMismatch = errors.New("scalar: file size is not a multiple of the chunk size")
	// ErrIndexMismatch marks an index that disagrees with the presence bitmap
	// or the value array.
	ErrIndexMismatch = errors.New("scalar: index does not match presence")
	// ErrUnsorted is reported by Check for an index that is out of order.
	ErrUnsorted = errors.New("scalar: index out of order")
	// ErrKeyTooLarge is returned by Put for keys above bitmap.MaxKey.
	ErrKeyTooLarge = bitmap.ErrKeyTooLarge
)

// State is the consolidation state of a store.
type State uint8

const (
	// Clean means the index is fully sorted and matches presence.
	Clean State = iota
	// PendingInserts means keys wait in the unsorted tail.
	PendingInserts
	// PendingDeletes means committed entries may be stale.
	PendingDeletes
	// PendingBoth combines PendingInserts and PendingDeletes.
	PendingBoth
)

func (s State) String() string {
	switch s {
	case Clean:
		return "clean"
	case PendingInserts:
		return "pending-inserts"
	case PendingDeletes:
		return "pending-deletes"
	case PendingBoth:
		return "pending-both"
	default:
		return "unknown"
	}
}

// Bound is one end of a value range.
type Bound[V Value] struct {
	Value     V
	Exclusive bool
	Unbounded bool
}

// Inclusive returns a bound that includes v.
func Inclusive[V Value](v V) Bound[V] { return Bound[V]{Value: v} }

// Exclusive returns a bound that excludes v.
func Exclusive[V Value](v V) Bound[V] { return Bound[V]{Value: v, Exclusive: true} }

// Unbounded returns an open range end.
func Unbounded[V Value]() Bound[V] { return Bound[V]{Unbounded: true} }

// Stats describes the index state of a store.
type Stats struct {
	Records        uint64
	Committed      uint64
	PendingInserts uint64
	PendingDeletes uint64
	State          State
	ValueSlots     int
	IndexSlots     int
}
