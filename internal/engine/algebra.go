package engine

import (
	"github.com/hupe1980/bmapdb/internal/bitmap"
	"github.com/hupe1980/bmapdb/internal/unit"
)

// Intersect replaces the content of dst with the keys set in every src. dst
// may also be one of srcs.
func (e *Engine) Intersect(dst *BitmapTable, srcs ...*BitmapTable) error {
	return e.combine(dst, srcs, (*bitmap.Store).IntersectOf)
}

// Union replaces the content of dst with the keys set in any src. dst may
// also be one of srcs.
func (e *Engine) Union(dst *BitmapTable, srcs ...*BitmapTable) error {
	return e.combine(dst, srcs, (*bitmap.Store).UnionOf)
}

func (e *Engine) combine(dst *BitmapTable, srcs []*BitmapTable,
	op func(*bitmap.Store, unit.LockState, ...*bitmap.Store) error) error {
	shares := make([]*share, 0, len(srcs)+1)
	shares = append(shares, dst.sh)
	for _, src := range srcs {
		if src.isClosed() {
			return ErrClosed
		}
		shares = append(shares, src.sh)
	}
	if dst.isClosed() {
		return ErrClosed
	}

	unlock, err := e.lockShares(shares...)
	if err != nil {
		return err
	}
	defer unlock()

	stores := make([]*bitmap.Store, len(srcs))
	for i, src := range srcs {
		stores[i] = src.store()
	}
	return op(dst.store(), unit.EngineUnlocked, stores...)
}
