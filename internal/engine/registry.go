package engine

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/hupe1980/bmapdb/internal/bitmap"
	"github.com/hupe1980/bmapdb/internal/unit"
)

// tableStore is what the registry needs from a bitmap or scalar store. All
// methods except Name, Lock, TryLock and Unlock require the unit lock.
type tableStore interface {
	Name() string
	Lock()
	TryLock() bool
	Unlock()
	MarkActive()

	ID() uint32
	SetID(id uint32)
	Hibernated() bool
	ELock() bool
	UnELock()
	ELocked() bool
	ELocks() int
	Accessed() time.Time
	Times() unit.Times
	Crashed() bool
	CrashReason() error
	Usable() error
	Dirty() bool
	Records() uint64
	MappedBytes() int64

	Hibernate(ls unit.LockState) error
	Wakeup(ls unit.LockState) error
	Sync(ls unit.LockState) error
	Truncate(ls unit.LockState) error
	Check() error
	Repair(ls unit.LockState) error
	CheckAndRepair(ls unit.LockState) (bool, error)
	Close(ls unit.LockState) error
	Drop(ls unit.LockState) error
}

// bitmapStore adapts bitmap.Store to tableStore.
type bitmapStore struct {
	*bitmap.Store
}

func (b bitmapStore) Sync(unit.LockState) error { return b.Store.Sync() }

func (b bitmapStore) Drop(ls unit.LockState) error { return b.Store.Remove(ls) }

// share is a registry entry: one live store per table name.
type share struct {
	name  string
	kind  Kind
	code  TypeCode
	store tableStore

	// refs is guarded by the engine lock.
	refs int
	// dead is set under both the unit lock and the engine lock once the
	// store was closed or dropped.
	dead bool
}

func (sh *share) scalar() scalarStore { return sh.store.(scalarStore) }

func (sh *share) bitmap() bitmapStore { return sh.store.(bitmapStore) }

// validateName rejects names that would escape the engine directory.
func validateName(name string) error {
	if name == "" || name == "." || strings.Contains(name, "..") ||
		strings.ContainsAny(name, `/\`) || name != filepath.Base(name) {
		return fmt.Errorf("%w: table name %q", ErrInvalidArgument, name)
	}
	return nil
}

func (e *Engine) path(name string) string { return filepath.Join(e.dir, name) }

// acquire returns the share for name with its reference count raised. A
// missing table is created when create is set. kind and code, if non-zero,
// must match the table's descriptor.
func (e *Engine) acquire(name string, kind Kind, code TypeCode, create bool) (*share, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if err := validateName(name); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if sh, ok := e.shares[name]; ok {
		if err := matchDescriptor(name, sh.kind, sh.code, kind, code); err != nil {
			return nil, err
		}
		sh.refs++
		return sh, nil
	}

	desc, err := e.readDescriptor(name)
	switch {
	case err == nil:
		if err := matchDescriptor(name, desc.Kind, desc.TypeCode, kind, code); err != nil {
			return nil, err
		}
	case isNotExist(err) && create:
		if kind == 0 {
			return nil, fmt.Errorf("%w: kind required to create %q", ErrInvalidArgument, name)
		}
		desc = descriptor{Version: descriptorVersion, Kind: kind, TypeCode: code}
		if err := e.writeDescriptor(name, desc); err != nil {
			return nil, err
		}
	case isNotExist(err):
		return nil, fmt.Errorf("%w: table %q", ErrNotFound, name)
	default:
		return nil, err
	}

	st, err := e.construct(name, desc.Kind, desc.TypeCode)
	e.metrics.OnOpen(name, desc.Kind, err)
	if err != nil {
		return nil, fmt.Errorf("open table %s: %w", name, err)
	}

	sh := &share{name: name, kind: desc.Kind, code: desc.TypeCode, store: st, refs: 1}
	e.assignIDLocked(sh)
	e.shares[name] = sh

	if uerr := st.Usable(); uerr != nil {
		e.logger.Error("table crashed on load", "table", name, "error", uerr)
	} else {
		e.logger.Debug("table opened", "table", name, "kind", desc.Kind, "type_code", desc.TypeCode)
	}

	// The new store may have pushed usage over the limit while it was not
	// yet a candidate.
	e.evictLocked()
	return sh, nil
}

// construct opens the store for a new share. The engine lock is held.
func (e *Engine) construct(name string, kind Kind, code TypeCode) (tableStore, error) {
	base := e.path(name)
	switch kind {
	case KindBitmap:
		s, err := bitmap.Open(e.fs, name, base+bitmapExt, e, unit.EngineLocked)
		if err != nil {
			return nil, err
		}
		return bitmapStore{Store: s}, nil
	case KindScalar:
		return openScalar(code, e.fs, name, base, e, unit.EngineLocked)
	default:
		return nil, fmt.Errorf("%w: kind %s", ErrInvalidArgument, kind)
	}
}

// release drops one reference. The last reference closes the store.
func (e *Engine) release(sh *share) error {
	st := sh.store
	st.Lock()
	defer st.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()

	sh.refs--
	if sh.refs > 0 || sh.dead {
		return nil
	}
	return e.destroyLocked(sh)
}

// destroyLocked closes the store of sh and unpublishes it. Both the unit
// lock and the engine lock are held.
func (e *Engine) destroyLocked(sh *share) error {
	sh.dead = true
	if e.shares[sh.name] == sh {
		delete(e.shares, sh.name)
	}
	e.releaseIDLocked(sh)

	err := sh.store.Close(unit.EngineLocked)
	e.logger.Debug("table closed", "table", sh.name, "error", err)
	return err
}

// pinAll raises the reference count of every live share and returns them in
// name order. Each must be passed to unpin.
func (e *Engine) pinAll() []*share {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*share, 0, len(e.shares))
	for _, sh := range e.shares {
		sh.refs++
		out = append(out, sh)
	}
	slices.SortFunc(out, func(a, b *share) int { return strings.Compare(a.name, b.name) })
	return out
}

// unpin drops a reference taken by pinAll or acquire. Only the last
// reference takes the unit lock, so unpinning does not count as an access.
func (e *Engine) unpin(sh *share) {
	e.mu.Lock()
	if sh.refs > 1 {
		sh.refs--
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	if err := e.release(sh); err != nil {
		e.logger.Warn("close table", "table", sh.name, "error", err)
	}
}

// assignIDLocked gives sh the lowest free checksum id. Tables beyond
// MaxTables get id 0 and cannot be found by checksum.
func (e *Engine) assignIDLocked(sh *share) {
	for id := uint32(1); id <= e.maxTables; id++ {
		if e.ids.Test(uint64(id)) {
			continue
		}
		if _, err := e.ids.Set(uint64(id), unit.EngineLocked); err != nil {
			e.logger.Warn("assign checksum id", "table", sh.name, "error", err)
			return
		}
		sh.store.SetID(id)
		e.byID[id] = sh
		return
	}
	e.logger.Warn("checksum ids exhausted", "table", sh.name, "max_tables", e.maxTables)
}

func (e *Engine) releaseIDLocked(sh *share) {
	id := sh.store.ID()
	if id == 0 {
		return
	}
	if e.byID[id] == sh {
		delete(e.byID, id)
		_, _ = e.ids.Unset(uint64(id), unit.EngineLocked)
	}
	sh.store.SetID(0)
}

// use locks the store of sh for one operation and wakes it if needed. The
// returned function unlocks it.
func (e *Engine) use(sh *share) (func(), error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	st := sh.store
	st.Lock()
	if sh.dead {
		st.Unlock()
		return nil, ErrClosed
	}
	if err := e.wake(sh); err != nil {
		st.Unlock()
		return nil, err
	}
	return st.Unlock, nil
}

// wake reloads a hibernated store. The unit lock is held, the engine lock
// is not.
func (e *Engine) wake(sh *share) error {
	st := sh.store
	if !st.Hibernated() {
		return nil
	}
	start := time.Now()
	err := st.Wakeup(unit.EngineUnlocked)
	e.wakeups.Add(1)
	e.metrics.OnWakeup(sh.name, time.Since(start), err)
	if err != nil {
		e.logger.Error("wakeup failed", "table", sh.name, "error", err)
		return err
	}
	e.logger.Debug("table woken", "table", sh.name, "mapped_bytes", st.MappedBytes())
	return nil
}

// lockShares locks the stores of shares in name order, skipping
// duplicates, and wakes them. The returned function unlocks them.
func (e *Engine) lockShares(shares ...*share) (func(), error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	uniq := slices.Clone(shares)
	slices.SortFunc(uniq, func(a, b *share) int { return strings.Compare(a.name, b.name) })
	uniq = slices.Compact(uniq)

	locked := make([]*share, 0, len(uniq))
	unlock := func() {
		for i := len(locked) - 1; i >= 0; i-- {
			locked[i].store.Unlock()
		}
	}
	for _, sh := range uniq {
		sh.store.Lock()
		locked = append(locked, sh)
		if sh.dead {
			unlock()
			return nil, ErrClosed
		}
		if err := e.wake(sh); err != nil {
			unlock()
			return nil, err
		}
	}
	return unlock, nil
}
