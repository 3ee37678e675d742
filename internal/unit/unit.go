package unit

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/bmapdb/internal/mmap"
)

// ErrCrashed is returned by operations on a unit that was marked crashed.
// Only repair clears the condition.
var ErrCrashed = errors.New("unit: crashed")

// LockState tells an operation whether its caller holds the engine lock.
type LockState uint8

const (
	// EngineUnlocked means the engine lock is free from the caller's view;
	// accounting acquires it.
	EngineUnlocked LockState = iota
	// EngineLocked means the caller holds the engine lock; accounting must
	// not acquire it again.
	EngineLocked
)

func (ls LockState) String() string {
	if ls == EngineLocked {
		return "engine-locked"
	}
	return "engine-unlocked"
}

// Accountant receives changes in mapped bytes.
type Accountant interface {
	Account(delta int64, ls LockState)
}

type nopAccountant struct{}

func (nopAccountant) Account(int64, LockState) {}

// Unaccounted is an Accountant that ignores all changes.
var Unaccounted Accountant = nopAccountant{}

// Times holds a unit's lifecycle timestamps.
type Times struct {
	Created  time.Time
	Modified time.Time
	Accessed time.Time
	Loaded   time.Time
}

// Unit is the lockable, hibernatable base of every store.
//
// All methods except Name, Lock, TryLock and Unlock require the caller to
// hold the unit lock.
type Unit struct {
	mu   sync.Mutex
	name string
	id   uint32
	acct Accountant

	hibernated bool
	crashed    error
	dirty      bool
	records    uint64
	elocks     int
	mapped     int64

	times Times
}

// New creates a unit. A nil accountant means Unaccounted.
func New(name string, acct Accountant) *Unit {
	if acct == nil {
		acct = Unaccounted
	}
	now := time.Now()
	return &Unit{
		name:  name,
		acct:  acct,
		times: Times{Created: now, Modified: now, Accessed: now},
	}
}

// Name returns the unit's name.
func (u *Unit) Name() string { return u.name }

// Lock acquires the unit lock and marks the unit active.
func (u *Unit) Lock() {
	u.mu.Lock()
	u.MarkActive()
}

// TryLock acquires the unit lock without blocking. It does not touch the
// access time, so probing a unit does not make it look recently used.
func (u *Unit) TryLock() bool { return u.mu.TryLock() }

// Unlock releases the unit lock.
func (u *Unit) Unlock() { u.mu.Unlock() }

// MarkActive updates the last access time.
func (u *Unit) MarkActive() { u.times.Accessed = time.Now() }

// ID returns the engine-scoped checksum id, 0 if none was assigned.
func (u *Unit) ID() uint32 { return u.id }

// SetID assigns the engine-scoped checksum id.
func (u *Unit) SetID(id uint32) { u.id = id }

// Hibernated reports whether the unit's buffers are released.
func (u *Unit) Hibernated() bool { return u.hibernated }

// SetHibernated records the hibernation state.
func (u *Unit) SetHibernated(v bool) { u.hibernated = v }

// Crashed reports whether the unit is crashed.
func (u *Unit) Crashed() bool { return u.crashed != nil }

// CrashReason returns the error that crashed the unit, or nil.
func (u *Unit) CrashReason() error { return u.crashed }

// MarkCrashed makes the unit refuse further access until repair. The first
// reason wins.
func (u *Unit) MarkCrashed(reason error) {
	if u.crashed == nil {
		if reason == nil {
			reason = errors.New("unknown")
		}
		u.crashed = reason
	}
}

// ClearCrashed is called by repair once consistent state was rebuilt.
func (u *Unit) ClearCrashed() { u.crashed = nil }

// Usable returns an error wrapping ErrCrashed if the unit is crashed.
func (u *Unit) Usable() error {
	if u.crashed != nil {
		return fmt.Errorf("%w: %s: %w", ErrCrashed, u.name, u.crashed)
	}
	return nil
}

// Dirty reports unsaved modifications.
func (u *Unit) Dirty() bool { return u.dirty }

// MarkDirty flags a modification and updates the modification time.
func (u *Unit) MarkDirty() {
	u.dirty = true
	u.times.Modified = time.Now()
}

// ClearDirty is called after state was written back.
func (u *Unit) ClearDirty() { u.dirty = false }

// Records returns the record count.
func (u *Unit) Records() uint64 { return u.records }

// SetRecords sets the record count.
func (u *Unit) SetRecords(n uint64) { u.records = n }

// ELock increments the external lock count and reports whether this was the
// first external lock, in which case the caller must wake the unit.
func (u *Unit) ELock() bool {
	u.elocks++
	u.MarkActive()
	return u.elocks == 1
}

// UnELock decrements the external lock count. Unbalanced calls panic.
func (u *Unit) UnELock() {
	if u.elocks == 0 {
		panic(fmt.Sprintf("unit %q: unelock without elock", u.name))
	}
	u.elocks--
}

// ELocked reports whether the unit is externally locked.
func (u *Unit) ELocked() bool { return u.elocks > 0 }

// ELocks returns the external lock count.
func (u *Unit) ELocks() int { return u.elocks }

// Times returns the lifecycle timestamps.
func (u *Unit) Times() Times { return u.times }

// Accessed returns the last access time.
func (u *Unit) Accessed() time.Time { return u.times.Accessed }

// MarkLoaded records a (re)load from backing storage.
func (u *Unit) MarkLoaded() { u.times.Loaded = time.Now() }

// MappedBytes returns the bytes this unit currently has accounted.
func (u *Unit) MappedBytes() int64 { return u.mapped }

func (u *Unit) account(delta int64, ls LockState) {
	if delta == 0 {
		return
	}
	u.mapped += delta
	u.acct.Account(delta, ls)
}

// Resize remaps r to exactly newSize bytes and accounts the difference.
// The accounted change reflects what actually happened, also on failure.
func (u *Unit) Resize(r *mmap.Region, newSize int, ls LockState) error {
	old := r.Len()
	err := r.Resize(newSize)
	u.account(int64(r.Len()-old), ls)
	if err != nil {
		return fmt.Errorf("unit %s: resize to %d: %w", u.name, newSize, err)
	}
	return nil
}

// Map loads r from its backing file and accounts the mapped bytes.
func (u *Unit) Map(r *mmap.Region, ls LockState) error {
	old := r.Len()
	err := r.Load()
	u.account(int64(r.Len()-old), ls)
	if err != nil {
		return fmt.Errorf("unit %s: %w", u.name, err)
	}
	return nil
}

// Unmap releases r and accounts the released bytes.
func (u *Unit) Unmap(r *mmap.Region, ls LockState) error {
	old := r.Len()
	err := r.Release()
	u.account(int64(r.Len()-old), ls)
	return err
}
