// Package unit implements the storage unit shared by every table store: a
// mutex, identity, lifecycle flags, timestamps, an external-lock count and the
// accounted resize primitive over mmap regions.
//
// # Lock State
//
// Memory accounting may need the engine-wide lock. Instead of a lock-state
// field that composite stores copy into their children, every operation that
// can change a unit's mapped size takes a LockState argument describing
// whether the caller already holds the engine lock. Composite stores pass the
// value they received down to the stores they own.
package unit
