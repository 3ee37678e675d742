package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/bmapdb/internal/unit"
)

// Table is the part of the handle API shared by bitmap and scalar tables.
//
// A handle may be used from several goroutines. Each call locks the table
// for its duration; ExternalLock additionally keeps the table in memory
// between calls.
type Table interface {
	Name() string
	Kind() Kind
	// Checksum returns the engine-scoped id of the table, 0 if the id space
	// is exhausted.
	Checksum() (uint32, error)
	ExternalLock() error
	ExternalUnlock() error
	Records() (uint64, error)
	Stats() (TableStats, error)
	Check() error
	Repair() error
	CheckAndRepair() (bool, error)
	Truncate() error
	Sync() error
	Hibernate() error
	Close() error
}

// TableStats is a point-in-time view of one table.
type TableStats struct {
	Name           string
	Kind           Kind
	TypeCode       TypeCode
	ID             uint32
	Records        uint64
	Committed      uint64
	PendingInserts uint64
	PendingDeletes uint64
	State          string
	Hibernated     bool
	Crashed        bool
	CrashReason    string
	Dirty          bool
	ELocks         int
	MappedBytes    int64
	Times          unit.Times
}

// table is the handle state shared by BitmapTable and ScalarTable.
type table struct {
	e  *Engine
	sh *share

	// mu guards closed and elocks.
	mu     sync.Mutex
	closed bool
	elocks int
}

// Name returns the table name.
func (t *table) Name() string { return t.sh.name }

// Kind returns the table kind.
func (t *table) Kind() Kind { return t.sh.kind }

// TypeCode returns the type code of a scalar table, 0 for a bitmap table.
func (t *table) TypeCode() TypeCode { return t.sh.code }

func (t *table) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// do runs fn with the table locked and awake.
func (t *table) do(fn func(st tableStore) error) error {
	if t.isClosed() {
		return ErrClosed
	}
	unlock, err := t.e.use(t.sh)
	if err != nil {
		return err
	}
	defer unlock()
	return fn(t.sh.store)
}

// read is do for operations that refuse crashed tables.
func (t *table) read(fn func(st tableStore) error) error {
	return t.do(func(st tableStore) error {
		if err := st.Usable(); err != nil {
			return err
		}
		return fn(st)
	})
}

func (t *table) Checksum() (uint32, error) {
	var id uint32
	err := t.do(func(st tableStore) error {
		id = st.ID()
		return nil
	})
	return id, err
}

// ExternalLock pins the table in memory until the matching ExternalUnlock.
// Externally locked tables are never hibernated and can be found with
// FindByChecksum.
func (t *table) ExternalLock() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	unlock, err := t.e.use(t.sh)
	if err != nil {
		return err
	}
	defer unlock()
	t.sh.store.ELock()
	t.elocks++
	return nil
}

// ExternalUnlock releases one ExternalLock.
func (t *table) ExternalUnlock() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if t.elocks == 0 {
		return fmt.Errorf("%w: table %s is not externally locked", ErrInvalidArgument, t.sh.name)
	}
	st := t.sh.store
	st.Lock()
	defer st.Unlock()
	if !t.sh.dead {
		st.UnELock()
	}
	t.elocks--
	return nil
}

func (t *table) Records() (uint64, error) {
	var n uint64
	err := t.read(func(st tableStore) error {
		n = st.Records()
		return nil
	})
	return n, err
}

func (t *table) Stats() (TableStats, error) {
	var s TableStats
	err := t.do(func(st tableStore) error {
		s = TableStats{
			Name:        t.sh.name,
			Kind:        t.sh.kind,
			TypeCode:    t.sh.code,
			ID:          st.ID(),
			Records:     st.Records(),
			Committed:   st.Records(),
			State:       "clean",
			Hibernated:  st.Hibernated(),
			Crashed:     st.Crashed(),
			Dirty:       st.Dirty(),
			ELocks:      st.ELocks(),
			MappedBytes: st.MappedBytes(),
			Times:       st.Times(),
		}
		if st.Crashed() {
			s.CrashReason = st.CrashReason().Error()
		}
		if t.sh.kind == KindScalar {
			ss := t.sh.scalar().stats()
			s.Committed = ss.Committed
			s.PendingInserts = ss.PendingInserts
			s.PendingDeletes = ss.PendingDeletes
			s.State = ss.State.String()
		}
		return nil
	})
	return s, err
}

// Check verifies the table's internal consistency. Failures are reported as
// a *CorruptionError.
func (t *table) Check() error {
	return t.do(func(st tableStore) error {
		if err := st.Check(); err != nil {
			return &CorruptionError{Table: t.sh.name, Reason: err}
		}
		return nil
	})
}

// Repair rebuilds the table from its key bitmap and clears a crashed state.
func (t *table) Repair() error {
	return t.do(func(st tableStore) error {
		start := time.Now()
		err := st.Repair(unit.EngineUnlocked)
		if err != nil {
			t.e.logger.Error("repair failed", "table", t.sh.name, "error", err)
			return err
		}
		t.e.logger.Info("table repaired", "table", t.sh.name,
			"records", st.Records(), "duration", time.Since(start))
		return nil
	})
}

// CheckAndRepair repairs the table if Check fails and reports whether it
// did.
func (t *table) CheckAndRepair() (bool, error) {
	var repaired bool
	err := t.do(func(st tableStore) error {
		var err error
		repaired, err = st.CheckAndRepair(unit.EngineUnlocked)
		if repaired && err == nil {
			t.e.logger.Info("table repaired", "table", t.sh.name, "records", st.Records())
		}
		return err
	})
	return repaired, err
}

// Truncate deletes every row.
func (t *table) Truncate() error {
	return t.read(func(st tableStore) error {
		return st.Truncate(unit.EngineUnlocked)
	})
}

// Sync flushes the table to its files.
func (t *table) Sync() error {
	return t.read(func(st tableStore) error {
		return st.Sync(unit.EngineUnlocked)
	})
}

// Hibernate releases the table's memory now. It fails with ErrTableBusy if
// the table is externally locked.
func (t *table) Hibernate() error {
	if t.isClosed() {
		return ErrClosed
	}
	if err := t.e.checkOpen(); err != nil {
		return err
	}
	st := t.sh.store
	st.Lock()
	t.e.mu.Lock()
	defer t.e.mu.Unlock()
	if t.sh.dead {
		st.Unlock()
		return ErrClosed
	}
	if st.ELocked() {
		st.Unlock()
		return fmt.Errorf("%w: table %s is externally locked", ErrTableBusy, t.sh.name)
	}
	if st.Hibernated() {
		st.Unlock()
		return nil
	}
	return t.e.hibernateLocked(t.sh)
}

// Close releases the handle and any external locks it still holds. The
// table is closed when its last handle is.
func (t *table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	t.closed = true

	if t.elocks > 0 {
		st := t.sh.store
		st.Lock()
		if !t.sh.dead {
			for ; t.elocks > 0; t.elocks-- {
				st.UnELock()
			}
		}
		st.Unlock()
		t.elocks = 0
	}
	return t.e.release(t.sh)
}
