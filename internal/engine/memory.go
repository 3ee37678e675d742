package engine

import (
	"time"

	"github.com/hupe1980/bmapdb/internal/unit"
)

// Account implements unit.Accountant. Growth past the memory limit
// hibernates idle tables.
func (e *Engine) Account(delta int64, ls unit.LockState) {
	if ls == unit.EngineUnlocked {
		e.mu.Lock()
		defer e.mu.Unlock()
	}
	e.rc.Add(delta)
	if delta > 0 {
		e.evictLocked()
	}
}

// evictLocked hibernates the least recently accessed table until usage is
// back under the limit. Tables that are externally locked, already
// hibernated or busy are skipped. The engine lock is held.
func (e *Engine) evictLocked() {
	if e.evicting {
		return
	}
	e.evicting = true
	defer func() { e.evicting = false }()

	for e.rc.OverLimit() {
		var victim *share
		for _, sh := range e.shares {
			st := sh.store
			if !st.TryLock() {
				continue
			}
			if sh.dead || st.Hibernated() || st.ELocked() ||
				(victim != nil && !st.Accessed().Before(victim.store.Accessed())) {
				st.Unlock()
				continue
			}
			if victim != nil {
				victim.store.Unlock()
			}
			victim = sh
		}

		if victim == nil {
			e.starved.Add(1)
			e.metrics.OnEvictionStarved(e.rc.MemoryUsage(), e.rc.MemoryLimit())
			e.logger.Warn("can't hibernate any table",
				"memory_usage", e.rc.MemoryUsage(), "memory_limit", e.rc.MemoryLimit())
			return
		}

		if err := e.hibernateLocked(victim); err != nil {
			return
		}
	}
}

// hibernateLocked hibernates sh and releases its unit lock. The engine lock
// and the unit lock are held.
func (e *Engine) hibernateLocked(sh *share) error {
	st := sh.store
	defer st.Unlock()

	before := st.MappedBytes()
	err := st.Hibernate(unit.EngineLocked)
	freed := before - st.MappedBytes()
	e.metrics.OnHibernate(sh.name, freed, err)
	if err != nil {
		e.logger.Error("hibernate failed", "table", sh.name, "error", err)
		return err
	}
	e.hibernations.Add(1)
	e.logger.Debug("table hibernated", "table", sh.name, "freed_bytes", freed,
		"idle", time.Since(st.Accessed()))
	return nil
}
