package engine

import (
	"context"
	"time"

	"github.com/hupe1980/bmapdb/internal/unit"
	"golang.org/x/sync/errgroup"
)

// CheckResult is the outcome of checking one table.
type CheckResult struct {
	Name     string
	Err      error
	Repaired bool
}

// parallel runs fn for every share on the background worker pool. The
// first error cancels the remaining work.
func (e *Engine) parallel(ctx context.Context, shares []*share, fn func(i int, sh *share) error) error {
	g, ctx := errgroup.WithContext(ctx)
	for i, sh := range shares {
		if err := e.rc.AcquireBackground(ctx); err != nil {
			break
		}
		g.Go(func() error {
			defer e.rc.ReleaseBackground()
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(i, sh)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// pinned pins every open table for the duration of fn.
func (e *Engine) pinned(fn func(shares []*share) error) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	shares := e.pinAll()
	defer func() {
		for _, sh := range shares {
			e.unpin(sh)
		}
	}()
	return fn(shares)
}

// ConsolidateAll consolidates every open scalar table. Crashed tables are
// skipped.
func (e *Engine) ConsolidateAll(ctx context.Context) error {
	return e.pinned(func(shares []*share) error {
		return e.parallel(ctx, shares, func(_ int, sh *share) error {
			if sh.kind != KindScalar {
				return nil
			}
			unlock, err := e.use(sh)
			if err != nil {
				return err
			}
			defer unlock()
			if sh.store.Usable() != nil {
				return nil
			}
			start := time.Now()
			err = sh.scalar().consolidate(unit.EngineUnlocked)
			e.metrics.OnConsolidate(sh.name, time.Since(start), sh.store.Records(), err)
			return err
		})
	})
}

// SyncAll flushes every open table to its files. Crashed tables are
// skipped.
func (e *Engine) SyncAll(ctx context.Context) error {
	return e.pinned(func(shares []*share) error {
		return e.parallel(ctx, shares, func(_ int, sh *share) error {
			unlock, err := e.use(sh)
			if err != nil {
				return err
			}
			defer unlock()
			if sh.store.Usable() != nil {
				return nil
			}
			return sh.store.Sync(unit.EngineUnlocked)
		})
	})
}

// CheckAll checks every open table, waking hibernated ones, and repairs the
// damaged ones if repair is set. Check failures are reported per table as
// a *CorruptionError in the results, sorted by name, not as the returned
// error.
func (e *Engine) CheckAll(ctx context.Context, repair bool) ([]CheckResult, error) {
	var results []CheckResult
	err := e.pinned(func(shares []*share) error {
		results = make([]CheckResult, len(shares))
		return e.parallel(ctx, shares, func(i int, sh *share) error {
			results[i] = e.checkShare(sh, repair)
			return nil
		})
	})
	return results, err
}

func (e *Engine) checkShare(sh *share, repair bool) CheckResult {
	r := CheckResult{Name: sh.name}
	unlock, err := e.use(sh)
	if err != nil {
		r.Err = err
		return r
	}
	defer unlock()

	cerr := sh.store.Check()
	if cerr == nil {
		return r
	}
	r.Err = &CorruptionError{Table: sh.name, Reason: cerr}
	if !repair {
		return r
	}
	if rerr := sh.store.Repair(unit.EngineUnlocked); rerr != nil {
		e.logger.Error("repair failed", "table", sh.name, "error", rerr)
		return r
	}
	r.Err, r.Repaired = nil, true
	e.logger.Info("table repaired", "table", sh.name, "records", sh.store.Records())
	return r
}
