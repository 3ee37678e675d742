package engine

import "time"

// MetricsObserver defines the interface for observing engine events.
type MetricsObserver interface {
	// OnOpen is called when a table share is created.
	OnOpen(table string, kind Kind, err error)

	// OnHibernate is called when a table was hibernated, by eviction or
	// explicitly. bytes is the memory released.
	OnHibernate(table string, bytes int64, err error)

	// OnWakeup is called when a hibernated table was reloaded.
	OnWakeup(table string, duration time.Duration, err error)

	// OnConsolidate is called when an explicit consolidation completes.
	OnConsolidate(table string, duration time.Duration, records uint64, err error)

	// OnEvictionStarved is called when the memory limit is exceeded and no
	// table can be hibernated.
	OnEvictionStarved(usage, limit int64)

	// OnSnapshot is called when a snapshot export or import completes.
	OnSnapshot(op, table string, bytes int64, duration time.Duration, err error)
}

// NoopMetricsObserver is a no-op implementation of MetricsObserver.
type NoopMetricsObserver struct{}

func (NoopMetricsObserver) OnOpen(string, Kind, error)                             {}
func (NoopMetricsObserver) OnHibernate(string, int64, error)                       {}
func (NoopMetricsObserver) OnWakeup(string, time.Duration, error)                  {}
func (NoopMetricsObserver) OnConsolidate(string, time.Duration, uint64, error)     {}
func (NoopMetricsObserver) OnEvictionStarved(int64, int64)                         {}
func (NoopMetricsObserver) OnSnapshot(string, string, int64, time.Duration, error) {}
