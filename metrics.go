package bmapdb

import (
	"sync/atomic"
	"time"

	"github.com/hupe1980/bmapdb/internal/engine"
)

// MetricsObserver receives engine events. Implement it to integrate with
// monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusObserver struct {
//	    bmapdb.NoopMetricsObserver
//	    hibernations prometheus.Counter
//	}
//
//	func (p *PrometheusObserver) OnHibernate(table string, bytes int64, err error) {
//	    p.hibernations.Inc()
//	}
type MetricsObserver = engine.MetricsObserver

// NoopMetricsObserver is a no-op implementation of MetricsObserver.
type NoopMetricsObserver = engine.NoopMetricsObserver

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	Opens              atomic.Int64
	OpenErrors         atomic.Int64
	Hibernations       atomic.Int64
	HibernateErrors    atomic.Int64
	HibernatedBytes    atomic.Int64
	Wakeups            atomic.Int64
	WakeupErrors       atomic.Int64
	WakeupTotalNanos   atomic.Int64
	Consolidations     atomic.Int64
	ConsolidateErrors  atomic.Int64
	ConsolidateNanos   atomic.Int64
	EvictionStarved    atomic.Int64
	Exports            atomic.Int64
	Imports            atomic.Int64
	SnapshotErrors     atomic.Int64
	SnapshotBytes      atomic.Int64
	SnapshotTotalNanos atomic.Int64
}

var _ MetricsObserver = (*BasicMetricsCollector)(nil)

// OnOpen implements MetricsObserver.
func (b *BasicMetricsCollector) OnOpen(_ string, _ Kind, err error) {
	b.Opens.Add(1)
	if err != nil {
		b.OpenErrors.Add(1)
	}
}

// OnHibernate implements MetricsObserver.
func (b *BasicMetricsCollector) OnHibernate(_ string, bytes int64, err error) {
	if err != nil {
		b.HibernateErrors.Add(1)
		return
	}
	b.Hibernations.Add(1)
	b.HibernatedBytes.Add(bytes)
}

// OnWakeup implements MetricsObserver.
func (b *BasicMetricsCollector) OnWakeup(_ string, duration time.Duration, err error) {
	b.Wakeups.Add(1)
	b.WakeupTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.WakeupErrors.Add(1)
	}
}

// OnConsolidate implements MetricsObserver.
func (b *BasicMetricsCollector) OnConsolidate(_ string, duration time.Duration, _ uint64, err error) {
	b.Consolidations.Add(1)
	b.ConsolidateNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.ConsolidateErrors.Add(1)
	}
}

// OnEvictionStarved implements MetricsObserver.
func (b *BasicMetricsCollector) OnEvictionStarved(_, _ int64) {
	b.EvictionStarved.Add(1)
}

// OnSnapshot implements MetricsObserver.
func (b *BasicMetricsCollector) OnSnapshot(op, _ string, bytes int64, duration time.Duration, err error) {
	switch op {
	case "export":
		b.Exports.Add(1)
	case "import":
		b.Imports.Add(1)
	}
	b.SnapshotBytes.Add(bytes)
	b.SnapshotTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SnapshotErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		Opens:               b.Opens.Load(),
		OpenErrors:          b.OpenErrors.Load(),
		Hibernations:        b.Hibernations.Load(),
		HibernateErrors:     b.HibernateErrors.Load(),
		HibernatedBytes:     b.HibernatedBytes.Load(),
		Wakeups:             b.Wakeups.Load(),
		WakeupErrors:        b.WakeupErrors.Load(),
		WakeupAvgNanos:      avg(b.WakeupTotalNanos.Load(), b.Wakeups.Load()),
		Consolidations:      b.Consolidations.Load(),
		ConsolidateErrors:   b.ConsolidateErrors.Load(),
		ConsolidateAvgNanos: avg(b.ConsolidateNanos.Load(), b.Consolidations.Load()),
		EvictionStarved:     b.EvictionStarved.Load(),
		Exports:             b.Exports.Load(),
		Imports:             b.Imports.Load(),
		SnapshotErrors:      b.SnapshotErrors.Load(),
		SnapshotBytes:       b.SnapshotBytes.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	Opens               int64
	OpenErrors          int64
	Hibernations        int64
	HibernateErrors     int64
	HibernatedBytes     int64
	Wakeups             int64
	WakeupErrors        int64
	WakeupAvgNanos      int64
	Consolidations      int64
	ConsolidateErrors   int64
	ConsolidateAvgNanos int64
	EvictionStarved     int64
	Exports             int64
	Imports             int64
	SnapshotErrors      int64
	SnapshotBytes       int64
}
