package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/bmapdb/internal/bitmap"
	"github.com/hupe1980/bmapdb/internal/fs"
	"github.com/hupe1980/bmapdb/internal/resource"
	"github.com/hupe1980/bmapdb/internal/snapshot"
	"github.com/hupe1980/bmapdb/internal/unit"
)

// DefaultMemoryLimit is the memory budget used when none is configured.
const DefaultMemoryLimit = 1 << 30

// DefaultMaxTables is the default size of the checksum id space.
const DefaultMaxTables = 20000

// Engine is a directory of bitmap and scalar tables sharing one memory
// budget.
type Engine struct {
	// mu is the engine-wide lock. It guards shares, byID, ids, evicting and
	// every change of the memory counter.
	mu       sync.Mutex
	shares   map[string]*share
	byID     map[uint32]*share
	ids      *bitmap.Store
	evicting bool

	dir       string
	fs        fs.FileSystem
	logger    *slog.Logger
	metrics   MetricsObserver
	rc        *resource.Controller
	maxTables uint32
	codec     snapshot.Codec

	memoryLimit  int64
	bgWorkers    int64
	ioLimit      int64
	customRC     bool
	closed       atomic.Bool
	hibernations atomic.Int64
	wakeups      atomic.Int64
	starved      atomic.Int64
}

// Option defines a configuration option for the Engine.
type Option func(*Engine)

// WithLogger sets the logger for the engine.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithResourceController sets the resource controller for the engine. It
// takes precedence over WithMemoryLimit, WithMaxBackgroundWorkers and
// WithIOLimit.
func WithResourceController(rc *resource.Controller) Option {
	return func(e *Engine) {
		e.rc = rc
		e.customRC = rc != nil
	}
}

// WithMemoryLimit sets the budget for mapped table memory in bytes.
// If set to 0, memory is unlimited and tables are never evicted.
func WithMemoryLimit(bytes int64) Option {
	return func(e *Engine) {
		e.memoryLimit = bytes
	}
}

// WithMaxBackgroundWorkers bounds the parallelism of ConsolidateAll,
// CheckAll and Backup.
func WithMaxBackgroundWorkers(n int64) Option {
	return func(e *Engine) {
		e.bgWorkers = n
	}
}

// WithIOLimit throttles snapshot export and import to bytesPerSec.
func WithIOLimit(bytesPerSec int64) Option {
	return func(e *Engine) {
		e.ioLimit = bytesPerSec
	}
}

// WithMetricsObserver sets the metrics observer for the engine.
func WithMetricsObserver(observer MetricsObserver) Option {
	return func(e *Engine) {
		e.metrics = observer
	}
}

// WithFileSystem sets the file system used for table files.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(e *Engine) {
		e.fs = fsys
	}
}

// WithMaxTables sets the size of the checksum id space.
func WithMaxTables(n uint32) Option {
	return func(e *Engine) {
		e.maxTables = n
	}
}

// WithSnapshotCodec sets the compression codec used by Export and Backup.
func WithSnapshotCodec(c snapshot.Codec) Option {
	return func(e *Engine) {
		e.codec = c
	}
}

// Open opens the engine rooted at dir, creating the directory if needed.
// Tables are opened lazily.
func Open(dir string, opts ...Option) (*Engine, error) {
	e := &Engine{
		dir:         dir,
		shares:      make(map[string]*share),
		byID:        make(map[uint32]*share),
		memoryLimit: DefaultMemoryLimit,
		maxTables:   DefaultMaxTables,
		codec:       snapshot.CodecZstd,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.fs == nil {
		e.fs = fs.Default
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.metrics == nil {
		e.metrics = NoopMetricsObserver{}
	}
	if !e.customRC {
		e.rc = resource.NewController(resource.Config{
			MemoryLimitBytes:     e.memoryLimit,
			MaxBackgroundWorkers: e.bgWorkers,
			IOLimitBytesPerSec:   e.ioLimit,
		})
	}
	if err := e.codec.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	if err := e.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create engine dir: %w", err)
	}

	// The id pool lives outside the registry and is never evicted.
	e.ids = bitmap.NewAnon(unit.Unaccounted)

	e.logger.Debug("engine opened", "dir", dir, "memory_limit", e.rc.MemoryLimit())
	return e, nil
}

// Dir returns the engine directory.
func (e *Engine) Dir() string { return e.dir }

// Logger returns the engine logger.
func (e *Engine) Logger() *slog.Logger { return e.logger }

// Close releases every table. Handles still open afterwards fail with
// ErrClosed.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}

	var firstErr error
	for _, sh := range e.pinAll() {
		st := sh.store
		st.Lock()
		e.mu.Lock()
		if !sh.dead {
			if err := e.destroyLocked(sh); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		e.mu.Unlock()
		st.Unlock()
	}

	e.mu.Lock()
	_ = e.ids.Close(unit.EngineLocked)
	e.mu.Unlock()

	e.logger.Debug("engine closed", "dir", e.dir)
	return firstErr
}

func (e *Engine) checkOpen() error {
	if e.closed.Load() {
		return ErrClosed
	}
	return nil
}

// EngineStats contains runtime statistics for the engine.
type EngineStats struct {
	MemoryUsage      int64
	MemoryPeak       int64
	MemoryLimit      int64
	OpenTables       int
	HibernatedTables int
	Hibernations     int64
	Wakeups          int64
	EvictionStarved  int64
}

// Stats returns the current engine statistics.
func (e *Engine) Stats() EngineStats {
	stats := EngineStats{
		MemoryUsage:     e.rc.MemoryUsage(),
		MemoryPeak:      e.rc.MemoryPeak(),
		MemoryLimit:     e.rc.MemoryLimit(),
		Hibernations:    e.hibernations.Load(),
		Wakeups:         e.wakeups.Load(),
		EvictionStarved: e.starved.Load(),
	}

	shares := e.pinAll()
	stats.OpenTables = len(shares)
	for _, sh := range shares {
		// Busy tables are awake. TryLock leaves the access time alone.
		if sh.store.TryLock() {
			if sh.store.Hibernated() {
				stats.HibernatedTables++
			}
			sh.store.Unlock()
		}
		e.unpin(sh)
	}
	return stats
}
