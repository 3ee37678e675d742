package bmapdb

import (
	"log/slog"

	"github.com/hupe1980/bmapdb/internal/fs"
)

// FileSystem is the file abstraction table files are opened through.
type FileSystem = fs.FileSystem

type options struct {
	logger      *Logger
	metrics     MetricsObserver
	memoryLimit *int64
	bgWorkers   int64
	ioLimit     int64
	maxTables   uint32
	codec       Codec
	fsys        FileSystem
}

// Option configures Open.
type Option func(*options)

// WithMemoryLimit sets the budget for mapped table memory in bytes. When it
// is exceeded, idle tables are hibernated. 0 disables the limit.
// Default: 1 GiB.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memoryLimit = &bytes
	}
}

// WithMaxBackgroundWorkers bounds the parallelism of ConsolidateAll,
// CheckAll, Backup and Restore. Default: 1.
func WithMaxBackgroundWorkers(n int64) Option {
	return func(o *options) {
		o.bgWorkers = n
	}
}

// WithIOLimit throttles snapshot IO to bytesPerSec. 0 means unlimited.
func WithIOLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.ioLimit = bytesPerSec
	}
}

// WithMaxTables sets how many tables can hold a checksum id at once.
// Default: 20000.
func WithMaxTables(n uint32) Option {
	return func(o *options) {
		o.maxTables = n
	}
}

// WithSnapshotCodec selects the compression of exported snapshots.
// Default: CodecZstd.
func WithSnapshotCodec(c Codec) Option {
	return func(o *options) {
		o.codec = c
	}
}

// WithMetricsObserver configures an observer for engine events.
// Pass nil to disable metrics.
//
// Example with BasicMetricsCollector:
//
//	metrics := &bmapdb.BasicMetricsCollector{}
//	db, _ := bmapdb.Open("./data", bmapdb.WithMetricsObserver(metrics))
//	// ... use db ...
//	stats := metrics.GetStats()
//	fmt.Printf("Hibernations: %d, Wakeups: %d\n", stats.Hibernations, stats.Wakeups)
func WithMetricsObserver(m MetricsObserver) Option {
	return func(o *options) {
		if m == nil {
			m = NoopMetricsObserver{}
		}
		o.metrics = m
	}
}

// WithLogger configures structured logging.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := bmapdb.NewJSONLogger(slog.LevelInfo)
//	db, _ := bmapdb.Open("./data", bmapdb.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithFileSystem sets the file system table files are opened through.
// Default: the local file system.
func WithFileSystem(fsys FileSystem) Option {
	return func(o *options) {
		o.fsys = fsys
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		logger:  NoopLogger(),
		metrics: NoopMetricsObserver{},
		codec:   CodecZstd,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
