package bmapdb

import (
	"context"
	"io"
	"time"

	"github.com/hupe1980/bmapdb/blobstore"
	"github.com/hupe1980/bmapdb/internal/engine"
	"github.com/hupe1980/bmapdb/internal/snapshot"
)

type (
	// Table is the handle API shared by bitmap and scalar tables.
	Table = engine.Table
	// BitmapTable is a handle to a set of uint64 keys.
	BitmapTable = engine.BitmapTable
	// ScalarTable is a handle to keys with one scalar value each.
	ScalarTable = engine.ScalarTable
	// TableStats is a point-in-time view of one table.
	TableStats = engine.TableStats
	// TableInfo describes a table on disk.
	TableInfo = engine.TableInfo
	// Stats contains engine-wide statistics.
	Stats = engine.EngineStats
	// CheckResult is the outcome of checking one table.
	CheckResult = engine.CheckResult

	// Kind is the storage engine of a table.
	Kind = engine.Kind
	// TypeCode selects the key width and value type of a scalar table.
	TypeCode = engine.TypeCode
	// ValueType is the value type selected by a type code.
	ValueType = engine.ValueType

	// Entry is a key with its value.
	Entry = engine.Entry
	// Bound is one end of a value range.
	Bound = engine.Bound
	// KeyBound is one end of a key range.
	KeyBound = engine.KeyBound

	// Codec selects the snapshot body compression.
	Codec = snapshot.Codec
)

// Table kinds.
const (
	KindBitmap = engine.KindBitmap
	KindScalar = engine.KindScalar
)

// Common type codes.
const (
	Uint32Float64 = engine.Uint32Float64
	Uint32Int64   = engine.Uint32Int64
	Uint32Uint32  = engine.Uint32Uint32
	Uint64Float64 = engine.Uint64Float64
	Uint64Uint64  = engine.Uint64Uint64
)

// Snapshot codecs.
const (
	CodecNone = snapshot.CodecNone
	CodecLZ4  = snapshot.CodecLZ4
	CodecZstd = snapshot.CodecZstd
)

// NotFound is returned by bitmap navigation when there is no key.
const NotFound = engine.NotFound

// MaxKey is the highest key any table accepts.
const MaxKey = engine.MaxKey

var (
	// Inclusive returns a bound that includes v.
	Inclusive = engine.Inclusive
	// Exclusive returns a bound that excludes v.
	Exclusive = engine.Exclusive
	// Unbounded returns an open range end.
	Unbounded = engine.Unbounded

	// ParseTypeCode parses a decimal type code.
	ParseTypeCode = engine.ParseTypeCode
	// ParseKind parses "bitmap" or "scalar".
	ParseKind = engine.ParseKind
	// ParseCodec parses "none", "lz4" or "zstd".
	ParseCodec = snapshot.ParseCodec
)

// DB is an open table directory.
type DB struct {
	e      *engine.Engine
	logger *Logger
}

// Open opens the database in dir, creating the directory if needed.
func Open(dir string, optFns ...Option) (*DB, error) {
	o := applyOptions(optFns)

	engineOpts := []engine.Option{
		engine.WithLogger(o.logger.Logger),
		engine.WithMetricsObserver(o.metrics),
		engine.WithSnapshotCodec(o.codec),
	}
	if o.memoryLimit != nil {
		engineOpts = append(engineOpts, engine.WithMemoryLimit(*o.memoryLimit))
	}
	if o.bgWorkers > 0 {
		engineOpts = append(engineOpts, engine.WithMaxBackgroundWorkers(o.bgWorkers))
	}
	if o.ioLimit > 0 {
		engineOpts = append(engineOpts, engine.WithIOLimit(o.ioLimit))
	}
	if o.maxTables > 0 {
		engineOpts = append(engineOpts, engine.WithMaxTables(o.maxTables))
	}
	if o.fsys != nil {
		engineOpts = append(engineOpts, engine.WithFileSystem(o.fsys))
	}

	e, err := engine.Open(dir, engineOpts...)
	if err != nil {
		return nil, translateError(err)
	}
	o.logger.LogOpen(context.Background(), dir, e.Stats().MemoryLimit)
	return &DB{e: e, logger: o.logger}, nil
}

// Dir returns the database directory.
func (db *DB) Dir() string { return db.e.Dir() }

// Close closes every table. Handles still open afterwards fail with
// ErrClosed.
func (db *DB) Close() error {
	return translateError(db.e.Close())
}

// OpenBitmap opens the bitmap table name, creating it if needed.
func (db *DB) OpenBitmap(name string) (*BitmapTable, error) {
	t, err := db.e.OpenBitmap(name)
	return t, translateError(err)
}

// OpenScalar opens the scalar table name, creating it with code if needed.
func (db *DB) OpenScalar(name string, code TypeCode) (*ScalarTable, error) {
	t, err := db.e.OpenScalar(name, code)
	return t, translateError(err)
}

// OpenTable opens an existing table of either kind.
func (db *DB) OpenTable(name string) (Table, error) {
	t, err := db.e.Open(name)
	return t, translateError(err)
}

// FindByChecksum returns a new handle to the externally locked table with
// the given checksum id.
func (db *DB) FindByChecksum(id uint32) (Table, error) {
	t, err := db.e.FindByChecksum(id)
	return t, translateError(err)
}

// List returns the tables on disk, sorted by name.
func (db *DB) List() ([]TableInfo, error) {
	infos, err := db.e.List()
	return infos, translateError(err)
}

// Drop deletes a table that is not open.
func (db *DB) Drop(name string) error {
	return translateError(db.e.Drop(name))
}

// Stats returns engine-wide statistics.
func (db *DB) Stats() Stats { return db.e.Stats() }

// Intersect replaces dst with the keys set in every src.
func (db *DB) Intersect(dst *BitmapTable, srcs ...*BitmapTable) error {
	return translateError(db.e.Intersect(dst, srcs...))
}

// Union replaces dst with the keys set in any src.
func (db *DB) Union(dst *BitmapTable, srcs ...*BitmapTable) error {
	return translateError(db.e.Union(dst, srcs...))
}

// ConsolidateAll consolidates every open scalar table.
func (db *DB) ConsolidateAll(ctx context.Context) error {
	return translateError(db.e.ConsolidateAll(ctx))
}

// SyncAll flushes every open table to disk.
func (db *DB) SyncAll(ctx context.Context) error {
	return translateError(db.e.SyncAll(ctx))
}

// CheckAll checks every open table and optionally repairs damaged ones.
func (db *DB) CheckAll(ctx context.Context, repair bool) ([]CheckResult, error) {
	results, err := db.e.CheckAll(ctx, repair)
	for _, r := range results {
		db.logger.LogCheck(ctx, r.Name, r.Repaired, r.Err)
	}
	return results, translateError(err)
}

// Export writes a snapshot of table name to w.
func (db *DB) Export(ctx context.Context, name string, w io.Writer) error {
	return translateError(db.e.Export(ctx, name, w))
}

// Import replaces table name with the snapshot read from r.
func (db *DB) Import(ctx context.Context, name string, r io.Reader) error {
	return translateError(db.e.Import(ctx, name, r))
}

// Backup exports the named tables, or all tables, to store.
func (db *DB) Backup(ctx context.Context, store blobstore.Store, names ...string) error {
	start := time.Now()
	err := translateError(db.e.Backup(ctx, store, names...))
	db.logger.LogBackup(ctx, "backup", len(names), time.Since(start), err)
	return err
}

// Restore imports the named tables, or every snapshot in store.
func (db *DB) Restore(ctx context.Context, store blobstore.Store, names ...string) error {
	start := time.Now()
	err := translateError(db.e.Restore(ctx, store, names...))
	db.logger.LogBackup(ctx, "restore", len(names), time.Since(start), err)
	return err
}
