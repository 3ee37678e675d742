package bmapdb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/hupe1980/bmapdb/blobstore"
	"github.com/hupe1980/bmapdb/internal/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openDB(t *testing.T, optFns ...Option) *DB {
	t.Helper()
	db, err := Open(t.TempDir(), optFns...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestDB_Tables(t *testing.T) {
	db := openDB(t)

	users, err := db.OpenBitmap("users")
	require.NoError(t, err)
	defer users.Close()
	for _, k := range []uint64{1, 5, 9} {
		_, err := users.Set(k)
		require.NoError(t, err)
	}

	ages, err := db.OpenScalar("ages", Uint32Uint32)
	require.NoError(t, err)
	defer ages.Close()
	require.NoError(t, ages.Put(1, uint32(30)))
	require.NoError(t, ages.Put(5, uint32(17)))

	n, err := ages.RangeCount(Inclusive(18), Unbounded())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)

	infos, err := db.List()
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "ages", infos[0].Name)
	assert.Equal(t, KindScalar, infos[0].Kind)

	tbl, err := db.OpenTable("users")
	require.NoError(t, err)
	assert.Equal(t, KindBitmap, tbl.Kind())
	require.NoError(t, tbl.Close())

	assert.Equal(t, 2, db.Stats().OpenTables)
}

func TestDB_Errors(t *testing.T) {
	db := openDB(t)

	_, err := db.OpenTable("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = db.OpenScalar("x", 999)
	assert.ErrorIs(t, err, ErrUnknownTypeCode)

	b, err := db.OpenBitmap("b")
	require.NoError(t, err)
	defer b.Close()
	assert.ErrorIs(t, db.Drop("b"), ErrTableBusy)

	_, err = db.OpenScalar("b", Uint64Uint64)
	assert.ErrorIs(t, err, ErrTypeMismatch)

	err = db.Restore(context.Background(), blobstore.NewMemoryStore(), "nothing")
	assert.ErrorIs(t, err, ErrNotFound)

	err = db.Import(context.Background(), "imp", bytes.NewReader([]byte("not a snapshot")))
	assert.ErrorIs(t, err, ErrCorrupt)
	var ce *CorruptionError
	assert.True(t, errors.As(err, &ce))
}

func TestOpen_InvalidCodec(t *testing.T) {
	_, err := Open(t.TempDir(), WithSnapshotCodec(Codec(42)))
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.ErrorIs(t, err, snapshot.ErrCodec)
}

func TestTranslateError(t *testing.T) {
	assert.Nil(t, translateError(nil))

	err := translateError(fmt.Errorf("open: %w", blobstore.ErrNotFound))
	assert.ErrorIs(t, err, ErrNotFound)

	err = translateError(snapshot.ErrChecksum)
	assert.ErrorIs(t, err, ErrCorrupt)

	err = translateError(snapshot.ErrCodec)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	plain := errors.New("plain")
	assert.Equal(t, plain, translateError(plain))
}

func TestBasicMetricsCollector(t *testing.T) {
	metrics := &BasicMetricsCollector{}
	db := openDB(t, WithMetricsObserver(metrics), WithMemoryLimit(1))

	a, err := db.OpenBitmap("a")
	require.NoError(t, err)
	defer a.Close()
	_, err = a.Set(1)
	require.NoError(t, err)

	b, err := db.OpenBitmap("b")
	require.NoError(t, err)
	defer b.Close()
	_, err = b.Set(1)
	require.NoError(t, err)

	ok, err := a.Test(1)
	require.NoError(t, err)
	assert.True(t, ok)

	var buf bytes.Buffer
	require.NoError(t, db.Export(context.Background(), "a", &buf))
	require.NoError(t, db.Import(context.Background(), "c", &buf))

	s, err := db.OpenScalar("s", Uint64Float64)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Put(1, 2.0))
	require.NoError(t, s.Consolidate())

	stats := metrics.GetStats()
	assert.Equal(t, int64(4), stats.Opens)
	assert.Positive(t, stats.Hibernations)
	assert.Positive(t, stats.HibernatedBytes)
	assert.Positive(t, stats.Wakeups)
	assert.Positive(t, stats.EvictionStarved)
	assert.Equal(t, int64(1), stats.Exports)
	assert.Equal(t, int64(1), stats.Imports)
	assert.Positive(t, stats.SnapshotBytes)
	assert.Equal(t, int64(1), stats.Consolidations)
}

func TestDB_BackupRestore(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	src := openDB(t, WithSnapshotCodec(CodecLZ4), WithMaxBackgroundWorkers(4))
	for i := range 5 {
		tbl, err := src.OpenBitmap(fmt.Sprintf("t%d", i))
		require.NoError(t, err)
		_, err = tbl.Set(uint64(i))
		require.NoError(t, err)
		require.NoError(t, tbl.Close())
	}
	require.NoError(t, src.Backup(ctx, store))

	dst := openDB(t)
	require.NoError(t, dst.Restore(ctx, store))
	infos, err := dst.List()
	require.NoError(t, err)
	assert.Len(t, infos, 5)

	t3, err := dst.OpenBitmap("t3")
	require.NoError(t, err)
	defer t3.Close()
	ok, err := t3.Test(3)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDB_CheckAll(t *testing.T) {
	db := openDB(t, WithLogger(NoopLogger()))
	b, err := db.OpenBitmap("b")
	require.NoError(t, err)
	defer b.Close()

	results, err := db.CheckAll(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)
}

func TestDB_Closed(t *testing.T) {
	db, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = db.OpenBitmap("b")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, db.Close(), ErrClosed)
}
