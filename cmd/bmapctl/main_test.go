package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/hupe1980/bmapdb"
	"github.com/hupe1980/bmapdb/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	level, err := parseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	_, err = parseLevel("loud")
	assert.Error(t, err)
}

func TestOpenStore_Local(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "backup")
	store, err := openStore(context.Background(), dir)
	require.NoError(t, err)
	assert.IsType(t, &blobstore.LocalStore{}, store)

	_, err = os.Stat(dir)
	assert.NoError(t, err)
}

func TestOpenStore_MinioInvalid(t *testing.T) {
	_, err := openStore(context.Background(), "minio://localhost:9000")
	assert.Error(t, err)
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	db, err := bmapdb.Open(dir)
	require.NoError(t, err)
	bm, err := db.OpenBitmap("tags")
	require.NoError(t, err)
	_, err = bm.Set(7)
	require.NoError(t, err)
	require.NoError(t, bm.Close())
	require.NoError(t, db.Close())

	dbDir = dir
	codecName = "lz4"
	logLevel = "error"
	t.Cleanup(func() { dbDir, codecName, logLevel = ".", "zstd", "warn" })

	snap := filepath.Join(t.TempDir(), "tags.bmsnap")
	run := func(args ...string) error {
		rootCmd.SetArgs(args)
		return rootCmd.ExecuteContext(context.Background())
	}
	require.NoError(t, run("list"))
	require.NoError(t, run("check"))
	require.NoError(t, run("export", "tags", snap))
	require.NoError(t, run("import", "copy", snap))

	backup := filepath.Join(t.TempDir(), "backup")
	require.NoError(t, run("backup", backup))
	require.NoError(t, run("drop", "copy"))
	require.NoError(t, run("restore", backup, "copy"))

	db, err = bmapdb.Open(dir)
	require.NoError(t, err)
	defer db.Close()
	cp, err := db.OpenBitmap("copy")
	require.NoError(t, err)
	defer cp.Close()
	ok, err := cp.Test(7)
	require.NoError(t, err)
	assert.True(t, ok)
}
