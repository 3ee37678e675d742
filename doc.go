// Package bmapdb is an embedded store of named bitmap and scalar tables
// backed by memory-mapped files.
//
// A bitmap table is a set of uint64 keys. A scalar table maps keys to one
// fixed-width number each and keeps a sorted index by value, so it answers
// range and nearest-value queries. All tables of a DB share one memory
// budget: when the mapped bytes exceed it, the least recently used tables
// are hibernated (unmapped) and transparently woken on their next use.
//
// # Quick Start
//
//	db, err := bmapdb.Open("./data", bmapdb.WithMemoryLimit(256<<20))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	active, _ := db.OpenBitmap("active_users")
//	defer active.Close()
//	active.Set(42)
//
//	scores, _ := db.OpenScalar("scores", bmapdb.Uint32Float64)
//	defer scores.Close()
//	scores.Put(42, 0.97)
//
//	// Every key with a score in [0.5, 1.0].
//	scores.AscendRange(bmapdb.Inclusive(0.5), bmapdb.Inclusive(1.0),
//	    func(key uint64, v any) bool { return true })
//
// # Type Codes
//
// A scalar table's type code selects its key width and value type as
// index_width*100 + signed*10 + value_code; 419 is uint32 keys with
// float64 values. See TypeCode.
//
// # Handles and Locking
//
// Opening a table twice yields two handles to one shared table. Handles
// are safe for concurrent use. ExternalLock pins a table in memory and
// makes it visible to FindByChecksum until ExternalUnlock.
//
// # Snapshots and Backups
//
// Export and Import move one table through a portable, compressed
// snapshot. Backup and Restore do the same for many tables against a
// blobstore.Store: a local directory, memory, MinIO or S3.
//
//	store, _ := s3.New(ctx, "my-bucket", s3.WithPrefix("bmapdb/"))
//	err := db.Backup(ctx, store)
package bmapdb
