// Package engine ties bitmap and scalar stores together into named tables.
//
// An Engine owns a directory of tables, the shared-table registry and the
// memory budget. Every open table is a reference-counted share: all handles
// to the same name use one store. When the mapped bytes exceed the memory
// limit, the least recently accessed table that is neither busy nor
// externally locked is hibernated; the next operation on it wakes it up.
// Handles pin a table in memory with ExternalLock.
//
// # Locking
//
// There are two lock tiers: one mutex per table and the engine mutex that
// guards the registry and memory accounting. A goroutine holding a table
// lock may take the engine lock; the engine lock is never held while
// blocking on a table lock. Eviction only try-locks tables and skips busy
// ones. Operations on several tables lock them in name order.
//
// # Snapshots
//
// Export and Import move a single table through the portable format of
// package snapshot. Backup and Restore do the same for many tables against
// a blobstore.Store.
package engine
