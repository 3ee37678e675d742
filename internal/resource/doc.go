// Package resource tracks engine-wide resources.
//
// The Controller covers three concerns:
//
//   - Memory: a signed counter of bytes currently mapped by open tables,
//     compared against a soft budget. Exceeding the budget is not an error;
//     the engine reacts by hibernating idle tables.
//   - Concurrency: a weighted semaphore bounding background jobs such as
//     engine-wide consolidation, checks and backups.
//   - IO: a token bucket throttling snapshot export and import so they do
//     not starve foreground table access.
//
// # Memory Accounting
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes: 1 << 30,
//	})
//
//	rc.Add(int64(newSize - oldSize))
//	if rc.OverLimit() {
//	    // hibernate the coldest idle table
//	}
//
// # Rate-Limited IO
//
//	w := resource.NewRateLimitedWriter(ctx, file, rc)
//
// All methods are safe on a nil *Controller, which behaves as unlimited.
package resource
