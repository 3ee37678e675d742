// Package mmap provides growable read-write memory regions backed by files or
// by the Go heap.
//
// # Overview
//
// A Region owns exactly one mapping. File regions are shared mappings of a
// backing file, so writes through Bytes() land in the file without an explicit
// write call. Anonymous regions hold the same kind of content on the heap and
// are used for scratch structures that never reach disk.
//
// # Usage
//
//	r := mmap.NewFile(fs.Default, "t.BMP")
//	if err := r.Load(); err != nil { ... }
//	defer r.Release()
//
//	// Grow the region, new bytes are zero
//	if err := r.Resize(128 * 1024); err != nil { ... }
//	_ = r.Advise(mmap.AccessSequential)
//
//	// Typed, bounds-checked view over the mapping
//	words := mmap.View[uint64](r.Bytes())
//
// # Resizing
//
// Resize always replaces the mapping. Any view obtained before the call is
// invalid afterwards and must be re-derived from Bytes(). Shrinking to zero
// releases the mapping and truncates the file to zero length. The new
// mapping is made before the old one is dropped, so a failed Resize leaves
// the region as it was.
//
// Advise passes paging hints to madvise(2): sequential for full scans,
// random for value files that are read by key.
//
// # Platform Support
//
// File mappings use mmap(2) through golang.org/x/sys/unix. On other platforms
// only anonymous regions are available.
//
// # Thread Safety
//
// A Region is not safe for concurrent use. Callers serialise access with the
// lock of the storage unit that owns the region.
package mmap
