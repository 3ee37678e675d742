package mmap

import (
	"errors"
	"fmt"
	"os"

	"github.com/hupe1980/bmapdb/internal/fs"
	"github.com/hupe1980/bmapdb/internal/mem"
)

// Region is a growable read-write memory region.
//
// File regions are MAP_SHARED mappings of a backing file. Anonymous regions
// (empty path) are 64-byte aligned heap buffers.
type Region struct {
	fsys  fs.FileSystem
	path  string
	data  []byte
	size  int
	unmap func([]byte) error
}

// NewFile returns an unmapped region for the file at path. Nothing is
// opened until Load or Resize.
func NewFile(fsys fs.FileSystem, path string) *Region {
	if fsys == nil {
		fsys = fs.Default
	}
	return &Region{fsys: fsys, path: path}
}

// NewAnon returns an empty anonymous region.
func NewAnon() *Region {
	return &Region{}
}

// Anonymous reports whether the region lives on the heap.
func (r *Region) Anonymous() bool { return r.path == "" }

// Path returns the backing file path, empty for anonymous regions.
func (r *Region) Path() string { return r.path }

// Bytes returns the mapped bytes. The slice is valid until the next Resize
// or Release.
func (r *Region) Bytes() []byte { return r.data }

// Len returns the mapped size in bytes.
func (r *Region) Len() int { return r.size }

// Load maps the backing file at its current length. It is a no-op for
// anonymous regions and for regions that are already mapped.
func (r *Region) Load() error {
	if r.Anonymous() || r.data != nil {
		return nil
	}

	f, err := r.fsys.OpenFile(r.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("mmap: open %s: %w", r.path, err)
	}
	defer func() { _ = f.Close() }()

	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("mmap: stat %s: %w", r.path, err)
	}
	size := fi.Size()
	if size < 0 || int64(int(size)) != size {
		return ErrInvalidSize
	}
	if size == 0 {
		r.size = 0
		return nil
	}

	data, unmap, err := osMapFile(f, int(size))
	if err != nil {
		return fmt.Errorf("mmap: map %s: %w", r.path, err)
	}
	r.data, r.size, r.unmap = data, int(size), unmap
	return nil
}

// Resize remaps the region to exactly newSize bytes. Bytes added by growth
// read as zero. A newSize of zero releases the mapping; for file regions the
// file is truncated to zero length.
//
// A failed Resize leaves the old mapping and file size in place, unless the
// file could not be restored either; then the region is released and Len
// reports zero.
//
// Resize panics if the region's own bookkeeping is inconsistent (memory held
// with a zero size or vice versa): that is a broken invariant, not a
// recoverable condition.
func (r *Region) Resize(newSize int) error {
	if newSize < 0 {
		return ErrInvalidSize
	}
	if (r.data != nil) != (r.size != 0) {
		panic(fmt.Sprintf("mmap: inconsistent region %q: mapped=%t size=%d", r.path, r.data != nil, r.size))
	}
	if newSize == r.size {
		return nil
	}
	if r.Anonymous() {
		return r.resizeAnon(newSize)
	}
	return r.resizeFile(newSize)
}

func (r *Region) resizeAnon(newSize int) error {
	buf, err := mem.Realloc(r.data, newSize)
	if err != nil {
		return fmt.Errorf("mmap: grow to %d: %w", newSize, err)
	}
	r.data, r.size = buf, newSize
	return nil
}

// resizeFile sets the new file length and maps it before the old mapping is
// dropped, so any failure can fall back to the old state.
func (r *Region) resizeFile(newSize int) error {
	f, err := r.fsys.OpenFile(r.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("mmap: open %s: %w", r.path, err)
	}
	defer func() { _ = f.Close() }()

	// A failed truncate leaves the file length unchanged.
	if err := f.Truncate(int64(newSize)); err != nil {
		return fmt.Errorf("mmap: truncate %s to %d: %w", r.path, newSize, err)
	}
	if newSize == 0 {
		return r.release()
	}

	data, unmap, err := osMapFile(f, newSize)
	if err != nil {
		return r.restore(f, fmt.Errorf("mmap: map %s: %w", r.path, err))
	}
	if err := r.release(); err != nil {
		_ = unmap(data)
		return err
	}
	r.data, r.size, r.unmap = data, newSize, unmap
	return nil
}

// restore puts the file back to the mapped length after a failed resize.
func (r *Region) restore(f fs.File, cause error) error {
	if err := f.Truncate(int64(r.size)); err != nil {
		_ = r.release()
		return errors.Join(cause, fmt.Errorf("mmap: restore %s: %w", r.path, err))
	}
	return cause
}

// Release drops the mapping without touching the backing file. The region
// can be mapped again with Load. Anonymous content is discarded.
func (r *Region) Release() error {
	return r.release()
}

func (r *Region) release() error {
	if r.data == nil {
		r.size = 0
		return nil
	}
	var err error
	if r.unmap != nil {
		err = r.unmap(r.data)
	}
	r.data, r.size, r.unmap = nil, 0, nil
	if err != nil {
		return fmt.Errorf("mmap: unmap %s: %w", r.path, err)
	}
	return nil
}

// Sync flushes dirty pages of a file region to its backing file.
func (r *Region) Sync() error {
	if r.Anonymous() {
		return nil
	}
	return osSync(r.data)
}

// Advise provides hints to the kernel about how the region will be accessed.
func (r *Region) Advise(pattern AccessPattern) error {
	if r.Anonymous() {
		return nil
	}
	return osAdvise(r.data, pattern)
}

// Remove releases the mapping and deletes the backing file.
func (r *Region) Remove() error {
	if err := r.release(); err != nil {
		return err
	}
	if r.Anonymous() {
		return nil
	}
	if err := r.fsys.Remove(r.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
