package mmap

import "unsafe"

// Scalar is the set of fixed-width element types a region can be viewed as.
type Scalar interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~int8 | ~int16 | ~int32 | ~int64 |
		~float32 | ~float64
}

// View reinterprets b as a slice of T. Trailing bytes that do not fill a
// whole element are not part of the view.
//
// The view aliases b: it is invalidated by the same calls that invalidate b.
func View[T Scalar](b []byte) []T {
	var zero T
	n := len(b) / int(unsafe.Sizeof(zero))
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), n) //nolint:gosec // b is mapped or aligned heap memory
}

// SizeOf returns the width of T in bytes.
func SizeOf[T Scalar]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}

// Scratch is a temporary anonymous mapping outside the Go heap.
type Scratch struct {
	data  []byte
	unmap func([]byte) error
}

// NewScratch maps size bytes of anonymous memory. Allocation failures are
// returned rather than aborting the process.
func NewScratch(size int) (*Scratch, error) {
	if size < 0 {
		return nil, ErrInvalidSize
	}
	if size == 0 {
		return &Scratch{}, nil
	}
	data, unmap, err := osMapAnon(size)
	if err != nil {
		return nil, err
	}
	return &Scratch{data: data, unmap: unmap}, nil
}

// Bytes returns the scratch memory.
func (s *Scratch) Bytes() []byte { return s.data }

// Free unmaps the scratch memory. It is idempotent.
func (s *Scratch) Free() error {
	if s.data == nil {
		return nil
	}
	data := s.data
	s.data = nil
	return s.unmap(data)
}
