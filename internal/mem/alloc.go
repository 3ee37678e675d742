package mem

import (
	"errors"
	"fmt"
	"unsafe"
)

// Alignment is the byte alignment of every buffer returned by this package.
const Alignment = 64

// MaxSize bounds a single buffer. Larger requests fail with ErrTooLarge
// instead of reaching the allocator.
const MaxSize uint64 = 1 << 40

// ErrTooLarge is returned for sizes above MaxSize or sizes the runtime
// refuses to allocate.
var ErrTooLarge = errors.New("mem: allocation too large")

// AllocAligned returns a zeroed buffer of size bytes starting on an
// Alignment boundary. Its capacity equals its length. A size of zero or less
// returns nil.
func AllocAligned(size int) (buf []byte, err error) {
	if size <= 0 {
		return nil, nil
	}
	if uint64(size) > MaxSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, size)
	}
	defer func() {
		if r := recover(); r != nil {
			buf, err = nil, fmt.Errorf("%w: %d bytes: %v", ErrTooLarge, size, r)
		}
	}()
	raw := make([]byte, size+Alignment)
	addr := uintptr(unsafe.Pointer(&raw[0])) //nolint:gosec // alignment needs the address
	off := int((Alignment - addr%Alignment) % Alignment)
	return raw[off : off+size : off+size], nil
}

// Realloc returns an aligned buffer of size bytes holding the common prefix
// of old. Growth reads as zero. On error old is untouched.
func Realloc(old []byte, size int) ([]byte, error) {
	if size <= 0 {
		return nil, nil
	}
	if len(old) == size {
		return old, nil
	}
	buf, err := AllocAligned(size)
	if err != nil {
		return nil, err
	}
	copy(buf, old)
	return buf, nil
}
