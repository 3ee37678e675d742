package conv

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
)

// ErrOverflow is returned when a value does not fit the target type.
var ErrOverflow = errors.New("integer overflow")

// Uint64ToInt converts v to int.
func Uint64ToInt(v uint64) (int, error) {
	if v > math.MaxInt {
		return 0, fmt.Errorf("%w: %d does not fit in int", ErrOverflow, v)
	}
	return int(v), nil
}

// Bytes returns n elements of elemSize bytes as an int byte count.
func Bytes(n, elemSize uint64) (int, error) {
	hi, lo := bits.Mul64(n, elemSize)
	if hi != 0 {
		return 0, fmt.Errorf("%w: %d elements of %d bytes", ErrOverflow, n, elemSize)
	}
	return Uint64ToInt(lo)
}

// RoundUp rounds n up to the next multiple of m. m must be positive.
func RoundUp(n, m uint64) (uint64, error) {
	if m == 0 {
		return 0, fmt.Errorf("%w: round to multiple of zero", ErrOverflow)
	}
	r := n % m
	if r == 0 {
		return n, nil
	}
	sum, carry := bits.Add64(n, m-r, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: %d rounded to a multiple of %d", ErrOverflow, n, m)
	}
	return sum, nil
}
