package engine

import (
	"fmt"
	"strconv"
)

// Kind is the storage engine of a table.
type Kind uint8

const (
	// KindBitmap stores a set of keys.
	KindBitmap Kind = iota + 1
	// KindScalar stores one scalar value per key.
	KindScalar
)

func (k Kind) String() string {
	switch k {
	case KindBitmap:
		return "bitmap"
	case KindScalar:
		return "scalar"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// ParseKind parses the String form of a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "bitmap":
		return KindBitmap, nil
	case "scalar":
		return KindScalar, nil
	default:
		return 0, fmt.Errorf("%w: kind %q", ErrInvalidArgument, s)
	}
}

// TypeCode selects the index width and value type of a scalar table:
// index_width*100 + signed*10 + value_code.
//
// Index widths are 1, 2, 4 and 8 bytes. Value codes 1, 2, 4 and 8 are
// integers of that width; 5 is float32 and 9 is float64, both signed.
type TypeCode uint16

// Common type codes.
const (
	Uint32Float64 TypeCode = 419
	Uint32Int64   TypeCode = 418
	Uint32Uint32  TypeCode = 404
	Uint64Float64 TypeCode = 819
	Uint64Uint64  TypeCode = 808
)

// ValueType is the value type selected by a type code.
type ValueType uint8

const (
	Int8 ValueType = iota + 1
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Float32
	Float64
)

var valueTypeNames = [...]string{
	Int8: "int8", Int16: "int16", Int32: "int32", Int64: "int64",
	Uint8: "uint8", Uint16: "uint16", Uint32: "uint32", Uint64: "uint64",
	Float32: "float32", Float64: "float64",
}

func (v ValueType) String() string {
	if int(v) < len(valueTypeNames) && valueTypeNames[v] != "" {
		return valueTypeNames[v]
	}
	return "valuetype(" + strconv.Itoa(int(v)) + ")"
}

// Width returns the size of a value in bytes.
func (v ValueType) Width() int {
	switch v {
	case Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	default:
		return 8
	}
}

// IndexWidth returns the key width in bytes.
func (c TypeCode) IndexWidth() int { return int(c / 100) }

// Signed reports the signed flag.
func (c TypeCode) Signed() bool { return (c/10)%10 == 1 }

// ValueCode returns the raw value code.
func (c TypeCode) ValueCode() int { return int(c % 10) }

// Validate checks that c names a supported (index width, value type) pair.
func (c TypeCode) Validate() error {
	_, err := c.ValueType()
	return err
}

// ValueType decodes the value type of c.
func (c TypeCode) ValueType() (ValueType, error) {
	if c > 999 || (c/10)%10 > 1 {
		return 0, fmt.Errorf("%w: %d", ErrUnknownTypeCode, c)
	}
	switch c.IndexWidth() {
	case 1, 2, 4, 8:
	default:
		return 0, fmt.Errorf("%w: %d: index width %d", ErrUnknownTypeCode, c, c.IndexWidth())
	}

	signed := c.Signed()
	switch c.ValueCode() {
	case 1:
		return pick(signed, Int8, Uint8), nil
	case 2:
		return pick(signed, Int16, Uint16), nil
	case 4:
		return pick(signed, Int32, Uint32), nil
	case 8:
		return pick(signed, Int64, Uint64), nil
	case 5:
		if signed {
			return Float32, nil
		}
	case 9:
		if signed {
			return Float64, nil
		}
	}
	return 0, fmt.Errorf("%w: %d: value code %d", ErrUnknownTypeCode, c, c.ValueCode())
}

func pick(signed bool, s, u ValueType) ValueType {
	if signed {
		return s
	}
	return u
}

// MaxKey returns the largest key the index width can hold.
func (c TypeCode) MaxKey() uint64 {
	w := c.IndexWidth()
	if w >= 8 {
		return ^uint64(0)
	}
	return 1<<(8*w) - 1
}

func (c TypeCode) String() string {
	vt, err := c.ValueType()
	if err != nil {
		return "typecode(" + strconv.Itoa(int(c)) + ")"
	}
	return fmt.Sprintf("%d(uint%d->%s)", uint16(c), 8*c.IndexWidth(), vt)
}

// ParseTypeCode parses a decimal type code and validates it.
func ParseTypeCode(s string) (TypeCode, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnknownTypeCode, s)
	}
	c := TypeCode(n)
	if err := c.Validate(); err != nil {
		return 0, err
	}
	return c, nil
}
