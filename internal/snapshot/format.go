package snapshot

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/hupe1980/bmapdb/internal/hash"
)

// Magic identifies a snapshot file.
const Magic = "BMSNAP01"

// Version is the format version written by this package.
const Version uint16 = 1

// HeaderSize is the encoded size of a Header.
const HeaderSize = 8 + 2 + 1 + 1 + 2 + 8 + 4

var (
	// ErrBadMagic is returned for input that is not a snapshot.
	ErrBadMagic = errors.New("snapshot: bad magic")
	// ErrVersion is returned for a snapshot of an unsupported version.
	ErrVersion = errors.New("snapshot: unsupported version")
	// ErrCodec is returned for an unknown compression codec.
	ErrCodec = errors.New("snapshot: unknown codec")
	// ErrChecksum is returned when a header or body checksum does not match.
	ErrChecksum = errors.New("snapshot: checksum mismatch")
	// ErrRecords is returned when the key count disagrees with the header.
	ErrRecords = errors.New("snapshot: record count mismatch")
)

// Header describes the table a snapshot was taken from. Kind and TypeCode
// are opaque to this package.
type Header struct {
	Version  uint16
	Kind     uint8
	Codec    Codec
	TypeCode uint16
	Records  uint64
}

func (h Header) marshal() []byte {
	buf := make([]byte, 0, HeaderSize)
	buf = append(buf, Magic...)
	buf = binary.LittleEndian.AppendUint16(buf, h.Version)
	buf = append(buf, h.Kind, uint8(h.Codec))
	buf = binary.LittleEndian.AppendUint16(buf, h.TypeCode)
	buf = binary.LittleEndian.AppendUint64(buf, h.Records)
	return binary.LittleEndian.AppendUint32(buf, hash.CRC32C(buf))
}

func readHeader(r io.Reader) (Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return Header{}, fmt.Errorf("%w: short header", ErrBadMagic)
		}
		return Header{}, err
	}
	if string(buf[:8]) != Magic {
		return Header{}, ErrBadMagic
	}
	if got, want := hash.CRC32C(buf[:HeaderSize-4]), binary.LittleEndian.Uint32(buf[HeaderSize-4:]); got != want {
		return Header{}, fmt.Errorf("%w: header", ErrChecksum)
	}
	h := Header{
		Version:  binary.LittleEndian.Uint16(buf[8:]),
		Kind:     buf[10],
		Codec:    Codec(buf[11]),
		TypeCode: binary.LittleEndian.Uint16(buf[12:]),
		Records:  binary.LittleEndian.Uint64(buf[14:]),
	}
	if h.Version != Version {
		return Header{}, fmt.Errorf("%w: %d", ErrVersion, h.Version)
	}
	if err := h.Codec.Validate(); err != nil {
		return Header{}, err
	}
	return h, nil
}
