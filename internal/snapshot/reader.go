package snapshot

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"io"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	crc "github.com/hupe1980/bmapdb/internal/hash"
)

// Reader reads one snapshot. Call ReadBitmap, then Read the values, then
// Verify.
type Reader struct {
	dec    io.ReadCloser
	crc    hash.Hash32
	body   io.Reader
	header Header
	read   bool
}

// NewReader reads and validates the header and starts decompressing the
// body.
func NewReader(r io.Reader) (*Reader, error) {
	h, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	dec, err := h.Codec.newDecoder(r)
	if err != nil {
		return nil, err
	}
	sum := crc.NewCRC32C()
	return &Reader{
		dec:    dec,
		crc:    sum,
		body:   io.TeeReader(dec, sum),
		header: h,
	}, nil
}

// Header returns the snapshot header.
func (r *Reader) Header() Header { return r.header }

// ReadBitmap reads the key set and checks its cardinality against the
// header.
func (r *Reader) ReadBitmap() (*roaring64.Bitmap, error) {
	if r.read {
		return nil, errors.New("snapshot: bitmap already read")
	}
	r.read = true

	var size [8]byte
	if _, err := io.ReadFull(r.body, size[:]); err != nil {
		return nil, fmt.Errorf("snapshot: read bitmap size: %w", err)
	}
	n := binary.LittleEndian.Uint64(size[:])
	lr := io.LimitReader(r.body, int64(n))

	rb := roaring64.New()
	if _, err := rb.ReadFrom(lr); err != nil {
		return nil, fmt.Errorf("snapshot: read bitmap: %w", err)
	}
	if _, err := io.Copy(io.Discard, lr); err != nil {
		return nil, err
	}
	if got := rb.GetCardinality(); got != r.header.Records {
		return nil, fmt.Errorf("%w: header %d, bitmap %d", ErrRecords, r.header.Records, got)
	}
	return rb, nil
}

// Read reads encoded values from the body.
func (r *Reader) Read(p []byte) (int, error) {
	if !r.read {
		return 0, errors.New("snapshot: values read before bitmap")
	}
	return r.body.Read(p)
}

// Verify reads the body checksum and compares it with everything read so
// far. It must be called after the last value was read.
func (r *Reader) Verify() error {
	want := r.crc.Sum32()
	var sum [4]byte
	if _, err := io.ReadFull(r.dec, sum[:]); err != nil {
		return fmt.Errorf("%w: missing body checksum: %w", ErrChecksum, err)
	}
	if got := binary.LittleEndian.Uint32(sum[:]); got != want {
		return fmt.Errorf("%w: body", ErrChecksum)
	}
	return nil
}

// Close releases the decompressor. It does not close the underlying
// reader.
func (r *Reader) Close() error { return r.dec.Close() }
