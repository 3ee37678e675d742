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

// Writer writes one snapshot. Call WriteBitmap once, then Write the values,
// then Close.
type Writer struct {
	enc     io.WriteCloser
	crc     hash.Hash32
	body    io.Writer
	header  Header
	written bool
	closed  bool
}

// NewWriter writes the header to w and starts the compressed body. The
// header version is set by the writer.
func NewWriter(w io.Writer, h Header) (*Writer, error) {
	h.Version = Version
	if err := h.Codec.Validate(); err != nil {
		return nil, err
	}
	if _, err := w.Write(h.marshal()); err != nil {
		return nil, fmt.Errorf("snapshot: write header: %w", err)
	}
	enc, err := h.Codec.newEncoder(w)
	if err != nil {
		return nil, err
	}
	sum := crc.NewCRC32C()
	return &Writer{
		enc:    enc,
		crc:    sum,
		body:   io.MultiWriter(enc, sum),
		header: h,
	}, nil
}

// WriteBitmap writes the key set. Its cardinality must equal the header's
// record count.
func (w *Writer) WriteBitmap(rb *roaring64.Bitmap) error {
	if w.written {
		return errors.New("snapshot: bitmap already written")
	}
	w.written = true
	if n := rb.GetCardinality(); n != w.header.Records {
		return fmt.Errorf("%w: header %d, bitmap %d", ErrRecords, w.header.Records, n)
	}
	var size [8]byte
	binary.LittleEndian.PutUint64(size[:], rb.GetSerializedSizeInBytes())
	if _, err := w.body.Write(size[:]); err != nil {
		return err
	}
	_, err := rb.WriteTo(w.body)
	return err
}

// Write appends encoded values to the body.
func (w *Writer) Write(p []byte) (int, error) {
	if !w.written {
		return 0, errors.New("snapshot: values written before bitmap")
	}
	return w.body.Write(p)
}

// Close writes the body checksum and flushes the compressed stream. It does
// not close the underlying writer.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if !w.written {
		_ = w.enc.Close()
		return errors.New("snapshot: closed before bitmap was written")
	}
	var sum [4]byte
	binary.LittleEndian.PutUint32(sum[:], w.crc.Sum32())
	if _, err := w.enc.Write(sum[:]); err != nil {
		_ = w.enc.Close()
		return err
	}
	return w.enc.Close()
}
