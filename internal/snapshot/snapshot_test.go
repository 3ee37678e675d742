package snapshot

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"testing"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSnapshot(t *testing.T, codec Codec, keys []uint64, values []float64) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := NewWriter(&buf, Header{Kind: 2, Codec: codec, TypeCode: 819, Records: uint64(len(keys))})
	require.NoError(t, err)

	rb := roaring64.BitmapOf(keys...)
	require.NoError(t, w.WriteBitmap(rb))
	for _, v := range values {
		_, err := w.Write(binary.LittleEndian.AppendUint64(nil, math.Float64bits(v)))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestRoundTrip(t *testing.T) {
	keys := []uint64{1, 7, 42, 1 << 40}
	values := []float64{0.5, -3, 1e9, 2}

	for _, codec := range []Codec{CodecNone, CodecLZ4, CodecZstd} {
		t.Run(codec.String(), func(t *testing.T) {
			data := writeSnapshot(t, codec, keys, values)

			r, err := NewReader(bytes.NewReader(data))
			require.NoError(t, err)
			defer r.Close()

			h := r.Header()
			assert.Equal(t, Version, h.Version)
			assert.Equal(t, uint8(2), h.Kind)
			assert.Equal(t, codec, h.Codec)
			assert.Equal(t, uint16(819), h.TypeCode)
			assert.Equal(t, uint64(len(keys)), h.Records)

			rb, err := r.ReadBitmap()
			require.NoError(t, err)
			assert.Equal(t, keys, rb.ToArray())

			for _, want := range values {
				var v float64
				buf := make([]byte, 8)
				_, err := io.ReadFull(r, buf)
				require.NoError(t, err)
				_, err = binary.Decode(buf, binary.LittleEndian, &v)
				require.NoError(t, err)
				assert.Equal(t, want, v)
			}
			require.NoError(t, r.Verify())
		})
	}
}

func TestEmptyBitmapSnapshot(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, Header{Kind: 1, Codec: CodecZstd})
	require.NoError(t, err)
	require.NoError(t, w.WriteBitmap(roaring64.New()))
	require.NoError(t, w.Close())

	r, err := NewReader(&buf)
	require.NoError(t, err)
	defer r.Close()
	rb, err := r.ReadBitmap()
	require.NoError(t, err)
	assert.True(t, rb.IsEmpty())
	require.NoError(t, r.Verify())
}

func TestBadMagic(t *testing.T) {
	_, err := NewReader(bytes.NewReader([]byte("not a snapshot at all, definitely")))
	require.ErrorIs(t, err, ErrBadMagic)

	_, err = NewReader(bytes.NewReader([]byte("BMS")))
	require.ErrorIs(t, err, ErrBadMagic)
}

func TestHeaderChecksum(t *testing.T) {
	data := writeSnapshot(t, CodecNone, []uint64{1}, []float64{1})
	data[14] ^= 0xff // records

	_, err := NewReader(bytes.NewReader(data))
	require.ErrorIs(t, err, ErrChecksum)
}

func TestBodyChecksum(t *testing.T) {
	data := writeSnapshot(t, CodecNone, []uint64{1, 2, 3}, []float64{1, 2, 3})
	// Flip a bit in the last value; the bitmap stays intact.
	data[len(data)-5] ^= 0x01

	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer r.Close()
	_, err = r.ReadBitmap()
	require.NoError(t, err)
	_, err = io.ReadFull(r, make([]byte, 24))
	require.NoError(t, err)
	require.ErrorIs(t, r.Verify(), ErrChecksum)
}

func TestRecordMismatch(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, Header{Kind: 1, Codec: CodecNone, Records: 5})
	require.NoError(t, err)
	require.ErrorIs(t, w.WriteBitmap(roaring64.BitmapOf(1, 2)), ErrRecords)
}

func TestCodec(t *testing.T) {
	for _, s := range []string{"none", "lz4", "zstd"} {
		c, err := ParseCodec(s)
		require.NoError(t, err)
		assert.Equal(t, s, c.String())
		require.NoError(t, c.Validate())
	}
	_, err := ParseCodec("snappy")
	require.ErrorIs(t, err, ErrCodec)
	require.ErrorIs(t, Codec(9).Validate(), ErrCodec)
}
