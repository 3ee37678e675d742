// Package snapshot reads and writes portable single-file table snapshots.
//
// # Format
//
// A snapshot starts with an uncompressed header:
//
//	magic    [8]byte  "BMSNAP01"
//	version  uint16
//	kind     uint8
//	codec    uint8
//	typecode uint16
//	records  uint64
//	crc      uint32   CRC32C of the preceding header bytes
//
// The rest of the file is one stream compressed with the header's codec:
//
//	size     uint64   length of the roaring bitmap
//	keys     [size]byte roaring64 portable serialization
//	values   records fixed-width little-endian values in key order
//	crc      uint32   CRC32C of the preceding body bytes
//
// Bitmap snapshots carry no values. All integers are little endian.
package snapshot
