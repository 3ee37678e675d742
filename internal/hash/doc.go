// Package hash provides the CRC32-Castagnoli checksum used by snapshot
// headers, snapshot bodies and S3 upload checksums.
//
//	sum := hash.CRC32C(header)
//
//	h := hash.NewCRC32C()
//	_, _ = h.Write(chunk)
//	sum := h.Sum32()
package hash
