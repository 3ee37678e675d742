// Package bitmap implements the bitmap store: a set of uint64 keys kept as a
// bit-vector over a memory-mapped file.
//
// # Layout
//
// The backing file is a sequence of little-endian 64-bit words. Key k lives
// at word k>>6, bit k&63. The file length is always a multiple of ChunkBytes;
// a file of any other length marks the store crashed when it is loaded.
//
// # Growth
//
// The word array grows and shrinks in whole chunks of ChunkWords words, so
// setting keys one by one remaps the file once per chunk rather than once per
// key. Unsetting the highest key shrinks the array to the chunk that holds
// the new highest key.
//
// # Locking
//
// Store methods do not lock. Callers hold the embedded unit's lock, or own
// the store exclusively (child stores of a composite).
package bitmap
