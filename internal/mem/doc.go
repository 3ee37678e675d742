// Package mem allocates the heap buffers behind anonymous regions. Buffers
// start on a cache line so typed views of any fixed-width element type are
// aligned.
package mem
