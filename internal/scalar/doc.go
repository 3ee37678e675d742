// Package scalar implements the sorted scalar-array store.
//
// A store keeps one value slot per key in a dense value array (the .SAR file)
// and a sort-order index of keys (the .SAI file). A presence bitmap (.BMP)
// records which slots hold a live value.
//
// The index is maintained lazily. Puts append keys to an unsorted tail and
// removes only clear the presence bit; Consolidate sorts the tail, purges
// stale committed entries and merges both runs. Every operation that needs an
// exact order (value search, range counts, iteration by value) consolidates
// first, so callers never observe an unsorted index.
//
// Entries are ordered by (value, key). Values compare with cmp.Compare, which
// places NaN before every other float.
package scalar
