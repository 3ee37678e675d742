package mmap

import "errors"

// AccessPattern is a paging hint for a file region.
type AccessPattern int

const (
	// AccessDefault restores the kernel's default read-ahead.
	AccessDefault AccessPattern = iota
	// AccessSequential suits full scans such as recounts and exports.
	AccessSequential
	// AccessRandom suits value files read by key.
	AccessRandom
)

var (
	// ErrInvalidSize is returned for negative or unrepresentable sizes.
	ErrInvalidSize = errors.New("mmap: invalid size")
	// ErrUnsupported is returned when file mappings are not available on this platform.
	ErrUnsupported = errors.New("mmap: file mappings not supported on this platform")
)
