//go:build !unix

package mmap

import "github.com/hupe1980/bmapdb/internal/fs"

func osMapFile(fs.File, int) ([]byte, func([]byte) error, error) {
	return nil, nil, ErrUnsupported
}

func osMapAnon(size int) ([]byte, func([]byte) error, error) {
	return make([]byte, size), func([]byte) error { return nil }, nil
}

func osSync([]byte) error { return nil }

func osAdvise([]byte, AccessPattern) error { return nil }
