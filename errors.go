package bmapdb

import (
	"errors"
	"fmt"

	"github.com/hupe1980/bmapdb/blobstore"
	"github.com/hupe1980/bmapdb/internal/engine"
	"github.com/hupe1980/bmapdb/internal/mmap"
	"github.com/hupe1980/bmapdb/internal/snapshot"
)

var (
	// ErrClosed is returned when using a closed database or handle.
	ErrClosed = engine.ErrClosed
	// ErrCrashed is returned by operations on a table marked crashed. Only
	// Repair clears it.
	ErrCrashed = engine.ErrCrashed
	// ErrNotFound is returned when a table, snapshot or checksum does not
	// exist.
	ErrNotFound = engine.ErrNotFound
	// ErrInvalidArgument is returned for invalid names, keys and options.
	ErrInvalidArgument = engine.ErrInvalidArgument
	// ErrTypeMismatch is returned when a table is used with the wrong kind
	// or value type.
	ErrTypeMismatch = engine.ErrTypeMismatch
	// ErrCorrupt is returned when damaged data is detected.
	ErrCorrupt = engine.ErrCorrupt
	// ErrUnknownTypeCode is returned for an unsupported type code.
	ErrUnknownTypeCode = engine.ErrUnknownTypeCode
	// ErrTableBusy is returned when dropping an open table or hibernating an
	// externally locked one.
	ErrTableBusy = engine.ErrTableBusy
	// ErrKeyTooLarge is returned, along with ErrInvalidArgument, for keys
	// above MaxKey.
	ErrKeyTooLarge = engine.ErrKeyTooLarge
	// ErrUnsupported is returned where file mappings are unavailable.
	ErrUnsupported = mmap.ErrUnsupported
)

// CorruptionError describes a damaged table file or snapshot.
type CorruptionError = engine.CorruptionError

func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Not found unification.
	if errors.Is(err, blobstore.ErrNotFound) && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	// Snapshot damage outside an import.
	var ce *CorruptionError
	if !errors.As(err, &ce) {
		for _, target := range []error{snapshot.ErrBadMagic, snapshot.ErrChecksum,
			snapshot.ErrRecords, snapshot.ErrVersion} {
			if errors.Is(err, target) {
				return fmt.Errorf("%w: %w", ErrCorrupt, err)
			}
		}
	}
	if errors.Is(err, snapshot.ErrCodec) && !errors.Is(err, ErrInvalidArgument) {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	return err
}
