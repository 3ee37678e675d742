package engine

import (
	"errors"
	"fmt"

	"github.com/hupe1980/bmapdb/internal/bitmap"
	"github.com/hupe1980/bmapdb/internal/unit"
)

var (
	// ErrClosed is returned when an operation is attempted on a closed engine or table.
	ErrClosed = errors.New("engine closed")

	// ErrCrashed is returned by operations on a table marked crashed. Only
	// Repair clears it.
	ErrCrashed = unit.ErrCrashed

	// ErrNotFound is returned when a table or key does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument is returned when an argument is invalid (e.g. a key wider than the table's index).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrTypeMismatch is returned when a table is used with the wrong kind or value type.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrCorrupt is returned when data corruption is detected.
	ErrCorrupt = errors.New("data corruption detected")

	// ErrUnknownTypeCode is returned for a type code outside the supported set.
	ErrUnknownTypeCode = errors.New("unknown type code")

	// ErrTableBusy is returned when dropping or restoring a table that is open.
	ErrTableBusy = errors.New("table is open")

	// ErrKeyTooLarge is returned for keys above MaxKey. It is always wrapped
	// together with ErrInvalidArgument.
	ErrKeyTooLarge = bitmap.ErrKeyTooLarge
)

// keyError tags a rejected key as an invalid argument.
func keyError(err error) error {
	if errors.Is(err, ErrKeyTooLarge) && !errors.Is(err, ErrInvalidArgument) {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return err
}

// CorruptionError describes a damaged table file.
type CorruptionError struct {
	Table  string
	File   string
	Reason error
}

func (e *CorruptionError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("table %s: %s: %v", e.Table, e.File, e.Reason)
	}
	return fmt.Sprintf("table %s: %v", e.Table, e.Reason)
}

func (e *CorruptionError) Unwrap() []error {
	return []error{ErrCorrupt, e.Reason}
}
