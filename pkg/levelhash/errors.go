package levelhash

import "errors"

// Error classification sentinels.
//
// Implementations MAY wrap these with additional context via fmt.Errorf's
// %w verb. Callers MUST classify errors using errors.Is.
var (
	// ErrKeyExists is returned by Insert when the key is already present.
	ErrKeyExists = errors.New("levelhash: key exists")

	// ErrKeyNotFound is returned by Get/Update/Delete when the key is absent.
	ErrKeyNotFound = errors.New("levelhash: key not found")

	// ErrBadMagic indicates a file's magic number does not match its kind.
	// Latches the handle closed.
	ErrBadMagic = errors.New("levelhash: bad magic number")

	// ErrVersionMismatch indicates an on-disk version field does not match
	// the version this package writes.
	ErrVersionMismatch = errors.New("levelhash: version mismatch")

	// ErrCorruptEntry indicates a values-store entry failed structural
	// validation (entry_size inconsistent with key_size+value_size, or a
	// next/prev address out of bounds). Latches the handle closed.
	ErrCorruptEntry = errors.New("levelhash: corrupt entry")

	// ErrIO wraps an underlying read/write/mmap/resize failure.
	ErrIO = errors.New("levelhash: io error")

	// ErrOutOfSpace indicates a File-Backed Region could not grow.
	ErrOutOfSpace = errors.New("levelhash: out of space")

	// ErrExpansionFailed indicates an expansion could not place every entry:
	// the bottom level still had stragglers after the interim level was
	// doubled maxDisplacementRounds times, an entry could not be re-seeded
	// into a doubled interim, or an insert found no free slot even after
	// expanding.
	ErrExpansionFailed = errors.New("levelhash: expansion failed")

	// ErrClosed is returned by any call on a handle after Close.
	ErrClosed = errors.New("levelhash: closed")

	// ErrInvalidInput indicates a caller-supplied argument is invalid
	// (wrong geometry, empty key, oversized key/value, etc).
	ErrInvalidInput = errors.New("levelhash: invalid input")

	// ErrBusy is returned by the optional Guard when another writer already
	// holds the cross-process or in-process lock for this index.
	ErrBusy = errors.New("levelhash: busy")
)
