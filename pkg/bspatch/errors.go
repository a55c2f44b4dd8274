package bspatch

import "errors"

// Sentinel error kinds, compared with errors.Is. Every error this
// package returns wraps exactly one of these, except that ApplyFile
// passes on extent.Parse and extent.Open errors, which wrap package
// extent's own sentinels.
var (
	// ErrCorruptPatch covers bad magic, negative declared lengths, a
	// truncated sub-stream, a negative control x/y, a sanity-bound
	// violation, or new_pos != N at exhaustion.
	ErrCorruptPatch = errors.New("bspatch: corrupt patch")
	// ErrIo wraps a propagated lower-level read/write/open failure.
	ErrIo = errors.New("bspatch: i/o error")
	// ErrOutOfMemory is returned when allocating the new-image buffer
	// itself fails (as opposed to the declared size being rejected
	// outright; see ErrTooLarge).
	ErrOutOfMemory = errors.New("bspatch: out of memory")
	// ErrTooLarge is returned when the patch header declares a new-image
	// size above the configured sanity ceiling.
	ErrTooLarge = errors.New("bspatch: declared new-image size exceeds ceiling")
)
