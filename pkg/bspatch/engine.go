package bspatch

import (
	"fmt"
	"io"
)

// DefaultMaxImageSize is the sanity ceiling applied to a patch header's
// declared new-image size when no Options.MaxImageSize is given.
const DefaultMaxImageSize = 1 << 30 // 1 GiB

// oldReadChunk bounds how many bytes of the "old" image are read into a
// temporary buffer per control triple while performing the additive
// merge, so a single pathologically large x doesn't require a second
// buffer the size of the whole image on top of the new-image buffer.
const oldReadChunk = 64 * 1024

// reconstruct drives the control/diff/extra loop described by the
// BSDIFF40 format, producing the full new image in memory. old supplies
// the additive source; its logical length is not needed up front —
// positions outside whatever old actually has simply contribute zero to
// the additive step, whether because old.ReadAt returns fewer bytes near
// its end or because the caller's old view reports its own bounds.
func reconstruct(old io.ReaderAt, ts *tripleStream, newSize int64, maxImageSize int64) ([]byte, error) {
	if maxImageSize <= 0 {
		maxImageSize = DefaultMaxImageSize
	}
	if newSize > maxImageSize {
		return nil, fmt.Errorf("%w: declared size %d exceeds ceiling %d", ErrTooLarge, newSize, maxImageSize)
	}

	newBuf, err := allocNew(newSize)
	if err != nil {
		return nil, err
	}

	var newPos, oldPos int64
	var ctrlWord [8]byte
	var oldChunk [oldReadChunk]byte

	for newPos < newSize {
		var ctrl [3]int64
		for i := 0; i < 3; i++ {
			if err := readExact(ts.ctrl, ctrlWord[:]); err != nil {
				return nil, err
			}
			ctrl[i] = offtin(ctrlWord[:])
		}
		x, y, z := ctrl[0], ctrl[1], ctrl[2]
		if x < 0 || y < 0 {
			return nil, fmt.Errorf("%w: negative control value (x=%d y=%d)", ErrCorruptPatch, x, y)
		}

		if newPos+x > newSize {
			return nil, fmt.Errorf("%w: diff span overruns new image", ErrCorruptPatch)
		}
		if err := readExact(ts.diff, newBuf[newPos:newPos+x]); err != nil {
			return nil, err
		}
		if err := addOld(newBuf[newPos:newPos+x], old, oldPos, oldChunk[:]); err != nil {
			return nil, err
		}
		newPos += x
		oldPos += x

		if newPos+y > newSize {
			return nil, fmt.Errorf("%w: extra span overruns new image", ErrCorruptPatch)
		}
		if err := readExact(ts.extra, newBuf[newPos:newPos+y]); err != nil {
			return nil, err
		}
		newPos += y
		oldPos += z
	}

	if newPos != newSize {
		return nil, fmt.Errorf("%w: new_pos %d != declared size %d at exhaustion", ErrCorruptPatch, newPos, newSize)
	}
	return newBuf[:newSize], nil
}

// addOld performs the additive merge for one control triple's diff
// span: dst[i] += old[oldPos+i] for every i where oldPos+i falls in
// old's valid range, mod 256 (plain byte addition already wraps).
// oldPos may be negative; bytes where oldPos+i < 0 are skipped entirely,
// leaving dst's raw diff byte untouched (equivalent to adding zero).
func addOld(dst []byte, old io.ReaderAt, oldPos int64, chunk []byte) error {
	var processed int64
	n := int64(len(dst))
	for processed < n {
		step := n - processed
		if step > int64(len(chunk)) {
			step = int64(len(chunk))
		}
		start := oldPos + processed
		end := start + step
		validStart := start
		if validStart < 0 {
			validStart = 0
		}
		if validStart < end {
			want := end - validStart
			rn, err := old.ReadAt(chunk[:want], validStart)
			if err != nil && err != io.EOF {
				return fmt.Errorf("%w: reading old image at %d: %v", ErrIo, validStart, err)
			}
			relOff := validStart - start
			for i := 0; i < rn; i++ {
				dst[processed+relOff+int64(i)] += chunk[i]
			}
		}
		processed += step
	}
	return nil
}

// allocNew allocates the N+1 byte new-image buffer (the +1 preserves a
// historical convention avoiding a zero-size allocation for N == 0), and
// turns an allocation-time panic (the only signal Go gives for an
// oversized make()) into a structured error rather than a process crash.
func allocNew(n int64) (buf []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			buf = nil
			err = fmt.Errorf("%w: allocating %d-byte new image: %v", ErrOutOfMemory, n+1, r)
		}
	}()
	return make([]byte, n+1), nil
}
