// * Copyright 2003-2005 Colin Percival
// * All rights reserved
// *
// * Redistribution and use in source and binary forms, with or without
// * modification, are permitted providing that the following conditions
// * are met:
// * 1. Redistributions of source code must retain the above copyright
// *    notice, this list of conditions and the following disclaimer.
// * 2. Redistributions in binary form must reproduce the above copyright
// *    notice, this list of conditions and the following disclaimer in the
// *    documentation and/or other materials provided with the distribution.
// *
// * THIS SOFTWARE IS PROVIDED BY THE AUTHOR ``AS IS'' AND ANY EXPRESS OR
// * IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE IMPLIED
// * WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
// * ARE DISCLAIMED.  IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY
// * DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR CONSEQUENTIAL
// * DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS
// * OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS INTERRUPTION)
// * HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN CONTRACT,
// * STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE) ARISING
// * IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
// * POSSIBILITY OF SUCH DAMAGE.

// Package bspatch applies a BSDIFF40-format patch to an old byte image
// to produce a new one. Both images may be given as plain files or as
// extent-addressed views (see package extent) over a larger underlying
// file, including sparse spans.
package bspatch

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/crosimg/bspatch/pkg/extent"
)

// Options configures an ApplyFile call beyond the BSDIFF40 defaults.
type Options struct {
	// MaxImageSize caps the patch header's declared new-image size; a
	// larger declared size is rejected as ErrTooLarge before any
	// allocation is attempted. Zero means DefaultMaxImageSize.
	MaxImageSize int64
}

// Bytes applies patch to oldfile (both held entirely in memory) and
// returns the reconstructed new image.
func Bytes(oldfile, patch []byte) ([]byte, error) {
	return apply(bytes.NewReader(oldfile), bytes.NewReader(patch), Options{})
}

// Reader applies the BSDIFF40 patch readable from patch, using oldfile
// as the additive source, and writes the result to newfile.
func Reader(oldfile io.ReaderAt, newfile io.WriterAt, patch io.ReaderAt) error {
	newImage, err := apply(oldfile, patch, Options{})
	if err != nil {
		return err
	}
	if _, err := newfile.WriteAt(newImage, 0); err != nil {
		return fmt.Errorf("%w: writing new image: %v", ErrIo, err)
	}
	return nil
}

// File applies patchfile to oldfile, writing the result to newfile
// (created if absent, truncated if present). On failure the half-written
// newfile is removed.
func File(oldfile, newfile, patchfile string) error {
	return ApplyFile(oldfile, newfile, patchfile, "", "", Options{})
}

// ApplyFile is the general entry point: oldExtents and/or newExtents,
// when non-empty, are extent.Parse specifications that make the
// corresponding side of the patch extent-addressed rather than a plain
// contiguous file. An empty extents string means "plain file".
func ApplyFile(oldPath, newPath, patchPath, oldExtents, newExtents string, opts Options) (err error) {
	patchF, err := os.Open(patchPath)
	if err != nil {
		return fmt.Errorf("%w: opening patch %q: %v", ErrIo, patchPath, err)
	}
	defer patchF.Close()

	oldReader, closeOld, err := openOldSide(oldPath, oldExtents)
	if err != nil {
		return err
	}
	defer closeOld()

	newImage, err := apply(oldReader, patchF, opts)
	if err != nil {
		return err
	}

	newWriter, closeNew, removeOnFailure, err := openNewSide(newPath, newExtents)
	if err != nil {
		return err
	}
	defer closeNew()

	if _, werr := newWriter.WriteAt(newImage, 0); werr != nil {
		if removeOnFailure {
			os.Remove(newPath)
		}
		return fmt.Errorf("%w: writing %q: %v", ErrIo, newPath, werr)
	}
	return nil
}

func openOldSide(path, extents string) (io.ReaderAt, func(), error) {
	if extents == "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: opening old file %q: %v", ErrIo, path, err)
		}
		return f, func() { f.Close() }, nil
	}
	list, err := extent.Parse(extents)
	if err != nil {
		return nil, nil, err
	}
	f, err := extent.OpenFile(path, extent.ReadOnly)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: opening old file %q: %v", ErrIo, path, err)
	}
	view, err := extent.Open(f, extent.ReadOnly, list, nil)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return view, func() { view.Close() }, nil
}

// openNewSide returns the writable destination for the new image, a
// closer, and whether it is safe to os.Remove the path on failure (only
// true for the plain-file case: an extent-backed destination is
// typically a span of a larger shared file or device, which must never
// be unlinked just because this patch application failed).
func openNewSide(path, extents string) (io.WriterAt, func(), bool, error) {
	if extents == "" {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return nil, nil, false, fmt.Errorf("%w: creating new file %q: %v", ErrIo, path, err)
		}
		return f, func() { f.Close() }, true, nil
	}
	list, err := extent.Parse(extents)
	if err != nil {
		return nil, nil, false, err
	}
	f, err := extent.OpenFile(path, extent.WriteOnly)
	if err != nil {
		return nil, nil, false, fmt.Errorf("%w: opening new file %q: %v", ErrIo, path, err)
	}
	view, err := extent.Open(f, extent.WriteOnly, list, nil)
	if err != nil {
		f.Close()
		return nil, nil, false, err
	}
	return view, func() { view.Close() }, false, nil
}

func apply(old io.ReaderAt, patch io.ReaderAt, opts Options) ([]byte, error) {
	h, err := readHeader(patch)
	if err != nil {
		return nil, err
	}
	ts, err := openTripleStream(patch, h)
	if err != nil {
		return nil, err
	}
	defer ts.Close()

	return reconstruct(old, ts, h.newLen, opts.MaxImageSize)
}
