package bspatch

import (
	"fmt"
	"io"

	"github.com/dsnet/compress/bzip2"
)

// tripleStream holds the three independent bzip2 decompression cursors
// the BSDIFF40 format interleaves into one patch file: ctrl, diff, and
// extra, at byte offsets 32, 32+X, 32+X+Y respectively. Each is read
// strictly sequentially and independently of the others.
type tripleStream struct {
	ctrl  *bzip2.Reader
	diff  *bzip2.Reader
	extra *bzip2.Reader
}

// maxExtraSpan bounds the section reader given to the extra stream,
// whose length is implicit (end of file). It only needs to be larger
// than any realistic patch; it is not a size limit on the decompressed
// extra data itself, which is bounded by the header's declared N.
const maxExtraSpan = 1 << 62

func openTripleStream(patch io.ReaderAt, h header) (*tripleStream, error) {
	ctrl, err := bzip2.NewReader(io.NewSectionReader(patch, headerSize, h.ctrlLen), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: opening ctrl stream: %v", ErrCorruptPatch, err)
	}
	diff, err := bzip2.NewReader(io.NewSectionReader(patch, headerSize+h.ctrlLen, h.diffLen), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: opening diff stream: %v", ErrCorruptPatch, err)
	}
	extraStart := headerSize + h.ctrlLen + h.diffLen
	extra, err := bzip2.NewReader(io.NewSectionReader(patch, extraStart, maxExtraSpan), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: opening extra stream: %v", ErrCorruptPatch, err)
	}
	return &tripleStream{ctrl: ctrl, diff: diff, extra: extra}, nil
}

func (t *tripleStream) Close() error {
	if err := t.ctrl.Close(); err != nil {
		return err
	}
	if err := t.diff.Close(); err != nil {
		return err
	}
	return t.extra.Close()
}

// readExact reads exactly n bytes from r, mapping a short read or
// premature EOF to a corrupt-patch error. EOF landing exactly on the nth
// byte (the stream has nothing left, and nothing was requested beyond
// it) is not an error.
func readExact(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return fmt.Errorf("%w: %v", ErrCorruptPatch, err)
	}
	if err == io.ErrUnexpectedEOF {
		return fmt.Errorf("%w: sub-stream ended early", ErrCorruptPatch)
	}
	if err == io.EOF && len(buf) > 0 {
		return fmt.Errorf("%w: sub-stream ended early", ErrCorruptPatch)
	}
	return nil
}
