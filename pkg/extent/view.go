package extent

import (
	"errors"
	"fmt"
	"io"
)

// Sentinel errors for the view itself.
var (
	// ErrOutOfRange is returned when a seek target falls outside [0, L].
	ErrOutOfRange = errors.New("extent: seek target out of range")
	// ErrReadOnly is returned when Write is called on a view opened ReadOnly.
	ErrReadOnly = errors.New("extent: view is read-only")
	// ErrWriteOnly is returned when Read is called on a view opened WriteOnly.
	ErrWriteOnly = errors.New("extent: view is write-only")
)

// Mode controls which operations a View permits and how its underlying
// file is expected to have been opened.
type Mode int

const (
	// ReadOnly opens the underlying file read-only; Write always fails.
	ReadOnly Mode = iota
	// WriteOnly opens the underlying file write-only, without
	// truncation; Read always fails.
	WriteOnly
	// ReadWrite permits both Read and Write.
	ReadWrite
)

// File is the byte-addressable handle a View is built over: a physical
// file (or anything that behaves like one) offering positioned reads and
// writes. *os.File satisfies this.
type File interface {
	io.ReaderAt
	io.WriterAt
}

// View presents an ordered extent List over an underlying File as a
// single logical byte-addressable stream, with sparse extents reading
// as zero and discarding writes.
//
// Because the underlying File is addressed positionally (ReadAt/WriteAt,
// i.e. pread/pwrite), View never needs to reposition a shared file
// cursor and so tracks no "physical position" bookkeeping of its own;
// the only seek cost that matters is locating which extent a logical
// position falls in, which is what the prefix-array search below
// optimizes.
type View struct {
	extents List
	prefix  []int64 // len(extents)+1; prefix[i] = sum of extents[:i].Length
	length  int64

	file    File
	mode    Mode
	release func()

	pos    int64
	curIdx int // extent index found by the last Seek/Read/Write (len(extents) at EOF); locate's starting point

	closed bool
}

// Open builds a View over file using the given extents. release, if
// non-nil, is called once during Close, after the underlying file (if it
// implements io.Closer) has been closed; it exists so a caller that owns
// the extent list through some other mechanism can release it, though
// ordinary callers can simply let the List be garbage collected and pass
// a nil release.
func Open(file File, mode Mode, extents List, release func()) (*View, error) {
	if len(extents) == 0 {
		return nil, fmt.Errorf("%w: extent list is empty", ErrBadGrammar)
	}
	prefix := make([]int64, len(extents)+1)
	for i, e := range extents {
		if e.Length <= 0 {
			return nil, fmt.Errorf("%w: extent %d has length %d", ErrZeroLength, i, e.Length)
		}
		prefix[i+1] = prefix[i] + e.Length
	}
	return &View{
		extents: extents,
		prefix:  prefix,
		length:  prefix[len(extents)],
		file:    file,
		mode:    mode,
		release: release,
	}, nil
}

// Len returns the logical length L of the view: the sum of every
// extent's length. Equivalent to Seek(0, io.SeekEnd) from a fresh view.
func (v *View) Len() int64 { return v.length }

// locate returns the index k such that prefix[k] <= p < prefix[k+1], or
// len(extents) when p == length. It searches outward from curIdx by
// doubling leaps, then binary-searches the bracketing interval, giving
// O(log D) comparisons where D is the extent-distance travelled since
// the last access — cheap for both sequential and local-random access.
func (v *View) locate(p int64) int {
	n := len(v.extents)
	if p >= v.length {
		return n
	}
	i := v.curIdx
	if i >= n {
		i = n - 1
	}
	if i < 0 {
		i = 0
	}
	if v.prefix[i] <= p && p < v.prefix[i+1] {
		return i
	}

	lo, hi := i, i
	if p < v.prefix[i] {
		step := 1
		for lo > 0 && v.prefix[lo] > p {
			hi = lo
			lo -= step
			if lo < 0 {
				lo = 0
			}
			step *= 2
		}
	} else {
		step := 1
		for hi < n-1 && v.prefix[hi+1] <= p {
			lo = hi
			hi += step
			if hi > n-1 {
				hi = n - 1
			}
			step *= 2
		}
	}
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if v.prefix[mid] <= p {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

// Seek moves the logical position. The target must land in [0, L];
// seeking exactly to L (end-of-view) is valid.
func (v *View) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = v.pos + offset
	case io.SeekEnd:
		target = v.length + offset
	default:
		return 0, fmt.Errorf("extent: invalid whence %d", whence)
	}
	if target < 0 || target > v.length {
		return 0, fmt.Errorf("%w: %d not in [0, %d]", ErrOutOfRange, target, v.length)
	}
	v.pos = target
	v.curIdx = v.locate(target)
	return v.pos, nil
}

// Read fills up to len(buf) bytes from the current logical position,
// advancing it. At end-of-view it returns 0 bytes and io.EOF (or no
// error when buf is empty).
func (v *View) Read(buf []byte) (int, error) {
	if v.mode == WriteOnly {
		return 0, ErrWriteOnly
	}
	total := 0
	for total < len(buf) && v.pos < v.length {
		idx := v.locate(v.pos)
		v.curIdx = idx
		e := v.extents[idx]
		intra := v.pos - v.prefix[idx]
		avail := e.Length - intra
		want := int64(len(buf) - total)
		if want > avail {
			want = avail
		}

		if e.IsSparse() {
			for i := int64(0); i < want; i++ {
				buf[total+int(i)] = 0
			}
			total += int(want)
			v.pos += want
			continue
		}

		n, err := v.file.ReadAt(buf[total:total+int(want)], e.Offset+intra)
		total += n
		v.pos += int64(n)
		if err != nil && err != io.EOF {
			return total, fmt.Errorf("extent: read at %d: %w", e.Offset+intra, err)
		}
		if int64(n) < want {
			// Short underlying read (e.g. truncated backing file):
			// stop here rather than looping forever.
			return total, eofIfEmpty(total, buf)
		}
	}
	return total, eofIfEmpty(total, buf)
}

// eofIfEmpty reports io.EOF when a read satisfied nothing and the caller
// asked for at least one byte, matching the io.Reader contract (a read
// of len(buf) > 0 at end-of-stream must return a non-nil error).
func eofIfEmpty(total int, buf []byte) error {
	if total == 0 && len(buf) > 0 {
		return io.EOF
	}
	return nil
}

// Write writes up to len(buf) bytes at the current logical position,
// advancing it. Bytes landing in a sparse extent are silently discarded
// (no underlying I/O, but they still count as written). Writing past
// end-of-view is an error; the returned count is always the number of
// bytes actually consumed, which may be less than len(buf) when that
// happens.
func (v *View) Write(buf []byte) (int, error) {
	if v.mode == ReadOnly {
		return 0, ErrReadOnly
	}
	total := 0
	for total < len(buf) {
		if v.pos >= v.length {
			return total, fmt.Errorf("%w: write past end-of-view at %d", ErrOutOfRange, v.pos)
		}
		idx := v.locate(v.pos)
		v.curIdx = idx
		e := v.extents[idx]
		intra := v.pos - v.prefix[idx]
		avail := e.Length - intra
		want := int64(len(buf) - total)
		if want > avail {
			want = avail
		}

		if e.IsSparse() {
			total += int(want)
			v.pos += want
			continue
		}

		n, err := v.file.WriteAt(buf[total:total+int(want)], e.Offset+intra)
		total += n
		v.pos += int64(n)
		if err != nil {
			return total, fmt.Errorf("extent: write at %d: %w", e.Offset+intra, err)
		}
	}
	return total, nil
}

// ReadAt implements io.ReaderAt by seeking then reading; an offset past
// end-of-view reads nothing and returns io.EOF. It is not safe for
// concurrent use, which matches the single-threaded contract the whole
// patch applier runs under.
func (v *View) ReadAt(p []byte, off int64) (int, error) {
	if off > v.length {
		return 0, io.EOF
	}
	if _, err := v.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	n, err := v.Read(p)
	if err == nil && n < len(p) {
		err = io.EOF
	}
	return n, err
}

// WriteAt implements io.WriterAt the same way ReadAt implements
// io.ReaderAt.
func (v *View) WriteAt(p []byte, off int64) (int, error) {
	if _, err := v.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return v.Write(p)
}

// Close releases the underlying file descriptor (if File implements
// io.Closer) and then invokes the release hook, if any. It is safe to
// call more than once.
func (v *View) Close() error {
	if v.closed {
		return nil
	}
	v.closed = true
	var err error
	if c, ok := v.file.(io.Closer); ok {
		err = c.Close()
	}
	if v.release != nil {
		v.release()
	}
	return err
}
