package extent

import (
	"bytes"
	"io"
	"os"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memFile is a minimal in-memory File for exercising View without
// touching the real filesystem.
type memFile struct {
	buf []byte
}

func (m *memFile) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *memFile) WriteAt(p []byte, off int64) (int, error) {
	end := off + int64(len(p))
	if end > int64(len(m.buf)) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[off:], p)
	return len(p), nil
}

func TestViewLogicalLength(t *testing.T) {
	list, err := Parse("0:100,-1:50,200:25")
	require.NoError(t, err)
	v, err := Open(&memFile{}, ReadWrite, list, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(175), v.Len())

	end, err := v.Seek(0, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(175), end)
}

func TestViewSparseReadsZero(t *testing.T) {
	list, err := Parse("-1:4,0:2")
	require.NoError(t, err)
	f := &memFile{buf: []byte{0x77, 0x88}}
	v, err := Open(f, ReadOnly, list, nil)
	require.NoError(t, err)

	buf := make([]byte, 6)
	n, err := v.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 6, n)
	assert.Equal(t, []byte{0, 0, 0, 0, 0x77, 0x88}, buf)
}

func TestViewSparseWriteDiscards(t *testing.T) {
	list, err := Parse("-1:4")
	require.NoError(t, err)
	f := &memFile{buf: []byte{0xAA, 0xBB, 0xCC, 0xDD}}
	before := append([]byte(nil), f.buf...)

	v, err := Open(f, WriteOnly, list, nil)
	require.NoError(t, err)
	n, err := v.Write([]byte{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, before, f.buf)
}

func TestViewSeekOutOfRange(t *testing.T) {
	list, err := Parse("0:10")
	require.NoError(t, err)
	v, err := Open(&memFile{}, ReadWrite, list, nil)
	require.NoError(t, err)

	_, err = v.Seek(11, io.SeekStart)
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = v.Seek(-1, io.SeekStart)
	assert.ErrorIs(t, err, ErrOutOfRange)

	pos, err := v.Seek(10, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(10), pos)
	n, err := v.Read(make([]byte, 4))
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 0, n)

	// Reading zero bytes at end-of-view is not an error.
	n, err = v.Read(nil)
	assert.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestViewWritePastEndIsError(t *testing.T) {
	list, err := Parse("0:4")
	require.NoError(t, err)
	v, err := Open(&memFile{}, WriteOnly, list, nil)
	require.NoError(t, err)

	n, err := v.Write([]byte{1, 2, 3, 4, 5})
	assert.ErrorIs(t, err, ErrOutOfRange)
	assert.Equal(t, 4, n)
}

func TestViewModeMismatch(t *testing.T) {
	list, err := Parse("0:4")
	require.NoError(t, err)

	ro, err := Open(&memFile{buf: make([]byte, 4)}, ReadOnly, list, nil)
	require.NoError(t, err)
	_, err = ro.Write([]byte{1})
	assert.ErrorIs(t, err, ErrReadOnly)

	wo, err := Open(&memFile{buf: make([]byte, 4)}, WriteOnly, list, nil)
	require.NoError(t, err)
	_, err = wo.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrWriteOnly)
}

func TestViewReadWriteRoundTripAcrossExtents(t *testing.T) {
	list, err := Parse("10:4,-1:3,0:4")
	require.NoError(t, err)
	f := &memFile{buf: make([]byte, 32)}
	v, err := Open(f, ReadWrite, list, nil)
	require.NoError(t, err)

	payload := []byte{1, 2, 3, 4, 0, 0, 0, 9, 9, 9, 9}
	n, err := v.Write(payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)

	_, err = v.Seek(0, io.SeekStart)
	require.NoError(t, err)
	readBack := make([]byte, len(payload))
	n, err = io.ReadFull(v, readBack)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	assert.Equal(t, payload, readBack)

	// The sparse span never touched the backing file: only the two real
	// extents (10:4 and 0:4) hold written bytes.
	want := make([]byte, 32)
	copy(want[10:], []byte{1, 2, 3, 4})
	copy(want[0:], []byte{9, 9, 9, 9})
	assert.Equal(t, want, f.buf)
}

func TestViewSeekLocality(t *testing.T) {
	// A large extent list with many small extents; repeatedly seeking
	// near the current position should stay cheap regardless of list
	// size. This isn't a precise operation-count assertion, just a
	// smoke test that locate() doesn't regress to an O(n) linear scan
	// for local access (it would still pass functionally, just slower).
	n := 5000
	spec := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			spec += ","
		}
		spec += "0:1"
	}
	list, err := Parse(spec)
	require.NoError(t, err)
	v, err := Open(&memFile{buf: make([]byte, 1)}, ReadWrite, list, nil)
	require.NoError(t, err)

	pos := int64(0)
	for i := 0; i < 200; i++ {
		pos += 3
		if pos > v.Len() {
			pos = v.Len()
		}
		got, err := v.Seek(pos, io.SeekStart)
		require.NoError(t, err)
		assert.Equal(t, pos, got)
	}
}

func TestViewSatisfiesIoReaderAtWriterAt(t *testing.T) {
	list, err := Parse("0:16")
	require.NoError(t, err)
	f := &memFile{buf: make([]byte, 16)}
	v, err := Open(f, ReadWrite, list, nil)
	require.NoError(t, err)

	var _ io.ReaderAt = v
	var _ io.WriterAt = v

	_, err = v.WriteAt([]byte("hello world!!!!!"), 0)
	require.NoError(t, err)
	got := make([]byte, 16)
	_, err = v.ReadAt(got, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world!!!!!"), got)
}

func TestViewFuzzAgainstPlainFile(t *testing.T) {
	content := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog"), 50)
	tmp, err := os.CreateTemp(t.TempDir(), "view")
	require.NoError(t, err)
	_, err = tmp.Write(content)
	require.NoError(t, err)
	require.NoError(t, tmp.Close())

	f, err := os.Open(tmp.Name())
	require.NoError(t, err)
	defer f.Close()

	list := List{{Offset: 0, Length: int64(len(content))}}
	v, err := Open(f, ReadOnly, list, nil)
	require.NoError(t, err)
	defer v.Close()

	if err := iotest.TestReader(v, content); err != nil {
		t.Error(err)
	}
}

func TestOpenRejectsEmptyExtentList(t *testing.T) {
	_, err := Open(&memFile{}, ReadWrite, nil, nil)
	assert.Error(t, err)
}

func TestViewCloseInvokesReleaseAndFileCloser(t *testing.T) {
	list, err := Parse("0:4")
	require.NoError(t, err)
	tmp, err := os.CreateTemp(t.TempDir(), "close")
	require.NoError(t, err)
	tmp.Write([]byte{1, 2, 3, 4})
	tmp.Close()

	f, err := os.Open(tmp.Name())
	require.NoError(t, err)

	released := false
	v, err := Open(f, ReadOnly, list, func() { released = true })
	require.NoError(t, err)
	require.NoError(t, v.Close())
	assert.True(t, released)
	require.NoError(t, v.Close()) // idempotent
}
