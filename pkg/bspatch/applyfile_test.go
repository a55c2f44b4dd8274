package bspatch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crosimg/bspatch/pkg/bsdiff"
	"github.com/crosimg/bspatch/pkg/extent"
)

func TestApplyFilePlain(t *testing.T) {
	dir := t.TempDir()
	old := []byte("the quick brown fox")
	new := []byte("the slow brown fox jumps")

	patch, err := bsdiff.Bytes(old, new)
	require.NoError(t, err)

	oldPath := filepath.Join(dir, "old")
	newPath := filepath.Join(dir, "new")
	patchPath := filepath.Join(dir, "patch")
	require.NoError(t, os.WriteFile(oldPath, old, 0o644))
	require.NoError(t, os.WriteFile(patchPath, patch, 0o644))

	require.NoError(t, ApplyFile(oldPath, newPath, patchPath, "", "", Options{}))

	got, err := os.ReadFile(newPath)
	require.NoError(t, err)
	require.Equal(t, new, got)
}

func TestApplyFileRemovesNewOnFailurePlainCase(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old")
	newPath := filepath.Join(dir, "new")
	patchPath := filepath.Join(dir, "patch")
	require.NoError(t, os.WriteFile(oldPath, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(patchPath, []byte("BSDIFF41"+string(make([]byte, 24))), 0o644))

	err := ApplyFile(oldPath, newPath, patchPath, "", "", Options{})
	require.Error(t, err)
	_, statErr := os.Stat(newPath)
	require.True(t, os.IsNotExist(statErr))
}

// TestApplyFileWithExtents exercises the full extent-addressed path:
// old is a sparse+real extent view over a scratch image, new is an
// extent-addressed span of a pre-existing device-like file whose
// surrounding bytes must survive untouched.
func TestApplyFileWithExtents(t *testing.T) {
	dir := t.TempDir()

	// Old logical image: 4 sparse zero bytes followed by 4 real bytes.
	oldImagePath := filepath.Join(dir, "old-image")
	require.NoError(t, os.WriteFile(oldImagePath, []byte{0x10, 0x20, 0x30, 0x40}, 0o644))
	oldExtents := "-1:4,0:4"
	oldLogical := []byte{0, 0, 0, 0, 0x10, 0x20, 0x30, 0x40}

	newLogical := append(append([]byte{}, oldLogical...), 0x99)
	patch, err := bsdiff.Bytes(oldLogical, newLogical)
	require.NoError(t, err)
	patchPath := filepath.Join(dir, "patch")
	require.NoError(t, os.WriteFile(patchPath, patch, 0o644))

	// New side lands in the middle of a larger device file; the bytes
	// before and after the target span are sentinels that must not move.
	devicePath := filepath.Join(dir, "device")
	sentinel := []byte("HEADER--")
	tail := []byte("--TRAILER")
	device := append(append(append([]byte{}, sentinel...), make([]byte, len(newLogical))...), tail...)
	require.NoError(t, os.WriteFile(devicePath, device, 0o644))
	newExtents := extentSpecForSpan(len(sentinel), len(newLogical))

	require.NoError(t, ApplyFile(oldImagePath, devicePath, patchPath, oldExtents, newExtents, Options{}))

	got, err := os.ReadFile(devicePath)
	require.NoError(t, err)
	require.Equal(t, sentinel, got[:len(sentinel)])
	require.Equal(t, newLogical, got[len(sentinel):len(sentinel)+len(newLogical)])
	require.Equal(t, tail, got[len(sentinel)+len(newLogical):])
}

func extentSpecForSpan(offset, length int) string {
	list := extent.List{{Offset: int64(offset), Length: int64(length)}}
	spec := ""
	for i, e := range list {
		if i > 0 {
			spec += ","
		}
		spec += itoa(e.Offset) + ":" + itoa(e.Length)
	}
	return spec
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var digits []byte
	for v > 0 {
		digits = append([]byte{byte('0' + v%10)}, digits...)
		v /= 10
	}
	if neg {
		return "-" + string(digits)
	}
	return string(digits)
}
