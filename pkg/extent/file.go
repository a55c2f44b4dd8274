package extent

import (
	"fmt"
	"os"
)

// OpenFile opens the underlying file for path according to mode:
//
//   - ReadOnly opens the file read-only; it is never created.
//   - WriteOnly opens the file write-only, creating it if necessary, but
//     never truncating it — the extent list defines which spans are
//     touched, and truncation would destroy data in spans the caller
//     did not intend to touch.
//   - ReadWrite does the same, for both directions.
func OpenFile(path string, mode Mode) (*os.File, error) {
	switch mode {
	case ReadOnly:
		return os.Open(path)
	case WriteOnly:
		return os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0o644)
	case ReadWrite:
		return os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	default:
		return nil, fmt.Errorf("extent: invalid mode %d", mode)
	}
}
