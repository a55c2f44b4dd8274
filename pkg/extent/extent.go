// Package extent parses and represents extent specifications: ordered
// lists of (offset, length) byte ranges within an underlying file, used
// in place of a contiguous file wherever the "old" or "new" side of a
// patch is scattered across a larger image (or partially sparse).
package extent

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Sentinel error kinds for extent specifications. Concrete errors
// returned by Parse always satisfy errors.Is against one of these.
var (
	// ErrBadGrammar is returned when an extent spec violates the
	// "offset:length(,offset:length)*" grammar.
	ErrBadGrammar = errors.New("extent: malformed specification")
	// ErrOverflow is returned when a numeric literal does not fit a
	// signed 64-bit integer.
	ErrOverflow = errors.New("extent: numeric literal overflows int64")
	// ErrZeroLength is returned when a length field is not strictly
	// positive.
	ErrZeroLength = errors.New("extent: length must be positive")
)

// Sparse is the canonical offset value denoting a sparse extent: reads
// yield zero bytes, writes are discarded, and no underlying I/O is ever
// performed for it. Any negative offset is treated as sparse; this is
// the canonical one a parsed spec produces.
const Sparse int64 = -1

// Extent is a single (offset, length) pair. Offset < 0 denotes a sparse
// range of Length zero bytes.
type Extent struct {
	Offset int64
	Length int64
}

// IsSparse reports whether e reads as zeros and discards writes.
func (e Extent) IsSparse() bool {
	return e.Offset < 0
}

// List is an ordered sequence of extents, defining a logical byte space
// of TotalLength() bytes.
type List []Extent

// TotalLength returns the logical length of the space the list defines:
// the sum of every extent's Length.
func (l List) TotalLength() int64 {
	var total int64
	for _, e := range l {
		total += e.Length
	}
	return total
}

// Parse parses a non-empty extent specification of the form
// "offset:length(,offset:length)*" into a validated List. offset may be
// negative (canonically -1) to denote a sparse extent; any negative
// value is normalized to Sparse. The empty string is rejected: callers
// only invoke Parse when extents are actually in use.
func Parse(spec string) (List, error) {
	if spec == "" {
		return nil, fmt.Errorf("%w: empty extent specification", ErrBadGrammar)
	}

	pairs := strings.Split(spec, ",")
	list := make(List, 0, len(pairs))
	for _, pair := range pairs {
		idx := strings.IndexByte(pair, ':')
		if idx < 0 {
			return nil, fmt.Errorf("%w: pair %q missing ':'", ErrBadGrammar, pair)
		}
		offsetStr, lengthStr := pair[:idx], pair[idx+1:]
		if offsetStr == "" || lengthStr == "" {
			return nil, fmt.Errorf("%w: pair %q has an empty field", ErrBadGrammar, pair)
		}
		if strings.ContainsAny(offsetStr, " \t\r\n") || strings.ContainsAny(lengthStr, " \t\r\n") {
			return nil, fmt.Errorf("%w: whitespace is not permitted in %q", ErrBadGrammar, pair)
		}

		if offsetStr[0] == '+' || lengthStr[0] == '+' {
			return nil, fmt.Errorf("%w: leading '+' is not permitted in %q", ErrBadGrammar, pair)
		}

		offset, err := strconv.ParseInt(offsetStr, 10, 64)
		if err != nil {
			if errors.Is(err, strconv.ErrRange) {
				return nil, fmt.Errorf("%w: offset %q", ErrOverflow, offsetStr)
			}
			return nil, fmt.Errorf("%w: offset %q", ErrBadGrammar, offsetStr)
		}
		length, err := strconv.ParseInt(lengthStr, 10, 64)
		if err != nil {
			if errors.Is(err, strconv.ErrRange) {
				return nil, fmt.Errorf("%w: length %q", ErrOverflow, lengthStr)
			}
			return nil, fmt.Errorf("%w: length %q", ErrBadGrammar, lengthStr)
		}
		if length <= 0 {
			return nil, fmt.Errorf("%w: length %d", ErrZeroLength, length)
		}
		if offset < 0 {
			offset = Sparse
		}
		list = append(list, Extent{Offset: offset, Length: length})
	}
	return list, nil
}
