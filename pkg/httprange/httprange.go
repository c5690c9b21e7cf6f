// Package httprange parses single byte-range requests of the form
// "bytes=start-end" as used by media players when seeking.
package httprange

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrMalformed     = errors.New("malformed range header")
	ErrUnsatisfiable = errors.New("range not satisfiable")
)

const unitPrefix = "bytes="

// Range is an inclusive byte window.
type Range struct {
	Start int64
	End   int64
}

func (r Range) Length() int64 { return r.End - r.Start + 1 }

func (r Range) ContentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, size)
}

// UnsatisfiedContentRange is the Content-Range value sent with a 416.
func UnsatisfiedContentRange(size int64) string {
	return fmt.Sprintf("bytes */%d", size)
}

// Parse resolves header against a resource of size bytes. The start offset
// is required; a missing end means the final byte and an end past EOF is
// clamped. Suffix and multi-range forms are rejected as malformed.
func Parse(header string, size int64) (Range, error) {
	h := strings.TrimSpace(header)
	if len(h) < len(unitPrefix) || !strings.EqualFold(h[:len(unitPrefix)], unitPrefix) {
		return Range{}, ErrMalformed
	}
	window := strings.TrimSpace(h[len(unitPrefix):])
	if strings.Contains(window, ",") {
		return Range{}, ErrMalformed
	}

	startStr, endStr, ok := strings.Cut(window, "-")
	if !ok {
		return Range{}, ErrMalformed
	}
	startStr, endStr = strings.TrimSpace(startStr), strings.TrimSpace(endStr)

	start, err := parseOffset(startStr)
	if err != nil {
		return Range{}, err
	}
	end := size - 1
	if endStr != "" {
		if end, err = parseOffset(endStr); err != nil {
			return Range{}, err
		}
		if end < start {
			return Range{}, ErrMalformed
		}
	}

	if start >= size {
		return Range{}, ErrUnsatisfiable
	}
	return Range{Start: start, End: min(end, size-1)}, nil
}

func parseOffset(s string) (int64, error) {
	if s == "" {
		return 0, ErrMalformed
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, ErrMalformed
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, ErrMalformed
	}
	return n, nil
}
