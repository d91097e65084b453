package stream

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnsatisfiableRange is returned by ResolveRange for any range that cannot
// be served against the asset length.
var ErrUnsatisfiableRange = errors.New("range not satisfiable")

// Span is an inclusive byte range [Start, End] of an asset.
type Span struct {
	Start int64
	End   int64
}

// Length is the number of bytes covered by the span.
func (s Span) Length() int64 {
	return s.End - s.Start + 1
}

// ContentRange formats the span as a Content-Range header value.
func (s Span) ContentRange(total int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", s.Start, s.End, total)
}

// UnsatisfiedRange formats the Content-Range value sent with a 416 response.
func UnsatisfiedRange(total int64) string {
	return fmt.Sprintf("bytes */%d", total)
}

// ResolveRange turns a Range header into the span to serve.
//
// An empty header selects the whole asset and partial is false. Only the
// single-range forms "bytes=start-end" and "bytes=start-" are accepted; the
// end is clamped to total-1. Multi-range and suffix ("bytes=-N") requests are
// rejected with ErrUnsatisfiableRange since no multipart/byteranges body is
// produced.
func ResolveRange(header string, total int64) (span Span, partial bool, err error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return Span{Start: 0, End: total - 1}, false, nil
	}

	const unit = "bytes="
	if len(header) < len(unit) || !strings.EqualFold(header[:len(unit)], unit) {
		return Span{}, false, ErrUnsatisfiableRange
	}
	rangeSet := strings.TrimSpace(header[len(unit):])
	if strings.Contains(rangeSet, ",") {
		return Span{}, false, ErrUnsatisfiableRange
	}

	startStr, endStr, ok := strings.Cut(rangeSet, "-")
	if !ok {
		return Span{}, false, ErrUnsatisfiableRange
	}
	start, ok := parseOffset(strings.TrimSpace(startStr))
	if !ok || start > total-1 {
		return Span{}, false, ErrUnsatisfiableRange
	}

	end := total - 1
	if endStr = strings.TrimSpace(endStr); endStr != "" {
		e, ok := parseOffset(endStr)
		if !ok || start > e {
			return Span{}, false, ErrUnsatisfiableRange
		}
		if e < end {
			end = e
		}
	}

	return Span{Start: start, End: end}, true, nil
}

// parseOffset accepts only plain decimal digits; signs and blanks are invalid.
func parseOffset(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
