package domain

import (
	"strconv"

	"github.com/Luiz-Frias/semcode/internal/errors"
)

// LineSpan is a 1-indexed, inclusive line range within a file.
type LineSpan struct {
	start uint32
	end   uint32
}

// NewLineSpan validates and constructs a span.
func NewLineSpan(startLine, endLine uint32) (LineSpan, error) {
	if startLine < 1 || endLine < 1 {
		return LineSpan{}, errors.Expected(errors.CodeDomainLineSpan,
			"LineSpan start_line/end_line must be >= 1").
			WithMeta("startLine", strconv.FormatUint(uint64(startLine), 10)).
			WithMeta("endLine", strconv.FormatUint(uint64(endLine), 10))
	}
	if startLine > endLine {
		return LineSpan{}, errors.Expected(errors.CodeDomainLineSpan,
			"LineSpan start_line must be <= end_line").
			WithMeta("startLine", strconv.FormatUint(uint64(startLine), 10)).
			WithMeta("endLine", strconv.FormatUint(uint64(endLine), 10))
	}
	return LineSpan{start: startLine, end: endLine}, nil
}

// MustLineSpan constructs a span and panics on invalid input. For tests
// and literals whose validity is self-evident.
func MustLineSpan(startLine, endLine uint32) LineSpan {
	span, err := NewLineSpan(startLine, endLine)
	if err != nil {
		panic(err)
	}
	return span
}

// StartLine returns the 1-indexed starting line.
func (s LineSpan) StartLine() uint32 { return s.start }

// EndLine returns the inclusive ending line.
func (s LineSpan) EndLine() uint32 { return s.end }

// Lines returns the number of lines covered.
func (s LineSpan) Lines() uint32 {
	return s.end - s.start + 1
}

// String renders "start-end".
func (s LineSpan) String() string {
	return strconv.FormatUint(uint64(s.start), 10) + "-" + strconv.FormatUint(uint64(s.end), 10)
}
