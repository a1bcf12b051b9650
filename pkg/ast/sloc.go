package ast

import "fmt"

// ----------------------------------------------------------------------------
// Source location

// Sloc is the packed source-location triple from spec.md §3.4: 20 bits
// source-id, 20 bits line, 12 bits byte offset from line start, 12 bits span.
// Out-of-range components saturate rather than wrap, so a diagnostic never
// silently points at the wrong line because a counter overflowed.
type Sloc uint64

const (
	spanBits   = 12
	offsetBits = 12
	lineBits   = 20
	sourceBits = 20

	spanMask   = 1<<spanBits - 1
	offsetMask = 1<<offsetBits - 1
	lineMask   = 1<<lineBits - 1
	sourceMask = 1<<sourceBits - 1

	offsetShift = spanBits
	lineShift   = spanBits + offsetBits
	sourceShift = spanBits + offsetBits + lineBits
)

// NewSloc packs a (source, line, offset, span) tuple, saturating any field
// that would otherwise overflow its bit width.
func NewSloc(source, line, offset, span int) Sloc {
	return Sloc(saturate(source, sourceMask))<<sourceShift |
		Sloc(saturate(line, lineMask))<<lineShift |
		Sloc(saturate(offset, offsetMask))<<offsetShift |
		Sloc(saturate(span, spanMask))
}

func saturate(v, max int) uint64 {
	if v < 0 {
		return 0
	}
	if uint64(v) > uint64(max) {
		return uint64(max)
	}
	return uint64(v)
}

func (s Sloc) Source() int { return int(uint64(s)>>sourceShift) & sourceMask }
func (s Sloc) Line() int   { return int(uint64(s)>>lineShift) & lineMask }
func (s Sloc) Offset() int { return int(uint64(s)>>offsetShift) & offsetMask }
func (s Sloc) Span() int   { return int(uint64(s)) & spanMask }

// WithSpan returns a copy of s with only the span field replaced, used by the
// lexer/parser when it widens a node to cover trailing lexemes.
func (s Sloc) WithSpan(span int) Sloc {
	return NewSloc(s.Source(), s.Line(), s.Offset(), span)
}

// SourceNamer resolves an interned source-id back to a path; implemented by
// the env package's Sources table. Kept as a tiny interface here so Sloc
// formatting doesn't pull in an import cycle on pkg/env.
type SourceNamer interface {
	Name(id int) string
}

// String renders the raw numeric form (no source-name resolution); callers
// that have a Sources table should prefer Format.
func (s Sloc) String() string {
	return fmt.Sprintf("%d:%d:%d:%d", s.Source(), s.Line(), s.Offset(), s.Span())
}

// Format renders the user-visible "SOURCE:LINE:OFFSET:SPAN" form used by
// every error message and REPL echo (spec.md §7).
func (s Sloc) Format(names SourceNamer) string {
	src := fmt.Sprintf("%d", s.Source())
	if names != nil {
		if n := names.Name(s.Source()); n != "" {
			src = n
		}
	}
	return fmt.Sprintf("%s:%d:%d:%d", src, s.Line(), s.Offset(), s.Span())
}
