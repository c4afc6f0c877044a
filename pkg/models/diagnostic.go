package models

import "strings"

// SpanKind distinguishes how precisely a diagnostic can be located.
type SpanKind int

const (
	// SpanFile addresses the whole file (no better position is known).
	SpanFile SpanKind = iota
	// SpanPoint addresses a single line/column position.
	SpanPoint
	// SpanRange addresses a start..end region.
	SpanRange
)

// Span locates a diagnostic in a source file. Lines and columns are 1-based.
type Span struct {
	Kind      SpanKind
	StartLine int
	StartCol  int
	EndLine   int
	EndCol    int
}

// FileSpan returns a whole-file span.
func FileSpan() Span {
	return Span{Kind: SpanFile}
}

// PointSpan returns a single-position span.
func PointSpan(line, col int) Span {
	return Span{Kind: SpanPoint, StartLine: line, StartCol: col}
}

// RangeSpan returns a start..end span.
func RangeSpan(startLine, startCol, endLine, endCol int) Span {
	return Span{Kind: SpanRange, StartLine: startLine, StartCol: startCol, EndLine: endLine, EndCol: endCol}
}

// QuickFix is a machine-applicable replacement for the span of a diagnostic.
type QuickFix struct {
	Name            string
	ReplacementText string
}

// Diagnostic is the engine's output unit. Front ends render it; the engine
// only fills in plain data.
type Diagnostic struct {
	FileName     string
	FileContents string
	Span         Span
	Messages     []string

	// Epilogue is supplementary detail rendered after the messages, possibly
	// spanning multiple lines (the expected/actual shape comparison).
	Epilogue string

	QuickFix *QuickFix
}

// LineColForOffset converts a byte offset into 1-based line and column
// numbers within contents. Offsets past the end address the final position.
func LineColForOffset(contents string, offset int) (line, col int) {
	if offset > len(contents) {
		offset = len(contents)
	}
	if offset < 0 {
		offset = 0
	}

	prefix := contents[:offset]
	line = strings.Count(prefix, "\n") + 1
	if idx := strings.LastIndexByte(prefix, '\n'); idx >= 0 {
		col = offset - idx
	} else {
		col = offset + 1
	}
	return line, col
}

// PointSpanForOffset builds a point span from a byte offset into contents.
func PointSpanForOffset(contents string, offset int) Span {
	line, col := LineColForOffset(contents, offset)
	return PointSpan(line, col)
}
