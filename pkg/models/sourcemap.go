package models

import "sort"

// SourceSpan maps one run of generated SQL text back to the host source.
// [TextStart, TextEnd) is the interval in the generated text. Linear runs
// came from literal text and map position-for-position from SourceOffset;
// non-linear runs (substituted view references) map every position to
// SourceOffset, the start of the reference in the host source.
type SourceSpan struct {
	SourceOffset int
	TextStart    int
	TextEnd      int
	Linear       bool
}

// SourceMap is an ordered list of spans covering (possibly sparsely) the
// generated SQL text of one statement or view.
type SourceMap struct {
	spans []SourceSpan
}

// NewSourceMap builds a source map from spans in any order.
func NewSourceMap(spans []SourceSpan) SourceMap {
	sorted := make([]SourceSpan, len(spans))
	copy(sorted, spans)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].TextStart < sorted[j].TextStart
	})
	return SourceMap{spans: sorted}
}

// Spans returns the spans in generated-text order.
func (m SourceMap) Spans() []SourceSpan {
	return m.spans
}

// ToSource translates an offset in the generated text to an offset in the
// host source. Offsets that fall in a gap between spans snap to the nearest
// preceding span's source position; offsets before the first span report ok
// = false.
func (m SourceMap) ToSource(textOffset int) (int, bool) {
	// Rightmost span with TextStart <= textOffset.
	i := sort.Search(len(m.spans), func(i int) bool {
		return m.spans[i].TextStart > textOffset
	}) - 1
	if i < 0 {
		return 0, false
	}

	span := m.spans[i]
	if !span.Linear {
		return span.SourceOffset, true
	}
	delta := textOffset - span.TextStart
	if textOffset >= span.TextEnd {
		delta = span.TextEnd - span.TextStart - 1
		if delta < 0 {
			delta = 0
		}
	}
	return span.SourceOffset + delta, true
}

// ToGenerated translates a host-source offset to an offset in the generated
// text. Only linear spans are invertible; reference spans match on their
// exact source offset and map to the span start.
func (m SourceMap) ToGenerated(sourceOffset int) (int, bool) {
	for _, span := range m.spans {
		if !span.Linear {
			if span.SourceOffset == sourceOffset {
				return span.TextStart, true
			}
			continue
		}
		length := span.TextEnd - span.TextStart
		if sourceOffset >= span.SourceOffset && sourceOffset < span.SourceOffset+length {
			return span.TextStart + (sourceOffset - span.SourceOffset), true
		}
	}
	return 0, false
}
