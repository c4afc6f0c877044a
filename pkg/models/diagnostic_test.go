package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLineColForOffset(t *testing.T) {
	contents := "first\nsecond line\n\nfourth"

	tests := []struct {
		name   string
		offset int
		line   int
		col    int
	}{
		{"start of file", 0, 1, 1},
		{"middle of first line", 3, 1, 4},
		{"first byte after newline", 6, 2, 1},
		{"middle of second line", 10, 2, 5},
		{"empty third line", 18, 3, 1},
		{"last line", 19, 4, 1},
		{"offset past the end clamps", 1000, 4, 7},
		{"negative offset clamps to start", -5, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, col := LineColForOffset(contents, tt.offset)
			assert.Equal(t, tt.line, line)
			assert.Equal(t, tt.col, col)
		})
	}
}

func TestPointSpanForOffset(t *testing.T) {
	span := PointSpanForOffset("ab\ncd", 4)
	assert.Equal(t, SpanPoint, span.Kind)
	assert.Equal(t, 2, span.StartLine)
	assert.Equal(t, 2, span.StartCol)
}
