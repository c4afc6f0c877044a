package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// The map under test corresponds to generated text built from a literal run
// at source offset 100, a substituted reference whose source sits at offset
// 200, and a second literal run at source offset 300:
//
//	generated: [0,10) literal  [10,25) reference  [25,40) literal
func testMap() SourceMap {
	return NewSourceMap([]SourceSpan{
		{SourceOffset: 300, TextStart: 25, TextEnd: 40, Linear: true},
		{SourceOffset: 100, TextStart: 0, TextEnd: 10, Linear: true},
		{SourceOffset: 200, TextStart: 10, TextEnd: 25, Linear: false},
	})
}

func TestToSource(t *testing.T) {
	m := testMap()

	tests := []struct {
		name       string
		textOffset int
		expected   int
		ok         bool
	}{
		{"start of first literal", 0, 100, true},
		{"inside first literal interpolates", 7, 107, true},
		{"anywhere inside reference maps to its start", 13, 200, true},
		{"last byte of reference still maps to its start", 24, 200, true},
		{"inside second literal interpolates", 30, 305, true},
		{"past the end clamps to the last mapped byte", 99, 314, true},
		{"negative offset is unmapped", -1, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := m.ToSource(tt.textOffset)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.expected, got)
			}
		})
	}
}

func TestToGenerated(t *testing.T) {
	m := testMap()

	got, ok := m.ToGenerated(107)
	assert.True(t, ok)
	assert.Equal(t, 7, got)

	// A reference span matches only its exact source offset.
	got, ok = m.ToGenerated(200)
	assert.True(t, ok)
	assert.Equal(t, 10, got)
	_, ok = m.ToGenerated(205)
	assert.False(t, ok)

	_, ok = m.ToGenerated(50)
	assert.False(t, ok)
}

func TestToSourceRoundTrip(t *testing.T) {
	m := testMap()

	// Every linear generated position round-trips through source and back.
	for _, textOffset := range []int{0, 3, 9, 25, 33, 39} {
		src, ok := m.ToSource(textOffset)
		assert.True(t, ok)
		back, ok := m.ToGenerated(src)
		assert.True(t, ok)
		assert.Equal(t, textOffset, back)
	}
}
