package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestColumnTypeRender(t *testing.T) {
	assert.Equal(t, "Req<number>", ColumnType{HostType: "number", NotNull: true}.Render())
	assert.Equal(t, "Opt<string>", ColumnType{HostType: "string"}.Render())
}

func TestCanonicalString(t *testing.T) {
	tests := []struct {
		name     string
		shape    ColumnShape
		expected string
	}{
		{
			name:     "nil shape is a distinct sentinel",
			shape:    nil,
			expected: "<any>",
		},
		{
			name:     "empty shape",
			shape:    ColumnShape{},
			expected: "{}",
		},
		{
			name:     "single column",
			shape:    ColumnShape{"id": {HostType: "number", NotNull: true}},
			expected: "{id: Req<number>}",
		},
		{
			name: "columns are sorted by name",
			shape: ColumnShape{
				"b": {HostType: "string"},
				"a": {HostType: "number", NotNull: true},
			},
			expected: "{a: Req<number>; b: Opt<string>}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.shape.CanonicalString())
		})
	}
}

func TestShapeEqual(t *testing.T) {
	a := ColumnShape{
		"id":   {HostType: "number", NotNull: true},
		"name": {HostType: "string"},
	}
	b := ColumnShape{
		"name": {HostType: "string"},
		"id":   {HostType: "number", NotNull: true},
	}
	assert.True(t, a.Equal(b))

	b["name"] = ColumnType{HostType: "string", NotNull: true}
	assert.False(t, a.Equal(b))

	assert.True(t, ColumnShape(nil).Equal(nil))
	assert.False(t, ColumnShape(nil).Equal(ColumnShape{}))
	assert.False(t, ColumnShape{}.Equal(nil))
	assert.True(t, ColumnShape{}.Equal(ColumnShape{}))
}
