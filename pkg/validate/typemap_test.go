package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pgvet-io/pgvet-engine/pkg/models"
	"github.com/pgvet-io/pgvet-engine/pkg/sandbox"
)

func testTypeIndex() *sandbox.TypeIndex {
	return sandbox.StaticTypeIndex(map[uint32]sandbox.TypeEntry{
		23:   {Name: "int4"},
		25:   {Name: "text"},
		16:   {Name: "bool"},
		1114: {Name: "timestamp"},
		1184: {Name: "timestamptz"},
		2950: {Name: "uuid"},
		1007: {Name: "_int4", Elem: 23},
		600:  {Name: "point"},
		9001: {Name: "userid"},   // branded range type
		9002: {Name: "money_eu"}, // custom-mapped type
		9003: {Name: "_userid", Elem: 9001},
	})
}

func TestHostTypeBuiltins(t *testing.T) {
	tm := NewTypeMapper(testTypeIndex(), nil, nil)

	tests := []struct {
		oid      uint32
		expected string
	}{
		{23, "number"},
		{25, "string"},
		{16, "boolean"},
		{1114, "LocalDateTime"},
		{1184, "Instant"},
		{2950, "UUID"},
		{1007, "number[]"},
		{600, "point"}, // unmapped types surface under their SQL name
	}

	for _, tt := range tests {
		got, ok := tm.HostType(tt.oid)
		assert.True(t, ok, "oid %d", tt.oid)
		assert.Equal(t, tt.expected, got, "oid %d", tt.oid)
	}

	_, ok := tm.HostType(424242)
	assert.False(t, ok, "unknown oid must not resolve")
}

func TestHostTypeCustomAndBranded(t *testing.T) {
	custom := []models.TypeMapping{
		{SQLTypeName: "money_eu", HostTypeName: "EuroAmount"},
		{SQLTypeName: "int4", HostTypeName: "Int"}, // custom overrides builtin
	}
	branded := map[string]string{"userid": "UserId"}

	tm := NewTypeMapper(testTypeIndex(), custom, branded)

	got, _ := tm.HostType(9002)
	assert.Equal(t, "EuroAmount", got)

	got, _ = tm.HostType(23)
	assert.Equal(t, "Int", got)

	got, _ = tm.HostType(9001)
	assert.Equal(t, "UserId", got)

	// Array of a branded type resolves through the same override.
	got, _ = tm.HostType(9003)
	assert.Equal(t, "UserId[]", got)
}
