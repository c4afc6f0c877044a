package manifestio

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgvet-io/pgvet-engine/pkg/models"
)

const sampleManifest = `{
	"viewLibrary": [
		{
			"module": "app",
			"name": "active_users",
			"varName": "activeUsers",
			"fileName": "views.src",
			"fileContents": "...",
			"segments": [
				{"kind": "literal", "text": "SELECT id FROM users WHERE active", "sourceOffset": 10},
				{"kind": "ref", "refModule": "app", "refName": "base", "sourceOffset": 50}
			]
		}
	],
	"statements": [
		{
			"kind": "query",
			"text": "SELECT id FROM users",
			"fileName": "queries.src",
			"fileContents": "...",
			"sourceMap": [{"sourceOffset": 5, "textStart": 0, "textEnd": 20, "linear": true}],
			"expected": {"id": {"type": "number", "notNull": true}},
			"callSpan": {"startLine": 3, "startCol": 9},
			"methodName": "queryOne"
		},
		{
			"kind": "insert",
			"text": "INSERT INTO users (id) VALUES ($1)",
			"fileName": "queries.src",
			"fileContents": "...",
			"sourceMap": [],
			"expected": null,
			"callSpan": {"startLine": 8, "startCol": 1, "endLine": 8, "endCol": 40},
			"tableName": "users",
			"suppliedColumns": {"id": {"type": "number", "notNull": true}}
		}
	]
}`

func TestDecode(t *testing.T) {
	manifest, err := Decode(strings.NewReader(sampleManifest))
	require.NoError(t, err)

	require.Len(t, manifest.ViewLibrary, 1)
	frag := manifest.ViewLibrary[0]
	assert.Equal(t, models.ViewName{Module: "app", Name: "active_users"}, frag.Name)
	require.Len(t, frag.Segments, 2)
	assert.Equal(t, models.SegmentLiteral, frag.Segments[0].Kind)
	assert.Equal(t, 10, frag.Segments[0].SourceOffset)
	assert.Equal(t, models.SegmentViewRef, frag.Segments[1].Kind)
	assert.Equal(t, models.ViewName{Module: "app", Name: "base"}, frag.Segments[1].Ref)

	require.Len(t, manifest.Statements, 2)

	query := manifest.Statements[0]
	require.NotNil(t, query.Query)
	assert.Nil(t, query.Insert)
	assert.Equal(t, "SELECT id FROM users", query.Query.Text)
	assert.Equal(t, "queryOne", query.Query.MethodName)
	assert.Equal(t, models.PointSpan(3, 9), query.Query.CallSpan)
	require.NotNil(t, query.Query.Expected)
	assert.Equal(t, models.ColumnType{HostType: "number", NotNull: true}, query.Query.Expected["id"])

	src, ok := query.Query.SourceMap.ToSource(4)
	require.True(t, ok)
	assert.Equal(t, 9, src)

	insert := manifest.Statements[1]
	require.NotNil(t, insert.Insert)
	assert.Nil(t, insert.Query)
	assert.Equal(t, "users", insert.Insert.TableName)
	// null expected means skip type checking.
	assert.Nil(t, insert.Insert.Expected)
	assert.Equal(t, models.RangeSpan(8, 1, 8, 40), insert.Insert.CallSpan)
	assert.Equal(t,
		models.ColumnShape{"id": {HostType: "number", NotNull: true}},
		insert.Insert.SuppliedColumns)
}

func TestDecodeRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "unknown statement kind",
			body: `{"statements": [{"kind": "upsert", "text": "..."}]}`,
		},
		{
			name: "unknown segment kind",
			body: `{"viewLibrary": [{"module": "a", "name": "v", "segments": [{"kind": "splice"}]}]}`,
		},
		{
			name: "insert without table name",
			body: `{"statements": [{"kind": "insert", "text": "..."}]}`,
		},
		{
			name: "unknown top-level field",
			body: `{"queries": []}`,
		},
		{
			name: "not json",
			body: `{`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.body))
			assert.Error(t, err)
		})
	}
}
