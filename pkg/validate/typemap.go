package validate

import (
	"strings"

	"github.com/pgvet-io/pgvet-engine/pkg/models"
	"github.com/pgvet-io/pgvet-engine/pkg/sandbox"
)

// builtinTypeMap maps SQL type names to host type names. Everything not
// listed here must come from the config's custom mappings or a branded type
// binding; unmapped types surface under their SQL name so the shape diff
// names them honestly.
var builtinTypeMap = map[string]string{
	"int2":        "number",
	"int4":        "number",
	"int8":        "number",
	"float4":      "number",
	"float8":      "number",
	"numeric":     "string",
	"text":        "string",
	"varchar":     "string",
	"bpchar":      "string",
	"name":        "string",
	"char":        "string",
	"bool":        "boolean",
	"json":        "Json",
	"jsonb":       "Json",
	"date":        "LocalDate",
	"time":        "LocalTime",
	"timetz":      "LocalTime",
	"timestamp":   "LocalDateTime",
	"timestamptz": "Instant",
	"interval":    "Interval",
	"uuid":        "UUID",
	"bytea":       "Buffer",
	"void":        "void",
}

// TypeMapper resolves result-column type OIDs to host type names using the
// sandbox's type index, the builtin mapping, the config's custom mappings,
// and the branded-type bindings.
type TypeMapper struct {
	types  *sandbox.TypeIndex
	custom map[string]string
}

// NewTypeMapper builds a mapper for one validation run. branded maps a
// branded range type's SQL name to its host type name.
func NewTypeMapper(types *sandbox.TypeIndex, custom []models.TypeMapping, branded map[string]string) *TypeMapper {
	m := &TypeMapper{
		types:  types,
		custom: make(map[string]string, len(custom)+len(branded)),
	}
	for _, c := range custom {
		m.custom[c.SQLTypeName] = c.HostTypeName
	}
	for sqlName, hostName := range branded {
		m.custom[sqlName] = hostName
	}
	return m
}

// HostType resolves a type OID to a host type name. Arrays resolve as the
// element's host type followed by "[]". ok is false only when the OID is
// absent from the type index entirely.
func (m *TypeMapper) HostType(oid uint32) (string, bool) {
	sqlName, ok := m.types.SQLTypeName(oid)
	if !ok {
		return "", false
	}
	return m.hostTypeForSQLName(sqlName), true
}

func (m *TypeMapper) hostTypeForSQLName(sqlName string) string {
	if elem, isArray := strings.CutSuffix(sqlName, "[]"); isArray {
		return m.hostTypeForSQLName(elem) + "[]"
	}
	if host, ok := m.custom[sqlName]; ok {
		return host
	}
	if host, ok := builtinTypeMap[sqlName]; ok {
		return host
	}
	return sqlName
}
