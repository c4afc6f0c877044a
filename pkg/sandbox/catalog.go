package sandbox

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// NullabilityIndex maps (table OID, attribute number) to the column's
// NOT NULL status for every base table in the sandbox schema.
//
// View columns need no entries of their own: the wire protocol's row
// descriptions report each result column's originating base table and
// attribute (resolved recursively through view target lists by the server),
// so a lookup against base tables covers columns projected through any depth
// of views.
type NullabilityIndex struct {
	notNull map[colKey]bool
}

type colKey struct {
	rel uint32
	att uint16
}

// NotNull reports whether the column is known to be NOT NULL. Unknown
// columns (computed expressions, rel 0) report false: without provenance a
// column must be assumed nullable.
func (idx *NullabilityIndex) NotNull(rel uint32, att uint16) bool {
	if idx == nil || rel == 0 {
		return false
	}
	return idx.notNull[colKey{rel: rel, att: att}]
}

// BuildNullabilityIndex derives the nullability lookup table from
// pg_attribute for every base table in the sandbox schema.
func BuildNullabilityIndex(ctx context.Context, conn *pgx.Conn) (*NullabilityIndex, error) {
	const query = `
		SELECT a.attrelid, a.attnum, a.attnotnull
		FROM pg_attribute a
		JOIN pg_class c ON c.oid = a.attrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1
		  AND c.relkind IN ('r', 'p')
		  AND a.attnum > 0
		  AND NOT a.attisdropped
	`

	rows, err := conn.Query(ctx, query, SchemaName)
	if err != nil {
		return nil, fmt.Errorf("query column nullability: %w", err)
	}
	defer rows.Close()

	idx := &NullabilityIndex{notNull: make(map[colKey]bool)}
	for rows.Next() {
		var rel uint32
		var att int16
		var notNull bool
		if err := rows.Scan(&rel, &att, &notNull); err != nil {
			return nil, fmt.Errorf("scan column nullability: %w", err)
		}
		idx.notNull[colKey{rel: rel, att: uint16(att)}] = notNull
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate column nullability: %w", err)
	}

	return idx, nil
}

// TypeIndex maps type OIDs to SQL type names, resolving array types to
// "<element>[]" via the catalog's underscore naming convention for array
// element types.
type TypeIndex struct {
	types map[uint32]pgType
}

type pgType struct {
	name string
	elem uint32
}

// TypeEntry is one explicit type index entry.
type TypeEntry struct {
	Name string
	Elem uint32
}

// StaticTypeIndex builds a type index from explicit entries, without a
// catalog query.
func StaticTypeIndex(entries map[uint32]TypeEntry) *TypeIndex {
	idx := &TypeIndex{types: make(map[uint32]pgType, len(entries))}
	for oid, e := range entries {
		idx.types[oid] = pgType{name: e.Name, elem: e.Elem}
	}
	return idx
}

// SQLTypeName resolves a type OID to its SQL name. Array types render as
// the element type name followed by "[]".
func (idx *TypeIndex) SQLTypeName(oid uint32) (string, bool) {
	if idx == nil {
		return "", false
	}
	t, ok := idx.types[oid]
	if !ok {
		return "", false
	}
	if strings.HasPrefix(t.name, "_") && t.elem != 0 {
		elemName, ok := idx.SQLTypeName(t.elem)
		if !ok {
			return "", false
		}
		return elemName + "[]", true
	}
	return t.name, true
}

// BuildTypeIndex loads the OID-to-name mapping from pg_type. Rebuilt after
// every schema change so branded range types and migration-defined types are
// always present.
func BuildTypeIndex(ctx context.Context, conn *pgx.Conn) (*TypeIndex, error) {
	rows, err := conn.Query(ctx, "SELECT oid, typname, typelem FROM pg_type")
	if err != nil {
		return nil, fmt.Errorf("query pg_type: %w", err)
	}
	defer rows.Close()

	idx := &TypeIndex{types: make(map[uint32]pgType)}
	for rows.Next() {
		var oid, elem uint32
		var name string
		if err := rows.Scan(&oid, &name, &elem); err != nil {
			return nil, fmt.Errorf("scan pg_type row: %w", err)
		}
		idx.types[oid] = pgType{name: name, elem: elem}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pg_type rows: %w", err)
	}

	return idx, nil
}

// TableColumn describes one column of a base table, as needed by insert
// validation.
type TableColumn struct {
	Name       string
	TypeOID    uint32
	NotNull    bool
	HasDefault bool
}

// TableColumns returns the columns of the named table in the sandbox
// schema. ok is false when no such table exists.
func (m *Manager) TableColumns(ctx context.Context, table string) ([]TableColumn, bool, error) {
	const query = `
		SELECT a.attname, a.atttypid, a.attnotnull, a.atthasdef
		FROM pg_attribute a
		JOIN pg_class c ON c.oid = a.attrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1
		  AND c.relname = $2
		  AND c.relkind IN ('r', 'p')
		  AND a.attnum > 0
		  AND NOT a.attisdropped
		ORDER BY a.attnum
	`

	rows, err := m.sandbox.Conn().Query(ctx, query, SchemaName, table)
	if err != nil {
		return nil, false, fmt.Errorf("query table columns for %s: %w", table, err)
	}
	defer rows.Close()

	var cols []TableColumn
	for rows.Next() {
		var c TableColumn
		if err := rows.Scan(&c.Name, &c.TypeOID, &c.NotNull, &c.HasDefault); err != nil {
			return nil, false, fmt.Errorf("scan table column: %w", err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate table columns: %w", err)
	}

	return cols, len(cols) > 0, nil
}
