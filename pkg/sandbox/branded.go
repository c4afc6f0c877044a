package sandbox

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/pgvet-io/pgvet-engine/pkg/models"
	"github.com/pgvet-io/pgvet-engine/pkg/views"
)

// brandTarget is one column to rewrite to a branded type, either directly
// bound or reached through a foreign key.
type brandTarget struct {
	table    string
	column   string
	typeName string
}

// applyBrandedTypes rewrites each bound column (and any foreign-key-linked
// columns) to a range type wrapping the column's base type. Two columns
// bound to different brand names become structurally incompatible even
// though their storage type is identical. Constraints and indexes touching a
// rewritten column are dropped first; they serve no purpose in a sandbox
// that never persists data. "Has a default" status is preserved across the
// rewrite because insert validation depends on it.
func (m *Manager) applyBrandedTypes(ctx context.Context, bindings []models.BrandedTypeBinding) error {
	m.state.BrandedSQLTypes = make(map[string]string)

	// brand SQL type name -> base type it wraps (consistency check)
	created := make(map[string]string)
	visited := make(map[string]bool)

	queue := make([]brandTarget, 0, len(bindings))
	for _, b := range bindings {
		queue = append(queue, brandTarget{table: b.TableName, column: b.ColumnName, typeName: b.TypeName})
	}

	for len(queue) > 0 {
		target := queue[0]
		queue = queue[1:]

		key := target.table + "." + target.column
		if visited[key] {
			continue
		}
		visited[key] = true

		linked, err := m.brandColumn(ctx, target, created)
		if err != nil {
			return err
		}
		queue = append(queue, linked...)
	}

	return nil
}

// brandColumn rewrites one column and returns the foreign-key-linked columns
// that must receive the same brand.
func (m *Manager) brandColumn(ctx context.Context, target brandTarget, created map[string]string) ([]brandTarget, error) {
	conn := m.sandbox.Conn()

	const colQuery = `
		SELECT c.oid, a.attnum, format_type(a.atttypid, a.atttypmod), a.atthasdef
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		JOIN pg_attribute a ON a.attrelid = c.oid AND a.attname = $2
		WHERE n.nspname = $3 AND c.relname = $1
		  AND c.relkind IN ('r', 'p') AND a.attnum > 0 AND NOT a.attisdropped
	`
	var relOID uint32
	var attNum int16
	var baseType string
	var hasDefault bool
	err := conn.QueryRow(ctx, colQuery, target.table, target.column, SchemaName).
		Scan(&relOID, &attNum, &baseType, &hasDefault)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("branded type %s: column %s.%s does not exist",
				target.typeName, target.table, target.column)
		}
		return nil, fmt.Errorf("look up branded column %s.%s: %w", target.table, target.column, err)
	}

	brandSQL := views.SanitizeIdentifier(target.typeName)

	if existingBase, ok := created[brandSQL]; ok {
		if existingBase != baseType {
			return nil, fmt.Errorf("branded type %s bound to columns of different base types (%s vs %s)",
				target.typeName, existingBase, baseType)
		}
	} else {
		createSQL := fmt.Sprintf("CREATE TYPE %s AS RANGE (subtype = %s)",
			pgx.Identifier{brandSQL}.Sanitize(), baseType)
		if _, err := conn.Exec(ctx, createSQL); err != nil {
			return nil, fmt.Errorf("create branded range type %s over %s: %w", brandSQL, baseType, err)
		}
		created[brandSQL] = baseType
		m.state.BrandedSQLTypes[brandSQL] = target.typeName
	}

	// Columns referencing this one through single-column foreign keys must
	// carry the same brand, or every join against them would stop
	// typechecking.
	linked, err := m.foreignKeyLinkedColumns(ctx, relOID, attNum, target.typeName)
	if err != nil {
		return nil, err
	}

	if err := m.dropColumnConstraints(ctx, relOID, attNum, target.table); err != nil {
		return nil, err
	}
	if err := m.dropColumnIndexes(ctx, relOID, attNum); err != nil {
		return nil, err
	}

	tableIdent := pgx.Identifier{target.table}.Sanitize()
	colIdent := pgx.Identifier{target.column}.Sanitize()
	brandIdent := pgx.Identifier{brandSQL}.Sanitize()

	if hasDefault {
		if _, err := conn.Exec(ctx, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP DEFAULT", tableIdent, colIdent)); err != nil {
			return nil, fmt.Errorf("drop default on %s.%s: %w", target.table, target.column, err)
		}
	}

	// The sandbox never holds rows, so USING NULL is a valid rewrite for any
	// base type.
	alterSQL := fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s USING NULL", tableIdent, colIdent, brandIdent)
	if _, err := conn.Exec(ctx, alterSQL); err != nil {
		return nil, fmt.Errorf("rewrite %s.%s to branded type %s: %w", target.table, target.column, brandSQL, err)
	}

	if hasDefault {
		if _, err := conn.Exec(ctx, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET DEFAULT NULL", tableIdent, colIdent)); err != nil {
			return nil, fmt.Errorf("restore default status on %s.%s: %w", target.table, target.column, err)
		}
	}

	m.logger.Debug("Applied branded column type",
		zap.String("type", target.typeName),
		zap.String("table", target.table),
		zap.String("column", target.column),
		zap.String("base_type", baseType))

	return linked, nil
}

// foreignKeyLinkedColumns finds columns referencing (relOID, attNum) through
// single-column foreign keys and drops those constraints. Multi-column
// foreign keys are left alone: branded bindings address scalar id columns.
func (m *Manager) foreignKeyLinkedColumns(ctx context.Context, relOID uint32, attNum int16, typeName string) ([]brandTarget, error) {
	conn := m.sandbox.Conn()

	const fkQuery = `
		SELECT con.conname, refc.relname, refa.attname
		FROM pg_constraint con
		JOIN pg_class refc ON refc.oid = con.conrelid
		JOIN pg_attribute refa ON refa.attrelid = con.conrelid AND refa.attnum = con.conkey[1]
		WHERE con.contype = 'f'
		  AND con.confrelid = $1
		  AND array_length(con.conkey, 1) = 1
		  AND con.confkey[1] = $2
	`
	rows, err := conn.Query(ctx, fkQuery, relOID, attNum)
	if err != nil {
		return nil, fmt.Errorf("query referencing foreign keys: %w", err)
	}
	defer rows.Close()

	type fk struct {
		conname, table, column string
	}
	var fks []fk
	for rows.Next() {
		var f fk
		if err := rows.Scan(&f.conname, &f.table, &f.column); err != nil {
			return nil, fmt.Errorf("scan referencing foreign key: %w", err)
		}
		fks = append(fks, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate referencing foreign keys: %w", err)
	}

	var linked []brandTarget
	for _, f := range fks {
		dropSQL := fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s",
			pgx.Identifier{f.table}.Sanitize(), pgx.Identifier{f.conname}.Sanitize())
		if _, err := conn.Exec(ctx, dropSQL); err != nil {
			return nil, fmt.Errorf("drop foreign key %s: %w", f.conname, err)
		}
		linked = append(linked, brandTarget{table: f.table, column: f.column, typeName: typeName})
	}
	return linked, nil
}

// dropColumnConstraints drops every constraint on the table that involves
// the column.
func (m *Manager) dropColumnConstraints(ctx context.Context, relOID uint32, attNum int16, table string) error {
	conn := m.sandbox.Conn()

	rows, err := conn.Query(ctx,
		"SELECT conname FROM pg_constraint WHERE conrelid = $1 AND $2::smallint = ANY(conkey)",
		relOID, attNum)
	if err != nil {
		return fmt.Errorf("query column constraints: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("scan constraint name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate column constraints: %w", err)
	}

	for _, name := range names {
		dropSQL := fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s CASCADE",
			pgx.Identifier{table}.Sanitize(), pgx.Identifier{name}.Sanitize())
		if _, err := conn.Exec(ctx, dropSQL); err != nil {
			return fmt.Errorf("drop constraint %s: %w", name, err)
		}
	}
	return nil
}

// dropColumnIndexes drops remaining standalone indexes involving the column.
// Constraint-owned indexes are already gone with their constraints.
func (m *Manager) dropColumnIndexes(ctx context.Context, relOID uint32, attNum int16) error {
	conn := m.sandbox.Conn()

	const idxQuery = `
		SELECT i.indexrelid::regclass::text
		FROM pg_index i
		WHERE i.indrelid = $1
		  AND $2::smallint = ANY(string_to_array(i.indkey::text, ' ')::smallint[])
	`
	rows, err := conn.Query(ctx, idxQuery, relOID, attNum)
	if err != nil {
		return fmt.Errorf("query column indexes: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("scan index name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate column indexes: %w", err)
	}

	for _, name := range names {
		if _, err := conn.Exec(ctx, "DROP INDEX IF EXISTS "+name); err != nil {
			return fmt.Errorf("drop index %s: %w", name, err)
		}
	}
	return nil
}
