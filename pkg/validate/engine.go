package validate

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/pgvet-io/pgvet-engine/pkg/database"
	"github.com/pgvet-io/pgvet-engine/pkg/logging"
	"github.com/pgvet-io/pgvet-engine/pkg/models"
	"github.com/pgvet-io/pgvet-engine/pkg/sandbox"
)

// probeSavepoint is the savepoint each describe probe runs under. Rolling
// back to it after every probe (success or failure) keeps the enclosing
// transaction healthy, so many probes compose on one connection without a
// full transaction reset.
const probeSavepoint = "pgvet_probe"

// Engine probes resolved statements against the sandbox without committing
// any effect.
type Engine struct {
	mgr    *sandbox.Manager
	logger *zap.Logger
}

// NewEngine creates a validation engine bound to the sandbox manager. If
// logger is nil, a no-op logger is used.
func NewEngine(mgr *sandbox.Manager, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{mgr: mgr, logger: logger}
}

// describe asks the server to prepare-and-describe the statement text under
// a savepoint, never executing it. The unnamed prepared statement is used so
// nothing needs deallocation. A database error comes back as a structured
// probe error; any other failure propagates as fatal.
func (e *Engine) describe(ctx context.Context, tx pgx.Tx, sql string) (*pgconn.StatementDescription, *database.PGError, error) {
	if _, err := tx.Exec(ctx, "SAVEPOINT "+probeSavepoint); err != nil {
		return nil, nil, fmt.Errorf("open probe savepoint: %w", err)
	}

	sd, describeErr := tx.Conn().PgConn().Prepare(ctx, "", sql, nil)

	if _, err := tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+probeSavepoint); err != nil {
		return nil, nil, fmt.Errorf("roll back probe savepoint: %w", err)
	}
	if _, err := tx.Exec(ctx, "RELEASE SAVEPOINT "+probeSavepoint); err != nil {
		return nil, nil, fmt.Errorf("release probe savepoint: %w", err)
	}

	if describeErr != nil {
		pgErr, ok := database.ExtractPGError(describeErr)
		if !ok {
			return nil, nil, fmt.Errorf("describe statement: %w", describeErr)
		}
		e.logger.Debug("Describe probe failed",
			zap.String("sql", logging.SanitizeSQL(sql)),
			zap.String("code", pgErr.Code))
		return nil, pgErr, nil
	}

	return sd, nil, nil
}

// shapeFromFields maps described result columns to a host shape via the
// nullability index and the type mapper. Columns whose provenance the server
// reports (base table OID and attribute, flattened through views) inherit
// that column's NOT NULL status; computed columns are assumed nullable.
func (e *Engine) shapeFromFields(fields []pgconn.FieldDescription, tm *TypeMapper) (models.ColumnShape, []string) {
	shape := make(models.ColumnShape, len(fields))
	seen := make(map[string]bool, len(fields))
	reported := make(map[string]bool)
	var duplicates []string

	for _, f := range fields {
		name := f.Name
		if seen[name] {
			// Each duplicated name is reported once no matter how many
			// times it repeats.
			if !reported[name] {
				reported[name] = true
				duplicates = append(duplicates, name)
			}
			continue
		}
		seen[name] = true

		hostType, ok := tm.HostType(f.DataTypeOID)
		if !ok {
			hostType = fmt.Sprintf("unknown(oid=%d)", f.DataTypeOID)
		}
		shape[name] = models.ColumnType{
			HostType: hostType,
			NotNull:  e.mgr.State().Nullability.NotNull(f.TableOID, f.TableAttributeNumber),
		}
	}

	return shape, duplicates
}

// ValidateQuery probes one resolved query and classifies the outcome
// against its expected shape. The returned error is fatal (connection-level)
// only; everything statement-shaped lands in the Outcome.
func (e *Engine) ValidateQuery(ctx context.Context, tx pgx.Tx, q *models.ResolvedQuery, tm *TypeMapper) (Outcome, error) {
	sd, pgErr, err := e.describe(ctx, tx, q.Text)
	if err != nil {
		return Outcome{}, err
	}
	if pgErr != nil {
		return Outcome{Kind: OutcomeDescribeError, DB: pgErr}, nil
	}

	actual, duplicates := e.shapeFromFields(sd.Fields, tm)
	if len(duplicates) > 0 {
		return Outcome{Kind: OutcomeDuplicateColumnNames, DuplicateNames: duplicates}, nil
	}

	if q.Expected != nil && !q.Expected.Equal(actual) {
		return Outcome{Kind: OutcomeWrongColumnTypes, Actual: actual}, nil
	}

	return Outcome{Kind: OutcomeNoErrors}, nil
}

// ValidateInsert validates one resolved insert: target table existence first
// (short-circuits), then a cross-check of the supplied columns against the
// table's real columns accumulating every violation into a single outcome,
// then the same describe probe as queries. The cross-check runs before the
// probe so a nonexistent supplied column reports as a column violation rather
// than as the describe error the server would raise for it.
func (e *Engine) ValidateInsert(ctx context.Context, tx pgx.Tx, ins *models.ResolvedInsert, tm *TypeMapper) (Outcome, error) {
	cols, exists, err := e.mgr.TableColumns(ctx, ins.TableName)
	if err != nil {
		return Outcome{}, err
	}
	if !exists {
		return Outcome{Kind: OutcomeInvalidTableName, Table: ins.TableName}, nil
	}

	if violations := e.checkInsertColumns(ins, cols, tm); len(violations) > 0 {
		return Outcome{Kind: OutcomeInvalidInsertColumns, Table: ins.TableName, Violations: violations}, nil
	}

	sd, pgErr, err := e.describe(ctx, tx, ins.Text)
	if err != nil {
		return Outcome{}, err
	}
	if pgErr != nil {
		return Outcome{Kind: OutcomeDescribeError, DB: pgErr}, nil
	}

	actual, duplicates := e.shapeFromFields(sd.Fields, tm)
	if len(duplicates) > 0 {
		return Outcome{Kind: OutcomeDuplicateColumnNames, DuplicateNames: duplicates}, nil
	}
	if ins.Expected != nil && !ins.Expected.Equal(actual) {
		return Outcome{Kind: OutcomeWrongColumnTypes, Actual: actual}, nil
	}

	return Outcome{Kind: OutcomeNoErrors}, nil
}

// checkInsertColumns accumulates every supplied-column violation rather than
// stopping at the first: a column not on the table, a column whose declared
// type or nullability disagrees, and a NOT NULL table column without a
// default that was not supplied at all.
func (e *Engine) checkInsertColumns(ins *models.ResolvedInsert, cols []sandbox.TableColumn, tm *TypeMapper) []InsertViolation {
	byName := make(map[string]sandbox.TableColumn, len(cols))
	for _, c := range cols {
		byName[c.Name] = c
	}

	var violations []InsertViolation

	for name, supplied := range ins.SuppliedColumns {
		col, ok := byName[name]
		if !ok {
			violations = append(violations, InsertViolation{
				Kind:   ColNotFound,
				Table:  ins.TableName,
				Column: name,
				Actual: supplied.Render(),
			})
			continue
		}

		hostType, ok := tm.HostType(col.TypeOID)
		if !ok {
			hostType = fmt.Sprintf("unknown(oid=%d)", col.TypeOID)
		}
		tableSide := models.ColumnType{HostType: hostType, NotNull: col.NotNull}

		typeDisagrees := supplied.HostType != tableSide.HostType
		// Supplying a maybe-null value for a NOT NULL column is only valid
		// when the column has a default to fall back to.
		nullabilityDisagrees := col.NotNull && !supplied.NotNull && !col.HasDefault

		if typeDisagrees || nullabilityDisagrees {
			violations = append(violations, InsertViolation{
				Kind:     ColTypeMismatch,
				Table:    ins.TableName,
				Column:   name,
				Expected: tableSide.Render(),
				Actual:   supplied.Render(),
			})
		}
	}

	for _, col := range cols {
		if !col.NotNull || col.HasDefault {
			continue
		}
		if _, supplied := ins.SuppliedColumns[col.Name]; !supplied {
			hostType, ok := tm.HostType(col.TypeOID)
			if !ok {
				hostType = fmt.Sprintf("unknown(oid=%d)", col.TypeOID)
			}
			violations = append(violations, InsertViolation{
				Kind:     MissingRequiredCol,
				Table:    ins.TableName,
				Column:   col.Name,
				Expected: models.ColumnType{HostType: hostType, NotNull: true}.Render(),
			})
		}
	}

	return violations
}
