// Package validate probes resolved statements against the sandbox and
// classifies each outcome against the statement's expected shape.
package validate

import (
	"github.com/pgvet-io/pgvet-engine/pkg/database"
	"github.com/pgvet-io/pgvet-engine/pkg/models"
)

// OutcomeKind is the closed set of per-statement validation results. Every
// switch over OutcomeKind must handle all kinds and fail loudly on an
// unknown value.
type OutcomeKind int

const (
	// OutcomeNoErrors means the statement validated clean.
	OutcomeNoErrors OutcomeKind = iota
	// OutcomeDescribeError carries a database error raised while describing
	// the statement.
	OutcomeDescribeError
	// OutcomeDuplicateColumnNames marks a result set with repeated column
	// names; duplicates are ambiguous regardless of types.
	OutcomeDuplicateColumnNames
	// OutcomeWrongColumnTypes means the discovered result shape disagrees
	// with the expected one.
	OutcomeWrongColumnTypes
	// OutcomeInvalidTableName means an insert's target table does not exist.
	OutcomeInvalidTableName
	// OutcomeInvalidInsertColumns carries every supplied-column violation of
	// an insert, accumulated rather than short-circuited.
	OutcomeInvalidInsertColumns
)

// ViolationKind classifies one insert column violation.
type ViolationKind int

const (
	// ColNotFound: a supplied column does not exist on the table.
	ColNotFound ViolationKind = iota
	// ColTypeMismatch: a supplied column's declared type or nullability
	// disagrees with the table's.
	ColTypeMismatch
	// MissingRequiredCol: a NOT NULL table column without a default was not
	// supplied at all.
	MissingRequiredCol
)

// InsertViolation is one accumulated insert column violation.
type InsertViolation struct {
	Kind     ViolationKind
	Table    string
	Column   string
	Expected string // the table-side type/nullability, rendered
	Actual   string // the supplied type/nullability, rendered
}

// Outcome is the result of validating one statement. Exactly the fields
// relevant to Kind are populated.
type Outcome struct {
	Kind           OutcomeKind
	DB             *database.PGError  // OutcomeDescribeError
	DuplicateNames []string           // OutcomeDuplicateColumnNames
	Actual         models.ColumnShape // OutcomeWrongColumnTypes: the discovered shape
	Table          string             // OutcomeInvalidTableName / OutcomeInvalidInsertColumns
	Violations     []InsertViolation  // OutcomeInvalidInsertColumns
}
