package database

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// PGError is the structured shape of a PostgreSQL server error. Position is
// the 1-based character index into the statement text that the server
// attributed the error to, or 0 when the server reported none.
type PGError struct {
	Code     string
	Message  string
	Detail   string
	Hint     string
	Position int
}

// Error implements the error interface.
func (e *PGError) Error() string {
	return e.Message
}

// ExtractPGError tests err against the database's structured error shape.
// Errors that are not server errors (connection failures, context
// cancellation) fall through with ok = false and must be treated as fatal
// by callers.
func ExtractPGError(err error) (*PGError, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return nil, false
	}
	return &PGError{
		Code:     pgErr.Code,
		Message:  pgErr.Message,
		Detail:   pgErr.Detail,
		Hint:     pgErr.Hint,
		Position: int(pgErr.Position),
	}, true
}
