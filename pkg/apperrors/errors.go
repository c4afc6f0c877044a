package apperrors

import "errors"

var (
	ErrNotLocalDatabase = errors.New("refusing to use a non-local database as a sandbox")
	ErrConnectionLost   = errors.New("sandbox connection lost")
	ErrMalformedConfig  = errors.New("malformed config file")
	ErrMigrationFailed  = errors.New("migration replay failed")
	ErrRunInProgress    = errors.New("a validation run is already in progress")
)
