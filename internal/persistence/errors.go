package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrConstraintViolation is returned when a write breaks a NOT NULL,
	// UNIQUE or CHECK constraint of the current schema.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
	// ErrBusy is returned when the database stayed locked past the busy timeout.
	ErrBusy = errors.New("persistence: database busy")
)
