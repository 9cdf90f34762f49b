package migration

import (
	"errors"
	"fmt"
)

// Migration-specific error types for different failure scenarios
var (
	// ErrCorruptVersionState indicates that the schema_version table is missing,
	// empty, holds several rows or holds a value that is not an integer
	ErrCorruptVersionState = errors.New("schema version state is corrupt")

	// ErrFutureSchemaVersion indicates that the database was written by a newer
	// binary than the one running; it is never downgraded
	ErrFutureSchemaVersion = errors.New("database schema version is newer than this binary supports")

	// ErrUnsupportedSchemaVersion indicates that the database predates the
	// oldest changeset the registry can apply
	ErrUnsupportedSchemaVersion = errors.New("database schema version is older than the oldest supported changeset")

	// ErrChangesetExecution indicates that a changeset failed and its
	// transaction was rolled back
	ErrChangesetExecution = errors.New("changeset execution failed")

	// ErrInvalidRegistry indicates that a changeset registry violates its
	// ordering or authoring rules
	ErrInvalidRegistry = errors.New("invalid changeset registry")

	// ErrDuplicateVersion indicates that two changesets share a version
	ErrDuplicateVersion = errors.New("duplicate changeset version")

	// ErrVersionGap indicates that the changeset sequence is not contiguous
	ErrVersionGap = errors.New("gap in changeset sequence")

	// ErrInvalidCast indicates that a stored value cannot be converted to the
	// target column type without loss
	ErrInvalidCast = errors.New("value cannot be cast without loss")

	// ErrRowCountMismatch indicates that a copy step did not carry every row
	ErrRowCountMismatch = errors.New("row count changed while copying table")
)

// ChangesetError wraps a failure inside a changeset with the database, the
// changeset version and the operation that was executing
type ChangesetError struct {
	Database  string // Registry name of the database being upgraded
	Version   int    // Changeset version that failed
	Step      int    // 1-based operation index, 0 when the failure was outside an operation
	Operation string // Description of the failing operation
	Err       error  // Underlying error
}

// Error implements the error interface
func (e *ChangesetError) Error() string {
	if e.Step > 0 {
		return fmt.Sprintf("%s database: changeset %d: step %d (%s): %v", e.Database, e.Version, e.Step, e.Operation, e.Err)
	}
	return fmt.Sprintf("%s database: changeset %d: %v", e.Database, e.Version, e.Err)
}

// Unwrap returns the underlying error for error unwrapping
func (e *ChangesetError) Unwrap() error {
	return e.Err
}

// Is reports every ChangesetError as an ErrChangesetExecution
func (e *ChangesetError) Is(target error) bool {
	return target == ErrChangesetExecution
}

// NewChangesetError creates a new ChangesetError with context
func NewChangesetError(database string, version, step int, operation string, err error) *ChangesetError {
	return &ChangesetError{
		Database:  database,
		Version:   version,
		Step:      step,
		Operation: operation,
		Err:       err,
	}
}

// DatabaseError wraps database-related errors during migration operations
type DatabaseError struct {
	Database  string // Registry name or schema the query ran against
	Query     string // SQL query that failed (if applicable)
	Operation string // Database operation (execute, query, etc.)
	Err       error  // Underlying error
}

// Error implements the error interface
func (e *DatabaseError) Error() string {
	if e.Database != "" {
		return fmt.Sprintf("database error in %s during %s: %v", e.Database, e.Operation, e.Err)
	}
	return fmt.Sprintf("database error during %s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error
func (e *DatabaseError) Unwrap() error {
	return e.Err
}

// NewDatabaseError creates a new DatabaseError
func NewDatabaseError(database, query, operation string, err error) *DatabaseError {
	return &DatabaseError{
		Database:  database,
		Query:     query,
		Operation: operation,
		Err:       err,
	}
}
