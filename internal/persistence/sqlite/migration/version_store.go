package migration

import (
	"context"
	"fmt"
)

// VersionTable is the reserved single-row table holding the schema version
const VersionTable = "schema_version"

// VersionStore reads and writes the schema version row of one schema on a
// connection. The zero schema is "main".
type VersionStore struct {
	schema string
}

// NewVersionStore returns a VersionStore for the main database of a connection
func NewVersionStore() *VersionStore {
	return &VersionStore{schema: "main"}
}

// NewAttachedVersionStore returns a VersionStore for a database attached under schema
func NewAttachedVersionStore(schema string) *VersionStore {
	return &VersionStore{schema: schema}
}

// Schema returns the schema name the store operates on
func (s *VersionStore) Schema() string {
	return schemaOrMain(s.schema)
}

// Exists reports whether the version table exists
func (s *VersionStore) Exists(ctx context.Context, q Querier) (bool, error) {
	return tableExists(ctx, q, s.schema, VersionTable)
}

// CurrentVersion reads the single version row. A missing table, zero rows,
// several rows or a NULL version all fail with ErrCorruptVersionState.
func (s *VersionStore) CurrentVersion(ctx context.Context, q Querier) (int, error) {
	exists, err := s.Exists(ctx, q)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, fmt.Errorf("%w: %s table is missing in %s", ErrCorruptVersionState, VersionTable, s.Schema())
	}

	query := fmt.Sprintf(`SELECT version FROM %s`, qualify(s.schema, VersionTable))
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return 0, NewDatabaseError(s.Schema(), query, "read schema version", err)
	}
	defer rows.Close()

	var versions []*int64
	for rows.Next() {
		var v *int64
		if err := rows.Scan(&v); err != nil {
			return 0, fmt.Errorf("%w: %s holds a non-integer version: %v", ErrCorruptVersionState, VersionTable, err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return 0, NewDatabaseError(s.Schema(), query, "iterate schema version", err)
	}

	switch {
	case len(versions) == 0:
		return 0, fmt.Errorf("%w: %s has no rows", ErrCorruptVersionState, VersionTable)
	case len(versions) > 1:
		return 0, fmt.Errorf("%w: %s has %d rows", ErrCorruptVersionState, VersionTable, len(versions))
	case versions[0] == nil:
		return 0, fmt.Errorf("%w: %s holds a NULL version", ErrCorruptVersionState, VersionTable)
	}
	return int(*versions[0]), nil
}

// SetVersion updates the version row to v, inserting it when the table is
// empty. It must run in the transaction of the changeset that v records.
func (s *VersionStore) SetVersion(ctx context.Context, q Querier, v int) error {
	update := fmt.Sprintf(`UPDATE %s SET version = ?`, qualify(s.schema, VersionTable))
	res, err := q.ExecContext(ctx, update, v)
	if err != nil {
		return NewDatabaseError(s.Schema(), update, "update schema version", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return NewDatabaseError(s.Schema(), update, "update schema version", err)
	}
	switch {
	case n == 1:
		return nil
	case n > 1:
		return fmt.Errorf("%w: %s has %d rows", ErrCorruptVersionState, VersionTable, n)
	}

	insert := fmt.Sprintf(`INSERT INTO %s (version) VALUES (?)`, qualify(s.schema, VersionTable))
	if _, err := q.ExecContext(ctx, insert, v); err != nil {
		return NewDatabaseError(s.Schema(), insert, "insert schema version", err)
	}
	return nil
}

// Initialize creates the version table for a new database and records v
func (s *VersionStore) Initialize(ctx context.Context, q Querier, v int) error {
	create := fmt.Sprintf(`CREATE TABLE %s (version INTEGER NOT NULL)`, qualify(s.schema, VersionTable))
	if _, err := q.ExecContext(ctx, create); err != nil {
		return NewDatabaseError(s.Schema(), create, "create schema version table", err)
	}
	return s.SetVersion(ctx, q, v)
}
