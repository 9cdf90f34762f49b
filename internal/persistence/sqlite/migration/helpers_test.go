package migration

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

// openTestDB opens a temporary database file with the migration settings and
// pins one connection to it
func openTestDB(t *testing.T, name string) (string, *sql.Conn) {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	return path, openConn(t, path)
}

// openConn pins a connection to an existing or new database file
func openConn(t *testing.T, path string) *sql.Conn {
	t.Helper()
	ctx := context.Background()

	db, err := NewConnectionManager(MigrationSQLiteConfig(path)).GetConnection(ctx)
	if err != nil {
		t.Fatalf("Failed to open %s: %v", path, err)
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		t.Fatalf("Failed to pin connection: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
		db.Close()
	})
	return conn
}

func execAll(t *testing.T, q Querier, statements ...string) {
	t.Helper()
	for _, stmt := range statements {
		if _, err := q.ExecContext(context.Background(), stmt); err != nil {
			t.Fatalf("Failed to execute %q: %v", stmt, err)
		}
	}
}

func queryInt(t *testing.T, q Querier, query string, args ...any) int64 {
	t.Helper()
	var n int64
	if err := q.QueryRowContext(context.Background(), query, args...).Scan(&n); err != nil {
		t.Fatalf("Failed to query %q: %v", query, err)
	}
	return n
}

func queryString(t *testing.T, q Querier, query string, args ...any) string {
	t.Helper()
	var s string
	if err := q.QueryRowContext(context.Background(), query, args...).Scan(&s); err != nil {
		t.Fatalf("Failed to query %q: %v", query, err)
	}
	return s
}

func hasTable(t *testing.T, q Querier, schema, table string) bool {
	t.Helper()
	exists, err := tableExists(context.Background(), q, schema, table)
	if err != nil {
		t.Fatalf("Failed to check table %s: %v", table, err)
	}
	return exists
}

func columnType(t *testing.T, q Querier, table, column string) string {
	t.Helper()
	return queryString(t, q, `SELECT type FROM pragma_table_info(?) WHERE name = ?`, table, column)
}

func currentVersion(t *testing.T, q Querier) int {
	t.Helper()
	v, err := NewVersionStore().CurrentVersion(context.Background(), q)
	if err != nil {
		t.Fatalf("Failed to read schema version: %v", err)
	}
	return v
}
