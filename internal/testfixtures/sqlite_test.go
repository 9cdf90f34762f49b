package testfixtures

import (
	"context"
	"testing"

	"github.com/example/cimdb/internal/persistence/sqlite/migration"
)

func fileVersion(t *testing.T, path string) int {
	t.Helper()
	ctx := context.Background()

	db, err := migration.NewConnectionManager(migration.TempFileTestSQLiteConfig(path)).GetConnection(ctx)
	if err != nil {
		t.Fatalf("failed to open %s: %v", path, err)
	}
	defer db.Close()

	version, err := migration.NewVersionStore().CurrentVersion(ctx, db)
	if err != nil {
		t.Fatalf("failed to read the version of %s: %v", path, err)
	}
	return version
}

func TestLegacyNetworkFile(t *testing.T) {
	t.Run("stops at the requested release", func(t *testing.T) {
		paths := Paths(t.TempDir())
		LegacyNetworkFile(t, paths, 53,
			`INSERT INTO battery_controls (mrid, control_mode) VALUES ('bc1', 'UNKNOWN_CONTROL_MODE')`,
		)

		if got := fileVersion(t, paths.Network); got != 53 {
			t.Fatalf("expected version 53, got %d", got)
		}
	})

	t.Run("creates split files from version 56", func(t *testing.T) {
		paths := Paths(t.TempDir())
		LegacyNetworkFile(t, paths, 56)

		if got := fileVersion(t, paths.Customer); got != 56 {
			t.Fatalf("expected the customer file at 56, got %d", got)
		}
	})
}
