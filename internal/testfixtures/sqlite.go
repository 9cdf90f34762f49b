// Package testfixtures builds database files in the states older releases
// left them in, for upgrade tests.
package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/cimdb/internal/cim/changesets"
	"github.com/example/cimdb/internal/persistence/sqlite/migration"
)

// Paths returns the file layout the upgrade tool defaults to, inside dir
func Paths(dir string) changesets.Paths {
	return changesets.Paths{
		Network:  filepath.Join(dir, "network.sqlite"),
		Diagram:  filepath.Join(dir, "network-diagram.sqlite"),
		Customer: filepath.Join(dir, "network-customer.sqlite"),
		Metadata: filepath.Join(dir, "network-metadata.sqlite"),
	}
}

// LegacyNetworkFile creates the network file of paths as the release
// shipping version left it and runs the seed statements against it. From
// version 56 on the split files of paths are created as well.
func LegacyNetworkFile(tb testing.TB, paths changesets.Paths, version int, seed ...string) {
	tb.Helper()
	ctx := context.Background()

	var released []migration.ChangeSet
	for _, cs := range changesets.Network().ChangeSets() {
		if cs.Version <= version {
			released = append(released, cs)
		}
	}
	registry, err := migration.NewRegistry(changesets.NetworkDatabase, released...)
	if err != nil {
		tb.Fatalf("no network release at version %d: %v", version, err)
	}

	env := migration.Environment{SplitPaths: map[string]string{
		changesets.DiagramDatabase:  paths.Diagram,
		changesets.CustomerDatabase: paths.Customer,
		changesets.MetadataDatabase: paths.Metadata,
	}}
	if _, err := migration.UpgradeFile(ctx, paths.Network, registry, migration.WithEnvironment(env)); err != nil {
		tb.Fatalf("failed to create the version %d network file: %v", version, err)
	}

	if len(seed) > 0 {
		Exec(tb, paths.Network, seed...)
	}
}

// Exec runs statements against the database file at path
func Exec(tb testing.TB, path string, statements ...string) {
	tb.Helper()
	ctx := context.Background()

	db, err := migration.NewConnectionManager(migration.TempFileTestSQLiteConfig(path)).GetConnection(ctx)
	if err != nil {
		tb.Fatalf("failed to open %s: %v", path, err)
	}
	defer db.Close()

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			tb.Fatalf("failed to execute %q: %v", stmt, err)
		}
	}
}
