package migration

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// UpgradeFile opens the database file at path on a single pinned connection
// and upgrades it with registry. A missing file is created at the registry's
// floor and brought to its latest version.
func UpgradeFile(ctx context.Context, path string, registry *Registry, opts ...Option) (Result, error) {
	runner, err := NewRunner(registry, opts...)
	if err != nil {
		return Result{Path: path}, err
	}

	db, err := NewConnectionManager(MigrationSQLiteConfig(path)).GetConnection(ctx)
	if err != nil {
		return Result{Database: registry.Name(), Path: path}, fmt.Errorf("open %s database: %w", registry.Name(), err)
	}
	defer db.Close()

	conn, err := db.Conn(ctx)
	if err != nil {
		return Result{Database: registry.Name(), Path: path}, NewDatabaseError(registry.Name(), "", "acquire connection", err)
	}
	defer conn.Close()

	result, err := runner.Upgrade(ctx, conn)
	result.Path = path
	return result, err
}

// PlanFile reports what UpgradeFile would do without changing the file.
// A missing file is reported as fresh and is not created.
func PlanFile(ctx context.Context, path string, registry *Registry, opts ...Option) (Plan, error) {
	runner, err := NewRunner(registry, opts...)
	if err != nil {
		return Plan{}, err
	}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return Plan{
			Database:       registry.Name(),
			CurrentVersion: registry.Floor(),
			Fresh:          true,
			Pending:        registry.ChangeSets(),
		}, nil
	}

	config := MigrationSQLiteConfig(path)
	config.JournalMode = ""
	config.Synchronous = ""
	db, err := NewConnectionManager(config).GetConnection(ctx)
	if err != nil {
		return Plan{Database: registry.Name()}, fmt.Errorf("open %s database: %w", registry.Name(), err)
	}
	defer db.Close()

	return runner.Plan(ctx, db)
}
