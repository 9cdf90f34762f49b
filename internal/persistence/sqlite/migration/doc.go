// Package migration provides the versioned schema-migration engine for the
// SQLite files that store the network model.
//
// A database file records its schema generation in the single-row
// schema_version table. A Registry holds the ordered changesets for one kind
// of file; the Runner reads the version once, applies every newer changeset in
// its own transaction and records the new version in that same transaction.
// It supports:
//
//   - Table rebuilds through a shadow table, for column type, nullability and
//     constraint changes SQLite cannot make in place
//   - Per-column value coercion: exact casts, enum remaps with a fallback
//     token, NULL backfills
//   - Splitting tables into separate database files, which the Coordinator
//     then upgrades with their own registries
//
// Files written by a newer binary are refused with ErrFutureSchemaVersion and
// are never downgraded.
//
// Example usage:
//
//	result, err := migration.UpgradeFile(ctx, path, changesets.Network())
//	if err != nil {
//		return fmt.Errorf("upgrade network database: %w", err)
//	}
//	logger.Info("database ready", slog.String("result", result.String()))
package migration
