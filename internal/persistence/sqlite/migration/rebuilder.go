package migration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ShadowSuffix is appended to a table name to form its shadow table
const ShadowSuffix = "_rebuild"

// ColumnSpec declares one column of a rebuilt table
type ColumnSpec struct {
	Name       string
	Type       string
	NotNull    bool
	PrimaryKey bool
	Unique     bool
	Default    any // column DEFAULT for future inserts, nil for none

	// Transform computes the column from the original row. Nil copies the
	// same-named column, which must exist.
	Transform Transform

	// KeepsNotNull declares that the values feeding a NOT NULL column are
	// already non-NULL in every released database
	KeepsNotNull bool
}

func (c ColumnSpec) transform() Transform {
	if c.Transform == nil {
		return Copy(c.Name)
	}
	return c.Transform
}

func (c ColumnSpec) definition() string {
	var b strings.Builder
	b.WriteString(quoteIdent(c.Name))
	b.WriteString(" ")
	b.WriteString(c.Type)
	if c.NotNull {
		b.WriteString(" NOT NULL")
	}
	if c.Unique {
		b.WriteString(" UNIQUE")
	}
	if c.Default != nil {
		lit, _ := literalSQL(c.Default)
		b.WriteString(" DEFAULT ")
		b.WriteString(lit)
	}
	return b.String()
}

// IndexSpec is an index created after a rebuild. An IndexSpec whose name
// matches an existing index supersedes it.
type IndexSpec struct {
	Name string
	SQL  string
}

// TableRebuilder applies RebuildTable operations with the shadow-table swap:
// create <table>_rebuild, copy and transform rows, drop the original and its
// indexes, rename the shadow, recreate indexes.
type TableRebuilder struct {
	logger *slog.Logger
}

// NewTableRebuilder creates a TableRebuilder. A nil logger discards output.
func NewTableRebuilder(logger *slog.Logger) *TableRebuilder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &TableRebuilder{logger: logger}
}

// Rebuild rebuilds op.Table on q, which must be the changeset transaction.
// It returns the number of rows carried over.
func (r *TableRebuilder) Rebuild(ctx context.Context, q Querier, op RebuildTable) (int64, error) {
	if err := op.validate(); err != nil {
		return 0, err
	}

	existing, err := tableColumns(ctx, q, "main", op.Table)
	if err != nil {
		return 0, err
	}
	if len(existing) == 0 {
		return 0, fmt.Errorf("table %s does not exist", op.Table)
	}
	present := make(map[string]bool, len(existing))
	for _, col := range existing {
		present[strings.ToLower(col.Name)] = true
	}

	targets := make([]string, 0, len(op.Columns))
	exprs := make([]string, 0, len(op.Columns))
	for _, col := range op.Columns {
		t := col.transform()
		for _, src := range t.Sources() {
			if !present[strings.ToLower(src)] {
				return 0, fmt.Errorf("column %s of %s reads %s, which does not exist", col.Name, op.Table, src)
			}
		}
		targets = append(targets, quoteIdent(col.Name))
		exprs = append(exprs, t.Expr())
	}

	shadow := op.Table + ShadowSuffix
	exists, err := tableExists(ctx, q, "main", shadow)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, fmt.Errorf("shadow table %s already exists", shadow)
	}

	indexes, err := tableIndexes(ctx, q, "main", op.Table)
	if err != nil {
		return 0, err
	}
	dependents, err := tableDependents(ctx, q, "main", op.Table)
	if err != nil {
		return 0, err
	}

	identity := "rowid"
	if present["mrid"] {
		identity = quoteIdent("mrid")
	}
	for _, col := range op.Columns {
		if cast, ok := col.transform().(castTransform); ok {
			if err := cast.checkRows(ctx, q, "main", op.Table, identity); err != nil {
				return 0, err
			}
		}
	}

	before, err := countRows(ctx, q, "main", op.Table)
	if err != nil {
		return 0, err
	}

	statements := []string{
		op.createStatement(shadow),
		fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
			quoteIdent(shadow), strings.Join(targets, ", "), strings.Join(exprs, ", "), quoteIdent(op.Table)),
	}
	for _, stmt := range statements {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return 0, NewDatabaseError("main", stmt, "copy into shadow table", err)
		}
	}

	after, err := countRows(ctx, q, "main", shadow)
	if err != nil {
		return 0, err
	}
	if after != before {
		return 0, fmt.Errorf("%w: %s had %d rows, %s has %d", ErrRowCountMismatch, op.Table, before, shadow, after)
	}

	superseded := make(map[string]bool, len(op.Indexes))
	for _, idx := range op.Indexes {
		superseded[strings.ToLower(idx.Name)] = true
	}

	// Views and triggers naming the table are dropped before the swap, since
	// RENAME rejects a schema whose views or triggers reference a missing
	// table, and recreated from their stored SQL afterwards.
	statements = statements[:0]
	for i := len(dependents) - 1; i >= 0; i-- {
		dep := dependents[i]
		statements = append(statements, fmt.Sprintf("DROP %s IF EXISTS %s", strings.ToUpper(dep.Type), quoteIdent(dep.Name)))
	}
	for _, idx := range indexes {
		statements = append(statements, fmt.Sprintf("DROP INDEX %s", quoteIdent(idx.Name)))
	}
	statements = append(statements,
		fmt.Sprintf("DROP TABLE %s", quoteIdent(op.Table)),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", quoteIdent(shadow), quoteIdent(op.Table)),
	)
	for _, idx := range indexes {
		if superseded[strings.ToLower(idx.Name)] {
			continue
		}
		statements = append(statements, idx.SQL)
	}
	for _, idx := range op.Indexes {
		statements = append(statements, idx.SQL)
	}
	for _, dep := range dependents {
		statements = append(statements, dep.SQL)
	}
	for _, stmt := range statements {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return 0, NewDatabaseError("main", stmt, "swap shadow table", err)
		}
	}

	r.logger.DebugContext(ctx, "table rebuilt",
		slog.String("table", op.Table),
		slog.Int64("rows", after),
		slog.Int("indexes", len(indexes)+len(op.Indexes)),
		slog.Int("dependents", len(dependents)),
	)
	return after, nil
}

// validateColumns checks a column list for duplicate names, missing types
// and NOT NULL columns whose transform may yield NULL
func validateColumns(table string, columns []ColumnSpec) error {
	if len(columns) == 0 {
		return fmt.Errorf("rebuild of %s declares no columns", table)
	}
	seen := make(map[string]bool, len(columns))
	var errs []error
	for _, col := range columns {
		key := strings.ToLower(col.Name)
		switch {
		case col.Name == "":
			errs = append(errs, fmt.Errorf("rebuild of %s has a column without a name", table))
			continue
		case seen[key]:
			errs = append(errs, fmt.Errorf("rebuild of %s declares column %s twice", table, col.Name))
		case strings.TrimSpace(col.Type) == "":
			errs = append(errs, fmt.Errorf("column %s.%s has no type", table, col.Name))
		}
		seen[key] = true

		t := col.transform()
		if err := t.validate(); err != nil {
			errs = append(errs, fmt.Errorf("column %s.%s: %w", table, col.Name, err))
		}
		if col.Default != nil {
			if _, err := literalSQL(col.Default); err != nil {
				errs = append(errs, fmt.Errorf("column %s.%s default: %w", table, col.Name, err))
			}
		}
		if col.NotNull && !col.KeepsNotNull && !t.producesNonNull() {
			errs = append(errs, fmt.Errorf("column %s.%s is NOT NULL but its transform %s may yield NULL; backfill it or declare KeepsNotNull", table, col.Name, t.Expr()))
		}
	}
	return errors.Join(errs...)
}
