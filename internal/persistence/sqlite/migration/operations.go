package migration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// RawStatement executes one or more SQL statements separated by semicolons
type RawStatement struct {
	SQL string
}

// Describe returns the operation description
func (op RawStatement) Describe() string {
	return "raw statement: " + strings.Join(strings.Fields(op.SQL), " ")
}

// forbiddenLeadingKeywords end or escape the changeset transaction
var forbiddenLeadingKeywords = map[string]bool{
	"BEGIN":     true,
	"COMMIT":    true,
	"END":       true,
	"ROLLBACK":  true,
	"SAVEPOINT": true,
	"RELEASE":   true,
	"ATTACH":    true,
	"DETACH":    true,
	"VACUUM":    true,
}

func (op RawStatement) validate() error {
	statements := splitStatements(op.SQL)
	if len(statements) == 0 {
		return errors.New("raw statement contains no SQL")
	}
	for _, stmt := range statements {
		fields := strings.Fields(stmt)
		if forbiddenLeadingKeywords[strings.ToUpper(fields[0])] {
			return fmt.Errorf("raw statement may not control transactions or attachments: %s", fields[0])
		}
	}
	return nil
}

func (op RawStatement) apply(ctx context.Context, exec *execution) error {
	for i, stmt := range splitStatements(op.SQL) {
		if _, err := exec.tx.ExecContext(ctx, stmt); err != nil {
			return NewDatabaseError(exec.database, stmt, fmt.Sprintf("execute statement %d", i+1), err)
		}
	}
	return nil
}

// RebuildTable changes a table's column list through the shadow-table swap.
// Columns lists the complete target table in order.
type RebuildTable struct {
	Table       string
	Columns     []ColumnSpec
	Constraints []string    // extra table constraints, e.g. UNIQUE (a, b)
	Indexes     []IndexSpec // indexes created after the swap
}

// Describe returns the operation description
func (op RebuildTable) Describe() string {
	exprs := make([]string, 0, len(op.Columns))
	for _, col := range op.Columns {
		exprs = append(exprs, col.definition()+" <- "+col.transform().Expr())
	}
	indexes := make([]string, 0, len(op.Indexes))
	for _, idx := range op.Indexes {
		indexes = append(indexes, idx.Name)
	}
	return fmt.Sprintf("rebuild table %s (%s) constraints [%s] indexes [%s]",
		op.Table, strings.Join(exprs, ", "), strings.Join(op.Constraints, ", "), strings.Join(indexes, ", "))
}

func (op RebuildTable) validate() error {
	if op.Table == "" {
		return errors.New("rebuild table needs a table name")
	}
	var errs []error
	if err := validateColumns(op.Table, op.Columns); err != nil {
		errs = append(errs, err)
	}
	for _, idx := range op.Indexes {
		if idx.Name == "" || strings.TrimSpace(idx.SQL) == "" {
			errs = append(errs, fmt.Errorf("rebuild of %s has an index without a name or definition", op.Table))
		}
	}
	return errors.Join(errs...)
}

// createStatement renders the CREATE TABLE statement of the target table
func (op RebuildTable) createStatement(name string) string {
	defs := make([]string, 0, len(op.Columns)+len(op.Constraints)+1)
	var pk []string
	for _, col := range op.Columns {
		defs = append(defs, col.definition())
		if col.PrimaryKey {
			pk = append(pk, quoteIdent(col.Name))
		}
	}
	if len(pk) > 0 {
		defs = append(defs, "PRIMARY KEY ("+strings.Join(pk, ", ")+")")
	}
	defs = append(defs, op.Constraints...)
	return fmt.Sprintf("CREATE TABLE %s (\n\t%s\n)", quoteIdent(name), strings.Join(defs, ",\n\t"))
}

func (op RebuildTable) apply(ctx context.Context, exec *execution) error {
	_, err := exec.rebuilder.Rebuild(ctx, exec.tx, op)
	return err
}

// RecreateIndex drops an index if present and creates it from Definition
type RecreateIndex struct {
	Name       string
	Definition string
}

// Describe returns the operation description
func (op RecreateIndex) Describe() string {
	return fmt.Sprintf("recreate index %s: %s", op.Name, strings.Join(strings.Fields(op.Definition), " "))
}

func (op RecreateIndex) validate() error {
	if op.Name == "" || strings.TrimSpace(op.Definition) == "" {
		return errors.New("recreate index needs a name and a definition")
	}
	return nil
}

func (op RecreateIndex) apply(ctx context.Context, exec *execution) error {
	statements := []string{
		fmt.Sprintf("DROP INDEX IF EXISTS %s", quoteIdent(op.Name)),
		op.Definition,
	}
	for _, stmt := range statements {
		if _, err := exec.tx.ExecContext(ctx, stmt); err != nil {
			return NewDatabaseError(exec.database, stmt, "recreate index", err)
		}
	}
	return nil
}

// RenameEnumValue rewrites one stored enum token to another. Rows holding
// any other value are left untouched.
type RenameEnumValue struct {
	Table  string
	Column string
	From   string
	To     string
}

// Describe returns the operation description
func (op RenameEnumValue) Describe() string {
	return fmt.Sprintf("rename enum value %s.%s %s -> %s", op.Table, op.Column, op.From, op.To)
}

func (op RenameEnumValue) validate() error {
	switch {
	case op.Table == "" || op.Column == "":
		return errors.New("rename enum value needs a table and a column")
	case op.From == "" || op.To == "":
		return errors.New("rename enum value needs both tokens")
	case op.From == op.To:
		return fmt.Errorf("rename enum value %s.%s maps %s to itself", op.Table, op.Column, op.From)
	}
	return nil
}

func (op RenameEnumValue) apply(ctx context.Context, exec *execution) error {
	stmt := fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s = ?",
		quoteIdent(op.Table), quoteIdent(op.Column), quoteIdent(op.Column))
	res, err := exec.tx.ExecContext(ctx, stmt, op.To, op.From)
	if err != nil {
		return NewDatabaseError(exec.database, stmt, "rename enum value", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		exec.logger.DebugContext(ctx, "enum value renamed",
			slog.String("table", op.Table),
			slog.String("column", op.Column),
			slog.Int64("rows", n),
		)
	}
	return nil
}

// SplitDatabase moves Tables out of the database being upgraded into the
// split database registered for Kind. The split file is attached under Kind,
// must hold no tables, and is initialised at Version.
type SplitDatabase struct {
	Kind    string
	Version int
	Tables  []string
}

var (
	splitKindPattern   = regexp.MustCompile(`^[a-z_]+$`)
	createTablePrefix  = regexp.MustCompile(`(?is)^\s*CREATE\s+TABLE\s+(IF\s+NOT\s+EXISTS\s+)?`)
	createIndexPattern = regexp.MustCompile(`(?is)^\s*CREATE\s+(UNIQUE\s+)?INDEX\s+(IF\s+NOT\s+EXISTS\s+)?`)
)

// Describe returns the operation description
func (op SplitDatabase) Describe() string {
	return fmt.Sprintf("split %s database at version %d: %s", op.Kind, op.Version, strings.Join(op.Tables, ", "))
}

func (op SplitDatabase) validate() error {
	switch {
	case !splitKindPattern.MatchString(op.Kind) || op.Kind == "main" || op.Kind == "temp":
		return fmt.Errorf("split database kind %q must be lower-case letters and underscores", op.Kind)
	case op.Version <= 0:
		return fmt.Errorf("split database %s needs a positive version", op.Kind)
	case len(op.Tables) == 0:
		return fmt.Errorf("split database %s moves no tables", op.Kind)
	}
	seen := make(map[string]bool, len(op.Tables))
	for _, table := range op.Tables {
		if table == "" || seen[table] {
			return fmt.Errorf("split database %s lists table %q twice or empty", op.Kind, table)
		}
		if table == VersionTable {
			return fmt.Errorf("split database %s may not move %s", op.Kind, VersionTable)
		}
		seen[table] = true
	}
	return nil
}

func (op SplitDatabase) attachments(env Environment) ([]attachment, error) {
	path, ok := env.SplitPaths[op.Kind]
	if !ok || path == "" {
		return nil, fmt.Errorf("no file configured for the %s database", op.Kind)
	}
	return []attachment{{Schema: op.Kind, Path: path}}, nil
}

func (op SplitDatabase) apply(ctx context.Context, exec *execution) error {
	existing, err := userTables(ctx, exec.tx, op.Kind)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return fmt.Errorf("%s database already holds tables: %s", op.Kind, strings.Join(existing, ", "))
	}

	if err := NewAttachedVersionStore(op.Kind).Initialize(ctx, exec.tx, op.Version); err != nil {
		return err
	}

	target := quoteIdent(op.Kind) + "."
	for _, table := range op.Tables {
		ddl, err := tableSQL(ctx, exec.tx, "main", table)
		if err != nil {
			return err
		}
		indexes, err := tableIndexes(ctx, exec.tx, "main", table)
		if err != nil {
			return err
		}
		before, err := countRows(ctx, exec.tx, "main", table)
		if err != nil {
			return err
		}

		statements := []string{
			createTablePrefix.ReplaceAllString(ddl, "CREATE TABLE ${1}"+target),
			fmt.Sprintf("INSERT INTO %s SELECT * FROM %s", qualify(op.Kind, table), qualify("main", table)),
		}
		for _, stmt := range statements {
			if _, err := exec.tx.ExecContext(ctx, stmt); err != nil {
				return NewDatabaseError(exec.database, stmt, "copy table into "+op.Kind, err)
			}
		}

		after, err := countRows(ctx, exec.tx, op.Kind, table)
		if err != nil {
			return err
		}
		if after != before {
			return fmt.Errorf("%w: %s had %d rows, %s copy has %d", ErrRowCountMismatch, table, before, op.Kind, after)
		}

		statements = statements[:0]
		for _, idx := range indexes {
			statements = append(statements, createIndexPattern.ReplaceAllString(idx.SQL, "CREATE ${1}INDEX ${2}"+target))
		}
		statements = append(statements, fmt.Sprintf("DROP TABLE %s", qualify("main", table)))
		for _, stmt := range statements {
			if _, err := exec.tx.ExecContext(ctx, stmt); err != nil {
				return NewDatabaseError(exec.database, stmt, "move table into "+op.Kind, err)
			}
		}

		exec.logger.InfoContext(ctx, "table moved to split database",
			slog.String("table", table),
			slog.String("split", op.Kind),
			slog.Int64("rows", after),
		)
	}
	return nil
}
