package migration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// quoteIdent quotes an SQLite identifier
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// qualify returns schema.name with both parts quoted
func qualify(schema, name string) string {
	if schema == "" {
		schema = "main"
	}
	return quoteIdent(schema) + "." + quoteIdent(name)
}

// splitStatements splits SQL content into individual statements.
// Semicolons inside string literals, quoted identifiers, comments and
// CREATE TRIGGER bodies do not end a statement. Comments are dropped.
func splitStatements(content string) []string {
	var (
		statements []string
		current    strings.Builder
		depth      int // BEGIN ... END nesting inside a trigger body
	)

	flush := func() {
		stmt := strings.TrimSpace(current.String())
		current.Reset()
		if stmt != "" {
			statements = append(statements, stmt)
		}
	}

	runes := []rune(content)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case c == '\'' || c == '"' || c == '`' || c == '[':
			closing := c
			if c == '[' {
				closing = ']'
			}
			current.WriteRune(c)
			for i++; i < len(runes); i++ {
				current.WriteRune(runes[i])
				if runes[i] == closing {
					// Doubled quote is an escaped quote
					if closing != ']' && i+1 < len(runes) && runes[i+1] == closing {
						i++
						current.WriteRune(runes[i])
						continue
					}
					break
				}
			}
		case c == '-' && i+1 < len(runes) && runes[i+1] == '-':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			current.WriteRune('\n')
		case c == '/' && i+1 < len(runes) && runes[i+1] == '*':
			i += 2
			for i+1 < len(runes) && !(runes[i] == '*' && runes[i+1] == '/') {
				i++
			}
			i++
			current.WriteRune(' ')
		case c == ';':
			if depth > 0 {
				current.WriteRune(c)
				continue
			}
			flush()
		case isWordStart(runes, i):
			j := i
			for j < len(runes) && isWordRune(runes[j]) {
				j++
			}
			word := strings.ToUpper(string(runes[i:j]))
			switch word {
			case "BEGIN":
				if isTriggerStatement(current.String()) {
					depth++
				}
			case "CASE":
				if depth > 0 {
					depth++
				}
			case "END":
				if depth > 0 {
					depth--
				}
			}
			current.WriteString(string(runes[i:j]))
			i = j - 1
		default:
			current.WriteRune(c)
		}
	}
	flush()

	return statements
}

func isWordRune(c rune) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

func isWordStart(runes []rune, i int) bool {
	if !isWordRune(runes[i]) {
		return false
	}
	return i == 0 || !isWordRune(runes[i-1])
}

func isTriggerStatement(prefix string) bool {
	fields := strings.Fields(strings.ToUpper(prefix))
	for i, f := range fields {
		if i > 3 {
			break
		}
		if f == "TRIGGER" {
			return true
		}
	}
	return false
}

// tableExists reports whether a table exists in the given schema
func tableExists(ctx context.Context, q Querier, schema, table string) (bool, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s.sqlite_master WHERE type = 'table' AND name = ?`, quoteIdent(schemaOrMain(schema)))
	var n int
	if err := q.QueryRowContext(ctx, query, table).Scan(&n); err != nil {
		return false, NewDatabaseError(schema, query, "check table exists", err)
	}
	return n > 0, nil
}

// userTables lists the tables of a schema, excluding SQLite internal tables
func userTables(ctx context.Context, q Querier, schema string) ([]string, error) {
	query := fmt.Sprintf(`SELECT name FROM %s.sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%%' ORDER BY name`, quoteIdent(schemaOrMain(schema)))
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, NewDatabaseError(schema, query, "list tables", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, NewDatabaseError(schema, query, "scan table name", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, NewDatabaseError(schema, query, "iterate tables", err)
	}
	return names, nil
}

// columnInfo is one row of PRAGMA table_info
type columnInfo struct {
	Name       string
	Type       string
	NotNull    bool
	PrimaryKey int
}

// tableColumns returns the declared columns of a table in declaration order
func tableColumns(ctx context.Context, q Querier, schema, table string) ([]columnInfo, error) {
	const query = `SELECT name, type, "notnull", pk FROM pragma_table_info(?, ?) ORDER BY cid`
	rows, err := q.QueryContext(ctx, query, table, schemaOrMain(schema))
	if err != nil {
		return nil, NewDatabaseError(schema, query, "read table info", err)
	}
	defer rows.Close()

	var cols []columnInfo
	for rows.Next() {
		var col columnInfo
		if err := rows.Scan(&col.Name, &col.Type, &col.NotNull, &col.PrimaryKey); err != nil {
			return nil, NewDatabaseError(schema, query, "scan table info", err)
		}
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, NewDatabaseError(schema, query, "iterate table info", err)
	}
	return cols, nil
}

// indexInfo is an explicitly created index and its DDL
type indexInfo struct {
	Name string
	SQL  string
}

// tableIndexes returns the explicitly created indexes of a table. Automatic
// indexes backing PRIMARY KEY and UNIQUE constraints have no SQL and are skipped.
func tableIndexes(ctx context.Context, q Querier, schema, table string) ([]indexInfo, error) {
	query := fmt.Sprintf(`SELECT name, sql FROM %s.sqlite_master WHERE type = 'index' AND tbl_name = ? AND sql IS NOT NULL ORDER BY name`, quoteIdent(schemaOrMain(schema)))
	rows, err := q.QueryContext(ctx, query, table)
	if err != nil {
		return nil, NewDatabaseError(schema, query, "list indexes", err)
	}
	defer rows.Close()

	var indexes []indexInfo
	for rows.Next() {
		var idx indexInfo
		if err := rows.Scan(&idx.Name, &idx.SQL); err != nil {
			return nil, NewDatabaseError(schema, query, "scan index", err)
		}
		indexes = append(indexes, idx)
	}
	if err := rows.Err(); err != nil {
		return nil, NewDatabaseError(schema, query, "iterate indexes", err)
	}
	return indexes, nil
}

// dependentInfo is a view or trigger that has to be recreated when a table
// is swapped for its shadow
type dependentInfo struct {
	Type string
	Name string
	SQL  string
}

// tableDependents returns the triggers on table and the views and triggers
// whose text mentions it or a returned view, views first. Matching on
// text may return objects that do not use the table; recreating those is
// harmless.
func tableDependents(ctx context.Context, q Querier, schema, table string) ([]dependentInfo, error) {
	query := fmt.Sprintf(`SELECT type, name, tbl_name, sql FROM %s.sqlite_master
		WHERE type IN ('view', 'trigger') AND sql IS NOT NULL
		ORDER BY type DESC, name`, quoteIdent(schemaOrMain(schema)))
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, NewDatabaseError(schema, query, "list views and triggers", err)
	}
	defer rows.Close()

	type candidate struct {
		dependentInfo
		owner string
	}
	var candidates []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.Type, &c.Name, &c.owner, &c.SQL); err != nil {
			return nil, NewDatabaseError(schema, query, "scan view or trigger", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, NewDatabaseError(schema, query, "iterate views and triggers", err)
	}

	// Views are returned in the order they were reached, so a view comes
	// after the views it reads.
	names := []string{strings.ToLower(table)}
	selected := make([]bool, len(candidates))
	var views, triggers []dependentInfo
	for changed := true; changed; {
		changed = false
		for i, c := range candidates {
			if selected[i] || !mentionsAny(c.owner, c.SQL, names) {
				continue
			}
			selected[i] = true
			changed = true
			if c.Type == "view" {
				names = append(names, strings.ToLower(c.Name))
				views = append(views, c.dependentInfo)
			} else {
				triggers = append(triggers, c.dependentInfo)
			}
		}
	}
	return append(views, triggers...), nil
}

func mentionsAny(owner, sql string, names []string) bool {
	owner, sql = strings.ToLower(owner), strings.ToLower(sql)
	for _, name := range names {
		if owner == name || strings.Contains(sql, name) {
			return true
		}
	}
	return false
}

// tableSQL returns the CREATE TABLE statement stored for a table
func tableSQL(ctx context.Context, q Querier, schema, table string) (string, error) {
	query := fmt.Sprintf(`SELECT sql FROM %s.sqlite_master WHERE type = 'table' AND name = ?`, quoteIdent(schemaOrMain(schema)))
	var ddl string
	err := q.QueryRowContext(ctx, query, table).Scan(&ddl)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("table %s does not exist in %s", table, schemaOrMain(schema))
	}
	if err != nil {
		return "", NewDatabaseError(schema, query, "read table definition", err)
	}
	return ddl, nil
}

// countRows returns the number of rows in a table
func countRows(ctx context.Context, q Querier, schema, table string) (int64, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, qualify(schema, table))
	var n int64
	if err := q.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, NewDatabaseError(schema, query, "count rows", err)
	}
	return n, nil
}

func schemaOrMain(schema string) string {
	if schema == "" {
		return "main"
	}
	return schema
}
