package migration

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Affinity is an SQLite column type a value can be cast to
type Affinity string

const (
	AffinityInteger Affinity = "INTEGER"
	AffinityReal    Affinity = "REAL"
	AffinityText    Affinity = "TEXT"
	AffinityBlob    Affinity = "BLOB"
	AffinityNumeric Affinity = "NUMERIC"
)

// maxExactInteger is the largest magnitude an IEEE-754 double holds exactly
const maxExactInteger = 1 << 53

// Transform produces the value of one target column from the rows of the
// table being rebuilt
type Transform interface {
	// Expr returns the SQL expression evaluated per source row
	Expr() string

	// Sources returns the source columns the expression reads
	Sources() []string

	// producesNonNull reports whether the expression never yields NULL
	producesNonNull() bool

	validate() error
}

// Copy passes a source column through unchanged
func Copy(source string) Transform {
	return copyTransform{source: source}
}

type copyTransform struct {
	source string
}

func (t copyTransform) Expr() string          { return quoteIdent(t.source) }
func (t copyTransform) Sources() []string     { return []string{t.source} }
func (t copyTransform) producesNonNull() bool { return false }

func (t copyTransform) validate() error {
	if t.source == "" {
		return errors.New("copy transform needs a source column")
	}
	return nil
}

// Cast converts a source column to target with CAST. Before the copy every
// non-NULL value is checked with TypeCast so a lossy conversion fails the
// changeset instead of silently changing data. NULL stays NULL.
func Cast(source string, target Affinity) Transform {
	return castTransform{source: source, target: target}
}

type castTransform struct {
	source string
	target Affinity
}

func (t castTransform) Expr() string {
	return fmt.Sprintf("CAST(%s AS %s)", quoteIdent(t.source), t.target)
}

func (t castTransform) Sources() []string     { return []string{t.source} }
func (t castTransform) producesNonNull() bool { return false }

func (t castTransform) validate() error {
	if t.source == "" {
		return errors.New("cast transform needs a source column")
	}
	switch t.target {
	case AffinityInteger, AffinityReal, AffinityText, AffinityBlob, AffinityNumeric:
		return nil
	default:
		return fmt.Errorf("cast transform has unknown target type %q", t.target)
	}
}

// checkRows validates every non-NULL source value of table against the target
// type. identity names the column reported in errors, usually mrid or rowid.
// For numeric targets the value CAST stores must also equal the one TypeCast
// accepted; CAST keeps only a numeric prefix of text and never errors.
func (t castTransform) checkRows(ctx context.Context, q Querier, schema, table, identity string) error {
	query := fmt.Sprintf(`SELECT %s, %s, %s FROM %s WHERE %s IS NOT NULL`,
		identity, quoteIdent(t.source), t.Expr(), qualify(schema, table), quoteIdent(t.source))
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return NewDatabaseError(schema, query, "read values to cast", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, value, stored any
		if err := rows.Scan(&id, &value, &stored); err != nil {
			return NewDatabaseError(schema, query, "scan value to cast", err)
		}
		want, err := TypeCast(value, t.target)
		if err != nil {
			return fmt.Errorf("%s.%s row %v: %w", table, t.source, id, err)
		}
		if t.target.numeric() && !sameNumber(want, stored) {
			return fmt.Errorf("%s.%s row %v: %w: %v would be stored as %v",
				table, t.source, id, ErrInvalidCast, value, stored)
		}
	}
	if err := rows.Err(); err != nil {
		return NewDatabaseError(schema, query, "iterate values to cast", err)
	}
	return nil
}

func (a Affinity) numeric() bool {
	return a == AffinityInteger || a == AffinityReal || a == AffinityNumeric
}

// sameNumber compares two numeric values regardless of their storage class
func sameNumber(a, b any) bool {
	switch x := a.(type) {
	case int64:
		switch y := b.(type) {
		case int64:
			return x == y
		case float64:
			return y == math.Trunc(y) && math.Abs(y) <= maxExactInteger && int64(y) == x
		}
	case float64:
		switch y := b.(type) {
		case float64:
			return x == y
		case int64:
			return sameNumber(y, x)
		}
	}
	return false
}

// EnumRemap maps stored enum tokens to new tokens. Values absent from mapping,
// NULL included, become fallback.
func EnumRemap(source string, mapping map[string]string, fallback string) Transform {
	m := make(map[string]string, len(mapping))
	for k, v := range mapping {
		m[k] = v
	}
	return enumRemap{source: source, mapping: m, fallback: fallback}
}

type enumRemap struct {
	source   string
	mapping  map[string]string
	fallback string
}

func (t enumRemap) Expr() string {
	keys := make([]string, 0, len(t.mapping))
	for k := range t.mapping {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("CASE ")
	b.WriteString(quoteIdent(t.source))
	for _, k := range keys {
		fmt.Fprintf(&b, " WHEN %s THEN %s", quoteString(k), quoteString(t.mapping[k]))
	}
	fmt.Fprintf(&b, " ELSE %s END", quoteString(t.fallback))
	return b.String()
}

func (t enumRemap) Sources() []string     { return []string{t.source} }
func (t enumRemap) producesNonNull() bool { return true }

func (t enumRemap) validate() error {
	if t.source == "" {
		return errors.New("enum remap needs a source column")
	}
	if t.fallback == "" {
		return fmt.Errorf("enum remap of %s needs a fallback token", t.source)
	}
	for k, v := range t.mapping {
		if v == "" {
			return fmt.Errorf("enum remap of %s maps %q to an empty token", t.source, k)
		}
	}
	return nil
}

// Backfill copies a source column and replaces NULL with value
func Backfill(source string, value any) Transform {
	return backfillTransform{source: source, value: value}
}

type backfillTransform struct {
	source string
	value  any
}

func (t backfillTransform) Expr() string {
	lit, _ := literalSQL(t.value)
	return fmt.Sprintf("COALESCE(%s, %s)", quoteIdent(t.source), lit)
}

func (t backfillTransform) Sources() []string     { return []string{t.source} }
func (t backfillTransform) producesNonNull() bool { return t.value != nil }

func (t backfillTransform) validate() error {
	if t.source == "" {
		return errors.New("backfill transform needs a source column")
	}
	_, err := literalSQL(t.value)
	return err
}

// Literal fills a column with a constant, typically for a new column
func Literal(value any) Transform {
	return literalTransform{value: value}
}

type literalTransform struct {
	value any
}

func (t literalTransform) Expr() string {
	lit, _ := literalSQL(t.value)
	return lit
}

func (t literalTransform) Sources() []string     { return nil }
func (t literalTransform) producesNonNull() bool { return t.value != nil }

func (t literalTransform) validate() error {
	_, err := literalSQL(t.value)
	return err
}

// Expr is a hand-written SQL expression over the listed source columns.
// Its nullability is unknown, so a NOT NULL target needs KeepsNotNull.
func Expr(sql string, sources ...string) Transform {
	return exprTransform{sql: sql, sources: append([]string(nil), sources...)}
}

type exprTransform struct {
	sql     string
	sources []string
}

func (t exprTransform) Expr() string          { return "(" + t.sql + ")" }
func (t exprTransform) Sources() []string     { return t.sources }
func (t exprTransform) producesNonNull() bool { return false }

func (t exprTransform) validate() error {
	if strings.TrimSpace(t.sql) == "" {
		return errors.New("expression transform is empty")
	}
	return nil
}

// TypeCast converts a value read from SQLite to target, failing with
// ErrInvalidCast when the conversion would lose information. INTEGER to REAL
// is exact up to 2^53 in magnitude. Non-numeric text and blobs never convert
// to a numeric type. NULL converts to NULL.
func TypeCast(value any, target Affinity) (any, error) {
	if value == nil {
		return nil, nil
	}

	switch target {
	case AffinityReal:
		switch v := value.(type) {
		case int64:
			return intToReal(v)
		case float64:
			return v, nil
		case string:
			return parseReal(v)
		}
	case AffinityInteger:
		switch v := value.(type) {
		case int64:
			return v, nil
		case float64:
			return realToInt(v)
		case string:
			s := strings.TrimSpace(v)
			if !decimalLiteral.MatchString(s) {
				return nil, fmt.Errorf("%w: text %q is not numeric", ErrInvalidCast, v)
			}
			if i, err := strconv.ParseInt(s, 10, 64); err == nil {
				return i, nil
			}
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: text %q is not numeric", ErrInvalidCast, v)
			}
			return realToInt(f)
		}
	case AffinityNumeric:
		switch v := value.(type) {
		case int64, float64:
			return v, nil
		case string:
			s := strings.TrimSpace(v)
			if i, err := strconv.ParseInt(s, 10, 64); err == nil {
				return i, nil
			}
			return parseReal(v)
		}
	case AffinityText:
		switch v := value.(type) {
		case int64:
			return strconv.FormatInt(v, 10), nil
		case float64:
			return strconv.FormatFloat(v, 'g', -1, 64), nil
		case string:
			return v, nil
		case []byte:
			return string(v), nil
		}
	case AffinityBlob:
		switch v := value.(type) {
		case []byte:
			return v, nil
		case string:
			return []byte(v), nil
		}
		return nil, fmt.Errorf("%w: %T is not stored as bytes", ErrInvalidCast, value)
	default:
		return nil, fmt.Errorf("%w: unknown target type %q", ErrInvalidCast, target)
	}

	return nil, fmt.Errorf("%w: %T cannot be cast to %s", ErrInvalidCast, value, target)
}

func intToReal(v int64) (any, error) {
	if v > maxExactInteger || v < -maxExactInteger {
		return nil, fmt.Errorf("%w: integer %d is not exactly representable as REAL", ErrInvalidCast, v)
	}
	return float64(v), nil
}

func realToInt(f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > maxExactInteger {
		return nil, fmt.Errorf("%w: real %v is not an exact integer", ErrInvalidCast, f)
	}
	return int64(f), nil
}

// decimalLiteral matches the numeric text SQLite reads in full. strconv
// also accepts hex floats, Inf and NaN.
var decimalLiteral = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

func parseReal(v string) (any, error) {
	s := strings.TrimSpace(v)
	if !decimalLiteral.MatchString(s) {
		return nil, fmt.Errorf("%w: text %q is not numeric", ErrInvalidCast, v)
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return intToReal(i)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%w: text %q is not numeric", ErrInvalidCast, v)
	}
	return f, nil
}

// quoteString renders s as an SQL string literal
func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// literalSQL renders a Go value as an SQL literal
func literalSQL(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "NULL", nil
	case string:
		return quoteString(v), nil
	case bool:
		if v {
			return "1", nil
		}
		return "0", nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "", fmt.Errorf("literal %v has no SQL form", v)
		}
		s := strconv.FormatFloat(v, 'f', -1, 64)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s, nil
	default:
		return "", fmt.Errorf("literal of type %T is not supported", value)
	}
}
