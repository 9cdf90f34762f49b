package migration

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func networkChangeSets() []ChangeSet {
	return []ChangeSet{
		{
			Version:     52,
			Description: "baseline",
			Operations: []Operation{RawStatement{SQL: `
				CREATE TABLE breakers (
					mrid TEXT NOT NULL PRIMARY KEY,
					name TEXT NULL,
					rated_current INTEGER NULL
				);
				CREATE INDEX breakers_name ON breakers (name);
				CREATE TABLE protection_relay_functions (
					mrid TEXT NOT NULL PRIMARY KEY,
					power_direction TEXT NOT NULL
				);`,
			}},
		},
		{
			Version:     53,
			Description: "widen breakers.rated_current",
			Operations:  []Operation{widenBreakers()},
		},
		{
			Version:     54,
			Description: "rename power direction token",
			Operations: []Operation{RenameEnumValue{
				Table:  "protection_relay_functions",
				Column: "power_direction",
				From:   "UNKNOWN_DIRECTION",
				To:     "UNKNOWN",
			}},
		},
	}
}

// networkRegistry returns the test registry truncated at version upTo
func networkRegistry(t *testing.T, upTo int, extra ...ChangeSet) *Registry {
	t.Helper()
	var changeSets []ChangeSet
	for _, cs := range networkChangeSets() {
		if cs.Version <= upTo {
			changeSets = append(changeSets, cs)
		}
	}
	reg, err := NewRegistry("network", append(changeSets, extra...)...)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	return reg
}

// seedFile creates a database at the last version of reg and runs statements
func seedFile(t *testing.T, path string, reg *Registry, statements ...string) {
	t.Helper()
	ctx := context.Background()
	if _, err := UpgradeFile(ctx, path, reg); err != nil {
		t.Fatalf("Failed to create database at version %d: %v", reg.Latest(), err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("Failed to open %s: %v", path, err)
	}
	defer db.Close()
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("Failed to execute %q: %v", stmt, err)
		}
	}
}

func TestUpgradeFile_FreshFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "network.sqlite")
	reg := networkRegistry(t, 54)

	result, err := UpgradeFile(ctx, path, reg)
	if err != nil {
		t.Fatalf("UpgradeFile failed: %v", err)
	}

	if !result.Created {
		t.Error("Expected the file to be reported as created")
	}
	if result.FromVersion != 51 || result.ToVersion != 54 {
		t.Errorf("Expected 51 -> 54, got %d -> %d", result.FromVersion, result.ToVersion)
	}
	if len(result.Applied) != 3 {
		t.Errorf("Expected 3 applied changesets, got %v", result.Applied)
	}
	if result.Path != path {
		t.Errorf("Expected path %s, got %s", path, result.Path)
	}
	if result.Outcome() != OutcomeUpgraded {
		t.Errorf("Expected OutcomeUpgraded, got %v", result.Outcome())
	}

	conn := openConn(t, path)
	if v := currentVersion(t, conn); v != reg.Latest() {
		t.Errorf("Expected version %d, got %d", reg.Latest(), v)
	}
	if got := columnType(t, conn, "breakers", "rated_current"); got != "REAL" {
		t.Errorf("Expected rated_current REAL, got %s", got)
	}
}

func TestUpgradeFile_Idempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "network.sqlite")
	reg := networkRegistry(t, 54)

	if _, err := UpgradeFile(ctx, path, reg); err != nil {
		t.Fatalf("First upgrade failed: %v", err)
	}
	result, err := UpgradeFile(ctx, path, reg)
	if err != nil {
		t.Fatalf("Second upgrade failed: %v", err)
	}

	if result.Outcome() != OutcomeUpToDate {
		t.Errorf("Expected OutcomeUpToDate, got %v", result.Outcome())
	}
	if result.Created || len(result.Applied) != 0 {
		t.Errorf("Expected a no-op, got %+v", result)
	}
	if got := result.String(); got != "network: already up to date at version 54" {
		t.Errorf("Unexpected result text %q", got)
	}
}

func TestUpgradeFile_WidensIntegerToReal(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "network.sqlite")
	seedFile(t, path, networkRegistry(t, 52),
		`INSERT INTO breakers (mrid, name, rated_current) VALUES ('b1', 'one', 11), ('b2', 'two', NULL)`,
	)

	result, err := UpgradeFile(ctx, path, networkRegistry(t, 54))
	if err != nil {
		t.Fatalf("UpgradeFile failed: %v", err)
	}
	if got := result.String(); got != "network: upgraded from version 52 to version 54" {
		t.Errorf("Unexpected result text %q", got)
	}

	conn := openConn(t, path)
	execAll(t, conn, `INSERT INTO breakers (mrid, name, rated_current) VALUES ('b3', 'three', 33.3)`)

	want := map[string]*float64{"b1": ptr(11.0), "b2": nil, "b3": ptr(33.3)}
	for mrid, expected := range want {
		var got sql.NullFloat64
		if err := conn.QueryRowContext(ctx, `SELECT rated_current FROM breakers WHERE mrid = ?`, mrid).Scan(&got); err != nil {
			t.Fatalf("Failed to read %s: %v", mrid, err)
		}
		switch {
		case expected == nil && got.Valid:
			t.Errorf("%s: expected NULL, got %v", mrid, got.Float64)
		case expected != nil && (!got.Valid || got.Float64 != *expected):
			t.Errorf("%s: expected %v, got %+v", mrid, *expected, got)
		}
	}
	if got := queryString(t, conn, `SELECT typeof(rated_current) FROM breakers WHERE mrid = 'b1'`); got != "real" {
		t.Errorf("Expected b1 stored as real, got %s", got)
	}
	if got := columnType(t, conn, "breakers", "rated_current"); got != "REAL" {
		t.Errorf("Expected declared type REAL, got %s", got)
	}
}

func TestUpgradeFile_RenamesEnumValue(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "network.sqlite")
	seedFile(t, path, networkRegistry(t, 53),
		`INSERT INTO protection_relay_functions (mrid, power_direction) VALUES ('p1', 'UNKNOWN_DIRECTION'), ('p2', 'FORWARD')`,
	)

	if _, err := UpgradeFile(ctx, path, networkRegistry(t, 54)); err != nil {
		t.Fatalf("UpgradeFile failed: %v", err)
	}

	conn := openConn(t, path)
	if got := queryString(t, conn, `SELECT power_direction FROM protection_relay_functions WHERE mrid = 'p1'`); got != "UNKNOWN" {
		t.Errorf("Expected UNKNOWN, got %s", got)
	}
	if got := queryString(t, conn, `SELECT power_direction FROM protection_relay_functions WHERE mrid = 'p2'`); got != "FORWARD" {
		t.Errorf("Expected FORWARD to be untouched, got %s", got)
	}
}

func TestUpgradeFile_FailingChangesetRollsBack(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "network.sqlite")
	seedFile(t, path, networkRegistry(t, 52),
		`INSERT INTO breakers (mrid, name, rated_current) VALUES ('b1', 'one', 11)`,
	)

	failing := ChangeSet{
		Version:     55,
		Description: "narrow rated_current back to integer",
		Operations: []Operation{
			RawStatement{SQL: `CREATE TABLE battery_controls (mrid TEXT NOT NULL PRIMARY KEY)`},
			RebuildTable{
				Table: "breakers",
				Columns: []ColumnSpec{
					{Name: "mrid", Type: "TEXT", NotNull: true, PrimaryKey: true, KeepsNotNull: true},
					{Name: "name", Type: "TEXT"},
					{Name: "rated_current", Type: "INTEGER", Transform: Cast("rated_current", AffinityInteger)},
				},
			},
		},
	}
	reg := networkRegistry(t, 54, failing)

	// 12.5 cannot become an integer, so changeset 55 fails after 53 and 54 commit
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("Failed to open: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO breakers (mrid, name, rated_current) VALUES ('b2', 'two', 12.5)`); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}
	db.Close()

	result, err := UpgradeFile(ctx, path, reg)
	if !errors.Is(err, ErrChangesetExecution) {
		t.Fatalf("Expected ErrChangesetExecution, got %v", err)
	}
	if !errors.Is(err, ErrInvalidCast) {
		t.Errorf("Expected the cause to be ErrInvalidCast, got %v", err)
	}
	var csErr *ChangesetError
	if !errors.As(err, &csErr) {
		t.Fatalf("Expected a ChangesetError, got %T", err)
	}
	if csErr.Version != 55 || csErr.Step != 2 || csErr.Database != "network" {
		t.Errorf("Unexpected changeset error %+v", csErr)
	}

	if result.ToVersion != 54 || len(result.Applied) != 2 {
		t.Errorf("Expected 53 and 54 committed, got %+v", result)
	}

	conn := openConn(t, path)
	if v := currentVersion(t, conn); v != 54 {
		t.Errorf("Expected version 54 after rollback, got %d", v)
	}
	if hasTable(t, conn, "main", "battery_controls") {
		t.Error("Expected step 1 of the failed changeset to be rolled back")
	}
	if hasTable(t, conn, "main", "breakers"+ShadowSuffix) {
		t.Error("Expected no shadow table left behind")
	}
	if got := columnType(t, conn, "breakers", "rated_current"); got != "REAL" {
		t.Errorf("Expected rated_current to stay REAL, got %s", got)
	}
}

func TestUpgradeFile_RejectsFutureVersion(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "network.sqlite")
	seedFile(t, path, networkRegistry(t, 54), `UPDATE schema_version SET version = 99`)

	_, err := UpgradeFile(ctx, path, networkRegistry(t, 54))
	if !errors.Is(err, ErrFutureSchemaVersion) {
		t.Fatalf("Expected ErrFutureSchemaVersion, got %v", err)
	}

	conn := openConn(t, path)
	if v := currentVersion(t, conn); v != 99 {
		t.Errorf("Expected version to stay 99, got %d", v)
	}
}

func TestUpgradeFile_RejectsVersionBelowFloor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "network.sqlite")
	seedFile(t, path, networkRegistry(t, 52), `UPDATE schema_version SET version = 40`)

	_, err := UpgradeFile(context.Background(), path, networkRegistry(t, 54))
	if !errors.Is(err, ErrUnsupportedSchemaVersion) {
		t.Fatalf("Expected ErrUnsupportedSchemaVersion, got %v", err)
	}
}

func TestUpgradeFile_TablesWithoutVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "network.sqlite")
	seedFile(t, path, networkRegistry(t, 52), `DROP TABLE schema_version`)

	_, err := UpgradeFile(context.Background(), path, networkRegistry(t, 54))
	if !errors.Is(err, ErrCorruptVersionState) {
		t.Fatalf("Expected ErrCorruptVersionState, got %v", err)
	}
}

func TestRunner_Transitions(t *testing.T) {
	type transition struct {
		state   State
		version int
	}
	var got []transition

	runner, err := NewRunner(networkRegistry(t, 53), WithTransitionHook(func(state State, version int) {
		got = append(got, transition{state, version})
	}))
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}

	_, conn := openTestDB(t, "network.sqlite")
	if _, err := runner.Upgrade(context.Background(), conn); err != nil {
		t.Fatalf("Upgrade failed: %v", err)
	}

	want := []transition{
		{StateIdle, 0},
		{StateSelecting, 0},
		{StateApplying, 52},
		{StateCommitted, 52},
		{StateApplying, 53},
		{StateCommitted, 53},
		{StateUpToDate, 53},
	}
	if len(got) != len(want) {
		t.Fatalf("Expected %d transitions, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Transition %d: expected %v %d, got %v %d", i, want[i].state, want[i].version, got[i].state, got[i].version)
		}
	}
}

func TestRunner_StopsBetweenChangesets(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner, err := NewRunner(networkRegistry(t, 54), WithTransitionHook(func(state State, version int) {
		if state == StateApplying && version == 53 {
			cancel()
		}
	}))
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}

	path, conn := openTestDB(t, "network.sqlite")
	result, err := runner.Upgrade(ctx, conn)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}

	// 53 was already running when the context was cancelled and still commits
	if result.ToVersion != 53 {
		t.Errorf("Expected the run to stop at 53, got %+v", result)
	}
	if v := currentVersion(t, openConn(t, path)); v != 53 {
		t.Errorf("Expected version 53, got %d", v)
	}
}

func TestRunner_Plan(t *testing.T) {
	ctx := context.Background()
	runner, err := NewRunner(networkRegistry(t, 54))
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}

	_, conn := openTestDB(t, "network.sqlite")
	plan, err := runner.Plan(ctx, conn)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if !plan.Fresh || plan.CurrentVersion != 51 || plan.TargetVersion() != 54 || len(plan.Pending) != 3 {
		t.Errorf("Unexpected plan for a new file %+v", plan)
	}
	if hasTable(t, conn, "main", VersionTable) {
		t.Error("Expected Plan to leave the file untouched")
	}
}

func TestRunner_WithClock(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	calls := 0
	clock := func() time.Time {
		calls++
		return start.Add(time.Duration(calls) * time.Second)
	}

	runner, err := NewRunner(networkRegistry(t, 52), WithClock(clock))
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	_, conn := openTestDB(t, "network.sqlite")
	result, err := runner.Upgrade(context.Background(), conn)
	if err != nil {
		t.Fatalf("Upgrade failed: %v", err)
	}
	if result.Duration <= 0 {
		t.Errorf("Expected a positive duration, got %v", result.Duration)
	}
}

func ptr(f float64) *float64 {
	return &f
}
