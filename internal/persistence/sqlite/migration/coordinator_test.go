package migration

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const diagramsDDL = `
	CREATE TABLE diagrams (
		mrid TEXT NOT NULL PRIMARY KEY,
		name TEXT NULL,
		diagram_style TEXT NOT NULL
	);
	CREATE INDEX diagrams_name ON diagrams (name);`

// splitRegistries returns a network registry that moves diagrams into its own
// file at version 53, and the diagram registry that takes over from there
func splitRegistries(t *testing.T) (*Registry, *Registry) {
	t.Helper()
	network, err := NewRegistry("network",
		ChangeSet{
			Version: 52,
			Operations: []Operation{RawStatement{SQL: diagramsDDL + `
				CREATE TABLE breakers (mrid TEXT NOT NULL PRIMARY KEY, name TEXT NULL);`}},
		},
		ChangeSet{
			Version:    53,
			Operations: []Operation{SplitDatabase{Kind: "diagram", Version: 53, Tables: []string{"diagrams"}}},
		},
	)
	if err != nil {
		t.Fatalf("network registry: %v", err)
	}

	diagram, err := NewRegistry("diagram",
		ChangeSet{Version: 53, Operations: []Operation{RawStatement{SQL: diagramsDDL}}},
		ChangeSet{
			Version: 54,
			Operations: []Operation{RebuildTable{
				Table: "diagrams",
				Columns: []ColumnSpec{
					{Name: "mrid", Type: "TEXT", NotNull: true, PrimaryKey: true, KeepsNotNull: true},
					{Name: "name", Type: "TEXT"},
					{Name: "diagram_style", Type: "TEXT", NotNull: true, Transform: EnumRemap("diagram_style",
						map[string]string{"schematic": "SCHEMATIC", "geographic": "GEOGRAPHIC"}, "UNKNOWN")},
				},
			}},
		},
	)
	if err != nil {
		t.Fatalf("diagram registry: %v", err)
	}
	return network, diagram
}

func newTestCoordinator(t *testing.T, dir string) *Coordinator {
	t.Helper()
	network, diagram := splitRegistries(t)
	c, err := NewCoordinator(
		DatabaseFile{Path: filepath.Join(dir, "network.sqlite"), Registry: network},
		[]DatabaseFile{{Path: filepath.Join(dir, "network-diagram.sqlite"), Registry: diagram}},
	)
	if err != nil {
		t.Fatalf("NewCoordinator failed: %v", err)
	}
	return c
}

func TestCoordinator_Upgrade_SplitsLegacyFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	network, _ := splitRegistries(t)

	legacy, err := NewRegistry("network", network.ChangeSets()[0])
	if err != nil {
		t.Fatalf("legacy registry: %v", err)
	}
	seedFile(t, filepath.Join(dir, "network.sqlite"), legacy,
		`INSERT INTO diagrams (mrid, name, diagram_style) VALUES ('d1', 'main', 'schematic'), ('d2', 'odd', 'isometric')`,
		`INSERT INTO breakers (mrid, name) VALUES ('b1', 'one')`,
	)

	results, err := newTestCoordinator(t, dir).Upgrade(ctx)
	if err != nil {
		t.Fatalf("Upgrade failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if results[0].ToVersion != 53 || results[1].FromVersion != 53 || results[1].ToVersion != 54 {
		t.Errorf("Unexpected results %+v", results)
	}

	networkConn := openConn(t, filepath.Join(dir, "network.sqlite"))
	if hasTable(t, networkConn, "main", "diagrams") {
		t.Error("Expected diagrams to be moved out of the network file")
	}
	if n := queryInt(t, networkConn, `SELECT COUNT(*) FROM breakers`); n != 1 {
		t.Errorf("Expected breakers to stay, got %d rows", n)
	}

	diagramConn := openConn(t, filepath.Join(dir, "network-diagram.sqlite"))
	if v := currentVersion(t, diagramConn); v != 54 {
		t.Errorf("Expected diagram version 54, got %d", v)
	}
	if got := queryString(t, diagramConn, `SELECT diagram_style FROM diagrams WHERE mrid = 'd1'`); got != "SCHEMATIC" {
		t.Errorf("Expected SCHEMATIC, got %s", got)
	}
	if got := queryString(t, diagramConn, `SELECT diagram_style FROM diagrams WHERE mrid = 'd2'`); got != "UNKNOWN" {
		t.Errorf("Expected unmapped style to become UNKNOWN, got %s", got)
	}
	if n := queryInt(t, diagramConn, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = 'diagrams_name'`); n != 1 {
		t.Error("Expected diagrams_name index in the diagram file")
	}
}

func TestCoordinator_Upgrade_FreshFiles(t *testing.T) {
	dir := t.TempDir()
	c := newTestCoordinator(t, dir)

	results, err := c.Upgrade(context.Background())
	if err != nil {
		t.Fatalf("Upgrade failed: %v", err)
	}
	if !results[0].Created || results[0].ToVersion != 53 {
		t.Errorf("Unexpected network result %+v", results[0])
	}
	if results[1].Created || results[1].FromVersion != 53 {
		t.Errorf("Expected the diagram file to be created by the split, got %+v", results[1])
	}

	again, err := c.Upgrade(context.Background())
	if err != nil {
		t.Fatalf("Second upgrade failed: %v", err)
	}
	for _, r := range again {
		if r.Outcome() != OutcomeUpToDate {
			t.Errorf("Expected %s to be up to date, got %+v", r.Database, r)
		}
	}
}

func TestCoordinator_Upgrade_RecreatesMissingSplitFile(t *testing.T) {
	dir := t.TempDir()
	c := newTestCoordinator(t, dir)
	if _, err := c.Upgrade(context.Background()); err != nil {
		t.Fatalf("Upgrade failed: %v", err)
	}
	if err := os.Remove(filepath.Join(dir, "network-diagram.sqlite")); err != nil {
		t.Fatalf("Failed to remove diagram file: %v", err)
	}

	results, err := c.Upgrade(context.Background())
	if err != nil {
		t.Fatalf("Upgrade failed: %v", err)
	}
	if !results[1].Created || results[1].FromVersion != 52 || results[1].ToVersion != 54 {
		t.Errorf("Expected the diagram file to be rebuilt from its baseline, got %+v", results[1])
	}
}

func TestCoordinator_Upgrade_SplitTargetNotEmpty(t *testing.T) {
	dir := t.TempDir()
	network, _ := splitRegistries(t)
	legacy := MustRegistry("network", network.ChangeSets()[0])
	seedFile(t, filepath.Join(dir, "network.sqlite"), legacy)
	seedFile(t, filepath.Join(dir, "network-diagram.sqlite"), MustRegistry("stray", rawChangeSet(1, "CREATE TABLE stray (x INTEGER)")))

	results, err := newTestCoordinator(t, dir).Upgrade(context.Background())
	if !errors.Is(err, ErrChangesetExecution) {
		t.Fatalf("Expected ErrChangesetExecution, got %v", err)
	}
	if len(results) != 1 {
		t.Errorf("Expected the run to stop at the network file, got %d results", len(results))
	}

	conn := openConn(t, filepath.Join(dir, "network.sqlite"))
	if v := currentVersion(t, conn); v != 52 {
		t.Errorf("Expected network to stay at 52, got %d", v)
	}
	if !hasTable(t, conn, "main", "diagrams") {
		t.Error("Expected diagrams to stay in the network file")
	}
}

func TestCoordinator_Plan_DoesNotCreateFiles(t *testing.T) {
	dir := t.TempDir()
	plans, err := newTestCoordinator(t, dir).Plan(context.Background())
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(plans) != 2 {
		t.Fatalf("Expected 2 plans, got %d", len(plans))
	}
	if plans[0].TargetVersion() != 53 || len(plans[0].Pending) != 2 {
		t.Errorf("Unexpected network plan %+v", plans[0])
	}
	if plans[1].CurrentVersion != 53 || len(plans[1].Pending) != 1 {
		t.Errorf("Expected the diagram plan to start at the split version, got %+v", plans[1])
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected no files to be created, found %d", len(entries))
	}
}

func TestNewCoordinator_Invalid(t *testing.T) {
	network, diagram := splitRegistries(t)
	dir := t.TempDir()
	primary := DatabaseFile{Path: filepath.Join(dir, "network.sqlite"), Registry: network}

	tests := []struct {
		name    string
		splits  []DatabaseFile
		wantMsg string
	}{
		{
			name:    "missing split file",
			splits:  nil,
			wantMsg: "no file is configured",
		},
		{
			name: "duplicate split",
			splits: []DatabaseFile{
				{Path: filepath.Join(dir, "a.sqlite"), Registry: diagram},
				{Path: filepath.Join(dir, "b.sqlite"), Registry: diagram},
			},
			wantMsg: "listed twice",
		},
		{
			name:    "shared path",
			splits:  []DatabaseFile{{Path: primary.Path, Registry: diagram}},
			wantMsg: "shares the primary file",
		},
		{
			name: "split version outside registry",
			splits: []DatabaseFile{{
				Path:     filepath.Join(dir, "a.sqlite"),
				Registry: MustRegistry("diagram", rawChangeSet(60, "CREATE TABLE diagrams (mrid TEXT)")),
			}},
			wantMsg: "outside its registry range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCoordinator(primary, tt.splits)
			if err == nil || !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Expected error containing %q, got %v", tt.wantMsg, err)
			}
		})
	}
}
