package changesets

import (
	"github.com/example/cimdb/internal/persistence/sqlite/migration"
)

// constructionKinds maps the lower-case transformer construction tokens
// written before version 57 to the current tokens
var constructionKinds = map[string]string{
	"aerial":      "AERIAL",
	"overhead":    "OVERHEAD",
	"padmounted":  "PADMOUNTED",
	"pole":        "POLE",
	"subway":      "SUBWAY",
	"underground": "UNDERGROUND",
	"vault":       "VAULT",
}

var networkChangeSets = []migration.ChangeSet{
	{
		Version:     52,
		Description: "baseline network schema",
		Operations: []migration.Operation{
			migration.RawStatement{SQL: networkTablesDDL + diagramTablesDDL + customerTablesDDL + metadataTablesDDL},
		},
	},
	{
		Version:     53,
		Description: "add battery controls",
		Operations: []migration.Operation{
			migration.RawStatement{SQL: `
				CREATE TABLE battery_controls (
					mrid TEXT NOT NULL PRIMARY KEY,
					name TEXT NULL,
					charging_rate REAL NULL,
					discharging_rate REAL NULL,
					reserve_percent REAL NULL,
					control_mode TEXT NOT NULL,
					regulating_cond_eq_mrid TEXT NULL
				);
				CREATE INDEX battery_controls_regulating_cond_eq_mrid ON battery_controls (regulating_cond_eq_mrid);`,
			},
		},
	},
	{
		Version:     54,
		Description: "store breaker rated current as a double",
		Operations: []migration.Operation{
			migration.RebuildTable{
				Table: "breakers",
				Columns: []migration.ColumnSpec{
					{Name: "mrid", Type: "TEXT", NotNull: true, PrimaryKey: true, KeepsNotNull: true},
					{Name: "name", Type: "TEXT"},
					{Name: "normal_open", Type: "INTEGER", NotNull: true, KeepsNotNull: true},
					{Name: "open", Type: "INTEGER", NotNull: true, KeepsNotNull: true},
					{Name: "rated_current", Type: "REAL", Transform: migration.Cast("rated_current", migration.AffinityReal)},
					{Name: "in_transit_time", Type: "REAL"},
				},
			},
		},
	},
	{
		Version:     55,
		Description: "allow transformer ends without a rated voltage",
		Operations: []migration.Operation{
			migration.RebuildTable{
				Table: "power_transformer_ends",
				Columns: []migration.ColumnSpec{
					{Name: "mrid", Type: "TEXT", NotNull: true, PrimaryKey: true, KeepsNotNull: true},
					{Name: "name", Type: "TEXT"},
					{Name: "end_number", Type: "INTEGER", NotNull: true, KeepsNotNull: true},
					{Name: "power_transformer_mrid", Type: "TEXT"},
					{Name: "rated_s", Type: "INTEGER"},
					{Name: "rated_u", Type: "INTEGER"},
				},
			},
		},
	},
	{
		Version:     56,
		Description: "split diagram, customer and metadata tables into their own files",
		Operations: []migration.Operation{
			migration.SplitDatabase{Kind: DiagramDatabase, Version: 56, Tables: diagramTables},
			migration.SplitDatabase{Kind: CustomerDatabase, Version: 56, Tables: customerTables},
			migration.SplitDatabase{Kind: MetadataDatabase, Version: 56, Tables: metadataTables},
		},
	},
	{
		Version:     57,
		Description: "normalise power direction and transformer construction kinds, add transformer function kind",
		Operations: []migration.Operation{
			migration.RenameEnumValue{
				Table:  "protection_relay_functions",
				Column: "power_direction",
				From:   "UNKNOWN_DIRECTION",
				To:     "UNKNOWN",
			},
			migration.RebuildTable{
				Table: "power_transformers",
				Columns: []migration.ColumnSpec{
					{Name: "mrid", Type: "TEXT", NotNull: true, PrimaryKey: true, KeepsNotNull: true},
					{Name: "name", Type: "TEXT"},
					{Name: "vector_group", Type: "TEXT", NotNull: true, KeepsNotNull: true},
					{Name: "transformer_utilisation", Type: "REAL"},
					{Name: "construction_kind", Type: "TEXT", NotNull: true, Default: "UNKNOWN",
						Transform: migration.EnumRemap("construction_kind", constructionKinds, "UNKNOWN")},
					{Name: "function_kind", Type: "TEXT", NotNull: true, Default: "OTHER",
						Transform: migration.Literal("OTHER")},
				},
			},
		},
	},
	{
		Version:     58,
		Description: "add conductor design ratings and lookup indexes",
		Operations: []migration.Operation{
			migration.RawStatement{SQL: `
				ALTER TABLE acls_segments ADD COLUMN design_temperature INTEGER NULL;
				ALTER TABLE acls_segments ADD COLUMN design_rating REAL NULL;
				CREATE INDEX acls_segments_per_length_sequence_impedance_mrid ON acls_segments (per_length_sequence_impedance_mrid);
				CREATE INDEX acls_segments_name ON acls_segments (name);`,
			},
			migration.RecreateIndex{
				Name:       "breakers_name",
				Definition: `CREATE INDEX breakers_name ON breakers (name, mrid)`,
			},
			migration.RenameEnumValue{
				Table:  "battery_controls",
				Column: "control_mode",
				From:   "UNKNOWN_CONTROL_MODE",
				To:     "UNKNOWN",
			},
		},
	},
}
