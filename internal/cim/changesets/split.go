package changesets

import (
	"github.com/example/cimdb/internal/persistence/sqlite/migration"
)

var diagramStyles = map[string]string{
	"schematic":  "SCHEMATIC",
	"geographic": "GEOGRAPHIC",
	"SCHEMATIC":  "SCHEMATIC",
	"GEOGRAPHIC": "GEOGRAPHIC",
}

var customerKinds = map[string]string{
	"residential":                  "RESIDENTIAL",
	"residentialAndCommercial":     "RESIDENTIAL_AND_COMMERCIAL",
	"residentialAndStreetlight":    "RESIDENTIAL_AND_STREETLIGHT",
	"residentialFarmService":       "RESIDENTIAL_FARM_SERVICE",
	"residentialStreetlightOthers": "RESIDENTIAL_STREETLIGHT_OTHERS",
	"commercialIndustrial":         "COMMERCIAL_INDUSTRIAL",
	"energyServiceScheduler":       "ENERGY_SERVICE_SCHEDULER",
	"energyServiceSupplier":        "ENERGY_SERVICE_SUPPLIER",
	"pumpingLoad":                  "PUMPING_LOAD",
	"windMachine":                  "WIND_MACHINE",
	"internalUse":                  "INTERNAL_USE",
	"subsidiary":                   "SUBSIDIARY",
	"other":                        "OTHER",
}

var diagramChangeSets = []migration.ChangeSet{
	{
		Version:     56,
		Description: "baseline diagram schema",
		Operations:  []migration.Operation{migration.RawStatement{SQL: diagramTablesDDL}},
	},
	{
		Version:     57,
		Description: "normalise diagram styles",
		Operations: []migration.Operation{
			migration.RebuildTable{
				Table: "diagrams",
				Columns: []migration.ColumnSpec{
					{Name: "mrid", Type: "TEXT", NotNull: true, PrimaryKey: true, KeepsNotNull: true},
					{Name: "name", Type: "TEXT"},
					{Name: "diagram_style", Type: "TEXT", NotNull: true,
						Transform: migration.EnumRemap("diagram_style", diagramStyles, "UNKNOWN")},
					{Name: "orientation_kind", Type: "TEXT", NotNull: true, KeepsNotNull: true},
				},
			},
		},
	},
}

var customerChangeSets = []migration.ChangeSet{
	{
		Version:     56,
		Description: "baseline customer schema",
		Operations:  []migration.Operation{migration.RawStatement{SQL: customerTablesDDL}},
	},
	{
		Version:     57,
		Description: "normalise customer kinds and require an end device count",
		Operations: []migration.Operation{
			migration.RebuildTable{
				Table: "customers",
				Columns: []migration.ColumnSpec{
					{Name: "mrid", Type: "TEXT", NotNull: true, PrimaryKey: true, KeepsNotNull: true},
					{Name: "name", Type: "TEXT"},
					{Name: "kind", Type: "TEXT", NotNull: true, Default: "UNKNOWN",
						Transform: migration.EnumRemap("kind", customerKinds, "UNKNOWN")},
					{Name: "num_end_devices", Type: "INTEGER", NotNull: true, Default: 0,
						Transform: migration.Backfill("num_end_devices", 0)},
				},
			},
		},
	},
}

var metadataChangeSets = []migration.ChangeSet{
	{
		Version:     56,
		Description: "baseline metadata schema",
		Operations:  []migration.Operation{migration.RawStatement{SQL: metadataTablesDDL}},
	},
}
