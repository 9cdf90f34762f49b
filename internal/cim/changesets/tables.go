package changesets

// Baseline DDL shared by the network file and the split files. A table that
// moves into a split file is created from the same text in the split
// registry's baseline, so a file produced by the split and a file created
// fresh have the same schema.

const networkTablesDDL = `
CREATE TABLE breakers (
	mrid TEXT NOT NULL PRIMARY KEY,
	name TEXT NULL,
	normal_open INTEGER NOT NULL,
	open INTEGER NOT NULL,
	rated_current INTEGER NULL,
	in_transit_time REAL NULL
);
CREATE INDEX breakers_name ON breakers (name);

CREATE TABLE power_transformers (
	mrid TEXT NOT NULL PRIMARY KEY,
	name TEXT NULL,
	vector_group TEXT NOT NULL,
	transformer_utilisation REAL NULL,
	construction_kind TEXT NULL
);

CREATE TABLE power_transformer_ends (
	mrid TEXT NOT NULL PRIMARY KEY,
	name TEXT NULL,
	end_number INTEGER NOT NULL,
	power_transformer_mrid TEXT NULL,
	rated_s INTEGER NULL,
	rated_u INTEGER NOT NULL
);
CREATE UNIQUE INDEX power_transformer_ends_power_transformer_mrid_end_number ON power_transformer_ends (power_transformer_mrid, end_number);

CREATE TABLE protection_relay_functions (
	mrid TEXT NOT NULL PRIMARY KEY,
	name TEXT NULL,
	kind TEXT NOT NULL,
	directable INTEGER NULL,
	power_direction TEXT NOT NULL
);
CREATE INDEX protection_relay_functions_name ON protection_relay_functions (name);

CREATE TABLE acls_segments (
	mrid TEXT NOT NULL PRIMARY KEY,
	name TEXT NULL,
	length REAL NULL,
	per_length_sequence_impedance_mrid TEXT NULL
);
`

const diagramTablesDDL = `
CREATE TABLE diagrams (
	mrid TEXT NOT NULL PRIMARY KEY,
	name TEXT NULL,
	diagram_style TEXT NOT NULL,
	orientation_kind TEXT NOT NULL
);

CREATE TABLE diagram_objects (
	mrid TEXT NOT NULL PRIMARY KEY,
	name TEXT NULL,
	identified_object_mrid TEXT NULL,
	diagram_mrid TEXT NULL,
	style TEXT NULL,
	rotation REAL NOT NULL
);
CREATE INDEX diagram_objects_identified_object_mrid ON diagram_objects (identified_object_mrid);
CREATE INDEX diagram_objects_diagram_mrid ON diagram_objects (diagram_mrid);
`

const customerTablesDDL = `
CREATE TABLE customers (
	mrid TEXT NOT NULL PRIMARY KEY,
	name TEXT NULL,
	kind TEXT NULL,
	num_end_devices INTEGER NULL
);

CREATE TABLE customer_agreements (
	mrid TEXT NOT NULL PRIMARY KEY,
	name TEXT NULL,
	customer_mrid TEXT NULL
);
CREATE INDEX customer_agreements_customer_mrid ON customer_agreements (customer_mrid);
`

const metadataTablesDDL = `
CREATE TABLE metadata_data_sources (
	source TEXT NOT NULL,
	version TEXT NOT NULL,
	timestamp TEXT NOT NULL
);
`

// Tables moved out of the network file at version 56
var (
	diagramTables  = []string{"diagrams", "diagram_objects"}
	customerTables = []string{"customers", "customer_agreements"}
	metadataTables = []string{"metadata_data_sources"}
)
