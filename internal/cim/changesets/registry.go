// Package changesets holds the released schema changesets of the network
// database and the files split out of it. Changesets are append-only: a
// released changeset is never edited, a new one is added instead.
package changesets

import (
	"github.com/example/cimdb/internal/persistence/sqlite/migration"
)

// Registry names. The split names double as the schema names the split
// files are attached under while the network file is upgraded.
const (
	NetworkDatabase  = "network"
	DiagramDatabase  = "diagram"
	CustomerDatabase = "customer"
	MetadataDatabase = "metadata"
)

var (
	network  = migration.MustRegistry(NetworkDatabase, networkChangeSets...)
	diagram  = migration.MustRegistry(DiagramDatabase, diagramChangeSets...)
	customer = migration.MustRegistry(CustomerDatabase, customerChangeSets...)
	metadata = migration.MustRegistry(MetadataDatabase, metadataChangeSets...)
)

// Network returns the network database registry
func Network() *migration.Registry { return network }

// Diagram returns the diagram database registry
func Diagram() *migration.Registry { return diagram }

// Customer returns the customer database registry
func Customer() *migration.Registry { return customer }

// Metadata returns the metadata database registry
func Metadata() *migration.Registry { return metadata }

// All returns every registry, network first
func All() []*migration.Registry {
	return []*migration.Registry{network, diagram, customer, metadata}
}

// Paths locates the network file and its split files
type Paths struct {
	Network  string
	Diagram  string
	Customer string
	Metadata string
}

// NewCoordinator returns a coordinator that upgrades the network file and
// then each split file
func NewCoordinator(paths Paths, opts ...migration.Option) (*migration.Coordinator, error) {
	return migration.NewCoordinator(
		migration.DatabaseFile{Path: paths.Network, Registry: network},
		[]migration.DatabaseFile{
			{Path: paths.Diagram, Registry: diagram},
			{Path: paths.Customer, Registry: customer},
			{Path: paths.Metadata, Registry: metadata},
		},
		opts...,
	)
}
