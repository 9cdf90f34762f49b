package migration

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

// ChangeSet is one schema generation: applying it moves a database from
// Version-1 to Version. Released changesets are never edited, only superseded.
type ChangeSet struct {
	Version     int         // Version the database is at once the changeset commits
	Description string      // Human-readable description of the changeset
	Operations  []Operation // Steps executed in declared order inside one transaction
}

// Fingerprint returns a BLAKE2b-256 digest of the changeset's version and the
// description of every operation. Editing a released changeset changes it.
func (c ChangeSet) Fingerprint() string {
	h, _ := blake2b.New256(nil)
	fmt.Fprintf(h, "version %d\n", c.Version)
	for _, op := range c.Operations {
		if op == nil {
			continue
		}
		fmt.Fprintf(h, "%s\n", op.Describe())
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Operation is one step of a changeset. The set of operations is closed:
// RawStatement, RebuildTable, RecreateIndex, RenameEnumValue and SplitDatabase.
type Operation interface {
	// Describe returns a stable description used in logs, errors and fingerprints
	Describe() string

	apply(ctx context.Context, exec *execution) error
}

// validator is implemented by operations that can check their own definition
// when the registry is built
type validator interface {
	validate() error
}

// attacher is implemented by operations that need another database file
// attached to the connection before the changeset transaction starts
type attacher interface {
	attachments(env Environment) ([]attachment, error)
}

// attachment names a database file attached under a schema name
type attachment struct {
	Schema string
	Path   string
}

// Environment carries the file layout a run needs beyond the database being
// upgraded. SplitPaths maps a split database kind to its file path.
type Environment struct {
	SplitPaths map[string]string
}

// Querier is the subset of *sql.DB, *sql.Conn and *sql.Tx used by the engine
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// execution is the state shared by the operations of one changeset
type execution struct {
	database  string
	version   int
	tx        *sql.Tx
	env       Environment
	rebuilder *TableRebuilder
	logger    *slog.Logger
}

// State is a step of the runner's state machine
type State int

const (
	StateIdle State = iota
	StateSelecting
	StateApplying
	StateCommitted
	StateUpToDate
	StateFailed
)

// String returns the state name used in logs
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSelecting:
		return "selecting"
	case StateApplying:
		return "applying"
	case StateCommitted:
		return "committed"
	case StateUpToDate:
		return "up_to_date"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// TransitionFunc observes runner state transitions. Version is the changeset
// being applied, or the current database version for the other states.
type TransitionFunc func(state State, version int)

// Plan describes what an upgrade would do without doing it
type Plan struct {
	Database       string      // Registry name
	CurrentVersion int         // Version recorded in the file, or the floor for a new file
	Fresh          bool        // File has no tables and will be initialised
	Pending        []ChangeSet // Changesets to apply, ascending
}

// TargetVersion returns the version the database reaches once Pending is applied
func (p Plan) TargetVersion() int {
	if len(p.Pending) == 0 {
		return p.CurrentVersion
	}
	return p.Pending[len(p.Pending)-1].Version
}

// Outcome classifies a successful run
type Outcome int

const (
	OutcomeUpToDate Outcome = iota
	OutcomeUpgraded
)

// Result reports a finished run. On failure it still reports the changesets
// that committed before the failing one.
type Result struct {
	Database    string        // Registry name
	Path        string        // Database file path, when known
	FromVersion int           // Version before the run
	ToVersion   int           // Version after the run
	Applied     []int         // Versions committed by this run
	Created     bool          // File was initialised by this run
	Duration    time.Duration // Wall time of the run
}

// Outcome reports whether the run changed the database
func (r Result) Outcome() Outcome {
	if len(r.Applied) == 0 {
		return OutcomeUpToDate
	}
	return OutcomeUpgraded
}

// String renders the result the way the CLI reports it
func (r Result) String() string {
	var b strings.Builder
	b.WriteString(r.Database)
	b.WriteString(": ")
	switch r.Outcome() {
	case OutcomeUpToDate:
		fmt.Fprintf(&b, "already up to date at version %d", r.ToVersion)
	default:
		if r.Created {
			fmt.Fprintf(&b, "created and upgraded to version %d", r.ToVersion)
		} else {
			fmt.Fprintf(&b, "upgraded from version %d to version %d", r.FromVersion, r.ToVersion)
		}
	}
	return b.String()
}
