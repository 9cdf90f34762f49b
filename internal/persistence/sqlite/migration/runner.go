package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/cimdb/internal/logging"
)

const tracerName = "github.com/example/cimdb/internal/persistence/sqlite/migration"

// Runner upgrades one database file with one registry. It reads the current
// version once, applies each pending changeset in its own transaction and
// records the version in that same transaction.
type Runner struct {
	registry *Registry
	versions *VersionStore
	logger   *slog.Logger
	hook     TransitionFunc
	env      Environment
	now      func() time.Time
	tracer   trace.Tracer
}

// Option configures a Runner
type Option func(*Runner)

// WithLogger sets the logger. Without it the runner uses the context logger,
// then slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithTransitionHook registers a function called on every state transition
func WithTransitionHook(hook TransitionFunc) Option {
	return func(r *Runner) {
		r.hook = hook
	}
}

// WithEnvironment sets the split database paths used by SplitDatabase
func WithEnvironment(env Environment) Option {
	return func(r *Runner) {
		r.env = env
	}
}

// WithClock overrides the clock used to measure durations
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// NewRunner creates a Runner for registry
func NewRunner(registry *Registry, opts ...Option) (*Runner, error) {
	if registry == nil {
		return nil, fmt.Errorf("%w: nil registry", ErrInvalidRegistry)
	}
	r := &Runner{
		registry: registry,
		versions: NewVersionStore(),
		now:      time.Now,
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Registry returns the registry the runner applies
func (r *Runner) Registry() *Registry {
	return r.registry
}

// Plan reads the current version and reports the pending changesets
// without applying them
func (r *Runner) Plan(ctx context.Context, q Querier) (Plan, error) {
	plan := Plan{Database: r.registry.Name()}

	tables, err := userTables(ctx, q, "main")
	if err != nil {
		return plan, err
	}
	if len(tables) == 0 {
		plan.Fresh = true
		plan.CurrentVersion = r.registry.Floor()
		plan.Pending = r.registry.ChangeSets()
		return plan, nil
	}

	current, err := r.versions.CurrentVersion(ctx, q)
	if err != nil {
		return plan, fmt.Errorf("%s database: %w", r.registry.Name(), err)
	}
	plan.CurrentVersion = current

	switch {
	case current > r.registry.Latest():
		return plan, fmt.Errorf("%w: %s database is at version %d, this binary supports up to %d",
			ErrFutureSchemaVersion, r.registry.Name(), current, r.registry.Latest())
	case current < r.registry.Floor():
		return plan, fmt.Errorf("%w: %s database is at version %d, the oldest supported is %d",
			ErrUnsupportedSchemaVersion, r.registry.Name(), current, r.registry.Floor())
	}

	plan.Pending = r.registry.Pending(current)
	return plan, nil
}

// Upgrade applies every pending changeset on conn. The context is checked
// before each changeset; a changeset that has started always runs to commit
// or rollback. On failure the returned Result still reports the changesets
// committed before the failing one.
func (r *Runner) Upgrade(ctx context.Context, conn *sql.Conn) (Result, error) {
	start := r.now()
	runID := uuid.NewString()
	name := r.registry.Name()
	logger := r.loggerFor(ctx).With(
		slog.String("run_id", runID),
		slog.String("database", name),
	)
	ctx = logging.ContextWithLogger(ctx, logger)

	ctx, span := r.tracer.Start(ctx, "migration.upgrade", trace.WithAttributes(
		attribute.String("cimdb.database", name),
		attribute.String("cimdb.run_id", runID),
	))
	defer span.End()

	result := Result{Database: name}
	finish := func(err error) (Result, error) {
		result.Duration = r.now().Sub(start)
		span.SetAttributes(
			attribute.Int("cimdb.version.from", result.FromVersion),
			attribute.Int("cimdb.version.to", result.ToVersion),
			attribute.Int("cimdb.changesets.applied", len(result.Applied)),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.ErrorContext(ctx, "upgrade failed",
				slog.Int("version", result.ToVersion),
				slog.Any("error", err),
			)
		}
		return result, err
	}

	r.transition(ctx, logger, StateIdle, 0)
	r.transition(ctx, logger, StateSelecting, 0)

	plan, err := r.Plan(ctx, conn)
	if err != nil {
		r.transition(ctx, logger, StateFailed, plan.CurrentVersion)
		return finish(err)
	}
	result.FromVersion = plan.CurrentVersion
	result.ToVersion = plan.CurrentVersion

	if len(plan.Pending) == 0 {
		r.transition(ctx, logger, StateUpToDate, plan.CurrentVersion)
		return finish(nil)
	}

	logger.InfoContext(ctx, "pending changesets selected",
		slog.Int("current_version", plan.CurrentVersion),
		slog.Int("target_version", plan.TargetVersion()),
		slog.Int("count", len(plan.Pending)),
		slog.Bool("fresh", plan.Fresh),
	)

	fresh := plan.Fresh
	for _, cs := range plan.Pending {
		if err := ctx.Err(); err != nil {
			r.transition(ctx, logger, StateFailed, cs.Version)
			return finish(fmt.Errorf("%s database: upgrade stopped before changeset %d: %w", name, cs.Version, err))
		}

		r.transition(ctx, logger, StateApplying, cs.Version)
		csStart := r.now()
		if err := r.apply(context.WithoutCancel(ctx), logger, conn, cs, fresh); err != nil {
			r.transition(ctx, logger, StateFailed, cs.Version)
			return finish(err)
		}
		if fresh {
			result.Created = true
			fresh = false
		}
		result.Applied = append(result.Applied, cs.Version)
		result.ToVersion = cs.Version
		r.transition(ctx, logger, StateCommitted, cs.Version)

		logger.InfoContext(ctx, "changeset applied",
			slog.Int("version", cs.Version),
			slog.String("description", cs.Description),
			slog.Duration("duration", r.now().Sub(csStart)),
		)
	}

	r.transition(ctx, logger, StateUpToDate, result.ToVersion)
	return finish(nil)
}

// apply runs one changeset in its own transaction. Split files are attached
// before the transaction starts and detached after it ends.
func (r *Runner) apply(ctx context.Context, logger *slog.Logger, conn *sql.Conn, cs ChangeSet, fresh bool) (err error) {
	name := r.registry.Name()

	ctx, span := r.tracer.Start(ctx, "migration.changeset", trace.WithAttributes(
		attribute.String("cimdb.database", name),
		attribute.Int("cimdb.changeset.version", cs.Version),
		attribute.String("cimdb.changeset.fingerprint", cs.Fingerprint()),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var attached []string
	defer func() {
		for _, schema := range attached {
			stmt := fmt.Sprintf("DETACH DATABASE %s", quoteIdent(schema))
			if _, detachErr := conn.ExecContext(ctx, stmt); detachErr != nil {
				logger.WarnContext(ctx, "detach failed", slog.String("schema", schema), slog.Any("error", detachErr))
			}
		}
	}()

	for i, op := range cs.Operations {
		a, ok := op.(attacher)
		if !ok {
			continue
		}
		atts, attErr := a.attachments(r.env)
		if attErr != nil {
			return NewChangesetError(name, cs.Version, i+1, op.Describe(), attErr)
		}
		for _, att := range atts {
			stmt := fmt.Sprintf("ATTACH DATABASE ? AS %s", quoteIdent(att.Schema))
			if _, attErr := conn.ExecContext(ctx, stmt, att.Path); attErr != nil {
				return NewChangesetError(name, cs.Version, i+1, op.Describe(),
					NewDatabaseError(name, stmt, "attach "+att.Schema, attErr))
			}
			attached = append(attached, att.Schema)
		}
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return NewChangesetError(name, cs.Version, 0, "", NewDatabaseError(name, "", "begin transaction", err))
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				logger.ErrorContext(ctx, "rollback failed", slog.Int("version", cs.Version), slog.Any("error", rollbackErr))
			}
		}
	}()

	if fresh {
		if err = r.versions.Initialize(ctx, tx, r.registry.Floor()); err != nil {
			return NewChangesetError(name, cs.Version, 0, "", err)
		}
	}

	exec := &execution{
		database:  name,
		version:   cs.Version,
		tx:        tx,
		env:       r.env,
		rebuilder: NewTableRebuilder(logger),
		logger:    logger,
	}
	for i, op := range cs.Operations {
		stepStart := r.now()
		if err = op.apply(ctx, exec); err != nil {
			return NewChangesetError(name, cs.Version, i+1, op.Describe(), err)
		}
		logger.DebugContext(ctx, "changeset step applied",
			slog.Int("version", cs.Version),
			slog.Int("step", i+1),
			slog.String("operation", op.Describe()),
			slog.Duration("duration", r.now().Sub(stepStart)),
		)
	}

	if err = r.versions.SetVersion(ctx, tx, cs.Version); err != nil {
		return NewChangesetError(name, cs.Version, 0, "", err)
	}
	if err = tx.Commit(); err != nil {
		return NewChangesetError(name, cs.Version, 0, "", NewDatabaseError(name, "", "commit transaction", err))
	}
	return nil
}

func (r *Runner) transition(ctx context.Context, logger *slog.Logger, state State, version int) {
	logger.DebugContext(ctx, "migration state changed",
		slog.String("state", state.String()),
		slog.Int("version", version),
	)
	if r.hook != nil {
		r.hook(state, version)
	}
}

func (r *Runner) loggerFor(ctx context.Context) *slog.Logger {
	if r.logger != nil {
		return r.logger
	}
	return logging.FromContext(ctx)
}
