// Command cimdb-upgrade brings a network database file and the files split
// out of it to the latest schema version.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/cimdb/internal/cim/changesets"
	"github.com/example/cimdb/internal/config"
	"github.com/example/cimdb/internal/logging"
	"github.com/example/cimdb/internal/persistence/sqlite/migration"
	"github.com/example/cimdb/internal/telemetry"
)

const serviceName = "cimdb-upgrade"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// run parses the environment then the flags, upgrades or plans every file
// and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	var check bool
	fs := flag.NewFlagSet(serviceName, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.NetworkPath, "network", cfg.NetworkPath, "network database file")
	fs.StringVar(&cfg.DiagramPath, "diagram", cfg.DiagramPath, "diagram database file (default: next to the network file)")
	fs.StringVar(&cfg.CustomerPath, "customer", cfg.CustomerPath, "customer database file (default: next to the network file)")
	fs.StringVar(&cfg.MetadataPath, "metadata", cfg.MetadataPath, "metadata database file (default: next to the network file)")
	fs.BoolVar(&check, "check", false, "report pending changesets without applying them")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn or error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: text or json")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := cfg.Resolve(); err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	level, _ := logging.ParseLevel(cfg.LogLevel)
	logger, err := logging.New(stderr, level, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	ctx = logging.ContextWithLogger(ctx, logger)

	shutdown, err := telemetry.Setup(ctx, serviceName, cfg.OTelEndpoint)
	if err != nil {
		logger.Error("failed to set up tracing", "error", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Error("failed to flush traces", "error", err)
		}
	}()

	coordinator, err := changesets.NewCoordinator(changesets.Paths{
		Network:  cfg.NetworkPath,
		Diagram:  cfg.DiagramPath,
		Customer: cfg.CustomerPath,
		Metadata: cfg.MetadataPath,
	}, migration.WithLogger(logger))
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	if check {
		return runCheck(ctx, coordinator, stdout)
	}
	return runUpgrade(ctx, coordinator, stdout)
}

func runUpgrade(ctx context.Context, coordinator *migration.Coordinator, stdout io.Writer) int {
	results, err := coordinator.Upgrade(ctx)
	if err == nil {
		for _, result := range results {
			fmt.Fprintln(stdout, result)
		}
		return 0
	}

	// The last result belongs to the file that failed.
	for _, result := range results[:len(results)-1] {
		fmt.Fprintln(stdout, result)
	}
	failed := results[len(results)-1]

	var changesetErr *migration.ChangesetError
	if errors.As(err, &changesetErr) {
		fmt.Fprintf(stdout, "%s: failed at changeset %d: %v\n", failed.Database, changesetErr.Version, changesetErr.Err)
	} else {
		fmt.Fprintf(stdout, "%s: failed: %v\n", failed.Database, err)
	}
	return 1
}

func runCheck(ctx context.Context, coordinator *migration.Coordinator, stdout io.Writer) int {
	plans, err := coordinator.Plan(ctx)
	for _, plan := range plans {
		switch {
		case plan.Fresh:
			fmt.Fprintf(stdout, "%s: would be created at version %d\n", plan.Database, plan.TargetVersion())
		case len(plan.Pending) == 0:
			fmt.Fprintf(stdout, "%s: up to date at version %d\n", plan.Database, plan.CurrentVersion)
		default:
			fmt.Fprintf(stdout, "%s: at version %d, %d pending\n", plan.Database, plan.CurrentVersion, len(plan.Pending))
		}
		for _, cs := range plan.Pending {
			fmt.Fprintf(stdout, "  %d %s %s\n", cs.Version, cs.Fingerprint()[:12], cs.Description)
		}
	}
	if err != nil {
		fmt.Fprintf(stdout, "failed: %v\n", err)
		return 1
	}
	return 0
}
