package sqlite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/cimdb/internal/cim/changesets"
	"github.com/example/cimdb/internal/logging"
	"github.com/example/cimdb/internal/persistence"
	"github.com/example/cimdb/internal/persistence/sqlite/migration"
)

// Storage gives access to the network file and its customer file once both
// are at their latest schema version.
type Storage struct {
	network  *ConnectionPool
	customer *ConnectionPool
}

// Open upgrades the network file and every split file, then opens
// connection pools on the network and customer files. No repository is
// handed out for a file that failed to upgrade.
func Open(ctx context.Context, paths changesets.Paths, opts ...migration.Option) (*Storage, []migration.Result, error) {
	coordinator, err := changesets.NewCoordinator(paths, opts...)
	if err != nil {
		return nil, nil, err
	}

	results, err := coordinator.Upgrade(ctx)
	if err != nil {
		return nil, results, err
	}

	logger := logging.FromContext(ctx)
	for _, result := range results {
		logger.InfoContext(ctx, "database ready",
			slog.String("database", result.Database),
			slog.String("path", result.Path),
			slog.Int("version", result.ToVersion),
		)
	}

	network, err := openPool(ctx, logger, "network", paths.Network)
	if err != nil {
		return nil, results, err
	}
	customer, err := openPool(ctx, logger, "customer", paths.Customer)
	if err != nil {
		_ = network.Close()
		return nil, results, err
	}

	return &Storage{network: network, customer: customer}, results, nil
}

func openPool(ctx context.Context, logger *slog.Logger, database, path string) (*ConnectionPool, error) {
	pool, err := NewConnectionPool(ctx, migration.DefaultSQLiteConfig(path))
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", database, err)
	}
	if err := pool.Ping(ctx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("ping %s database: %w", database, MapError(err))
	}

	logger.DebugContext(ctx, "connection pool opened",
		slog.String("database", database),
		slog.String("path", pool.Path()),
	)
	return pool, nil
}

// Network returns the repository backed by the network file
func (s *Storage) Network() persistence.NetworkRepository {
	return NewNetworkRepository(s.network)
}

// Customers returns the repository backed by the customer file
func (s *Storage) Customers() persistence.CustomerRepository {
	return NewCustomerRepository(s.customer)
}

// Close releases both connection pools
func (s *Storage) Close() error {
	return errors.Join(s.network.Close(), s.customer.Close())
}
