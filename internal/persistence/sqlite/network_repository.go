package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/cimdb/internal/persistence"
)

// NetworkRepository implements persistence.NetworkRepository for SQLite
type NetworkRepository struct {
	pool *ConnectionPool
}

// NewNetworkRepository creates a network repository on pool
func NewNetworkRepository(pool *ConnectionPool) *NetworkRepository {
	return &NetworkRepository{pool: pool}
}

// PutBreaker inserts a breaker or replaces the one with the same mRID
func (r *NetworkRepository) PutBreaker(ctx context.Context, breaker persistence.Breaker) error {
	query := `
		INSERT INTO breakers (mrid, name, normal_open, open, rated_current, in_transit_time)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (mrid) DO UPDATE SET
			name = excluded.name,
			normal_open = excluded.normal_open,
			open = excluded.open,
			rated_current = excluded.rated_current,
			in_transit_time = excluded.in_transit_time`

	_, err := r.pool.DB().ExecContext(ctx, query,
		breaker.MRID, breaker.Name, breaker.NormalOpen, breaker.Open,
		breaker.RatedCurrent, breaker.InTransitTime,
	)
	if err != nil {
		return fmt.Errorf("put breaker %s: %w", breaker.MRID, MapError(err))
	}
	return nil
}

// GetBreaker returns the breaker with the given mRID
func (r *NetworkRepository) GetBreaker(ctx context.Context, mrid string) (persistence.Breaker, error) {
	query := `
		SELECT mrid, name, normal_open, open, rated_current, in_transit_time
		FROM breakers
		WHERE mrid = ?`

	breaker, err := scanBreaker(r.pool.DB().QueryRowContext(ctx, query, mrid))
	if err != nil {
		return persistence.Breaker{}, fmt.Errorf("get breaker %s: %w", mrid, MapError(err))
	}
	return breaker, nil
}

// ListBreakers returns every breaker ordered by name then mRID
func (r *NetworkRepository) ListBreakers(ctx context.Context) ([]persistence.Breaker, error) {
	query := `
		SELECT mrid, name, normal_open, open, rated_current, in_transit_time
		FROM breakers
		ORDER BY name, mrid`

	var breakers []persistence.Breaker
	err := r.pool.WithReadOnlyTransaction(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			breaker, err := scanBreaker(rows)
			if err != nil {
				return err
			}
			breakers = append(breakers, breaker)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list breakers: %w", MapError(err))
	}
	return breakers, nil
}

// PutPowerTransformer inserts a transformer or replaces the one with the same mRID
func (r *NetworkRepository) PutPowerTransformer(ctx context.Context, transformer persistence.PowerTransformer) error {
	query := `
		INSERT INTO power_transformers (mrid, name, vector_group, transformer_utilisation, construction_kind, function_kind)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (mrid) DO UPDATE SET
			name = excluded.name,
			vector_group = excluded.vector_group,
			transformer_utilisation = excluded.transformer_utilisation,
			construction_kind = excluded.construction_kind,
			function_kind = excluded.function_kind`

	_, err := r.pool.DB().ExecContext(ctx, query,
		transformer.MRID, transformer.Name, transformer.VectorGroup, transformer.TransformerUtilisation,
		orDefault(transformer.ConstructionKind, "UNKNOWN"), orDefault(transformer.FunctionKind, "OTHER"),
	)
	if err != nil {
		return fmt.Errorf("put power transformer %s: %w", transformer.MRID, MapError(err))
	}
	return nil
}

// GetPowerTransformer returns the transformer with the given mRID
func (r *NetworkRepository) GetPowerTransformer(ctx context.Context, mrid string) (persistence.PowerTransformer, error) {
	query := `
		SELECT mrid, name, vector_group, transformer_utilisation, construction_kind, function_kind
		FROM power_transformers
		WHERE mrid = ?`

	var t persistence.PowerTransformer
	err := r.pool.DB().QueryRowContext(ctx, query, mrid).Scan(
		&t.MRID, &t.Name, &t.VectorGroup, &t.TransformerUtilisation, &t.ConstructionKind, &t.FunctionKind,
	)
	if err != nil {
		return persistence.PowerTransformer{}, fmt.Errorf("get power transformer %s: %w", mrid, MapError(err))
	}
	return t, nil
}

// PutPowerTransformerEnd inserts a transformer end or replaces the one with
// the same mRID. Two ends of one transformer cannot share an end number.
func (r *NetworkRepository) PutPowerTransformerEnd(ctx context.Context, end persistence.PowerTransformerEnd) error {
	query := `
		INSERT INTO power_transformer_ends (mrid, name, end_number, power_transformer_mrid, rated_s, rated_u)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (mrid) DO UPDATE SET
			name = excluded.name,
			end_number = excluded.end_number,
			power_transformer_mrid = excluded.power_transformer_mrid,
			rated_s = excluded.rated_s,
			rated_u = excluded.rated_u`

	_, err := r.pool.DB().ExecContext(ctx, query,
		end.MRID, end.Name, end.EndNumber, end.PowerTransformerMRID, end.RatedS, end.RatedU,
	)
	if err != nil {
		return fmt.Errorf("put power transformer end %s: %w", end.MRID, MapError(err))
	}
	return nil
}

// GetPowerTransformerEnd returns the transformer end with the given mRID
func (r *NetworkRepository) GetPowerTransformerEnd(ctx context.Context, mrid string) (persistence.PowerTransformerEnd, error) {
	query := `
		SELECT mrid, name, end_number, power_transformer_mrid, rated_s, rated_u
		FROM power_transformer_ends
		WHERE mrid = ?`

	end, err := scanPowerTransformerEnd(r.pool.DB().QueryRowContext(ctx, query, mrid))
	if err != nil {
		return persistence.PowerTransformerEnd{}, fmt.Errorf("get power transformer end %s: %w", mrid, MapError(err))
	}
	return end, nil
}

// ListPowerTransformerEnds returns the ends of a transformer in end number order
func (r *NetworkRepository) ListPowerTransformerEnds(ctx context.Context, transformerMRID string) ([]persistence.PowerTransformerEnd, error) {
	query := `
		SELECT mrid, name, end_number, power_transformer_mrid, rated_s, rated_u
		FROM power_transformer_ends
		WHERE power_transformer_mrid = ?
		ORDER BY end_number`

	var ends []persistence.PowerTransformerEnd
	err := r.pool.WithReadOnlyTransaction(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query, transformerMRID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			end, err := scanPowerTransformerEnd(rows)
			if err != nil {
				return err
			}
			ends = append(ends, end)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list power transformer ends of %s: %w", transformerMRID, MapError(err))
	}
	return ends, nil
}

// PutProtectionRelayFunction inserts a relay function or replaces the one
// with the same mRID
func (r *NetworkRepository) PutProtectionRelayFunction(ctx context.Context, function persistence.ProtectionRelayFunction) error {
	query := `
		INSERT INTO protection_relay_functions (mrid, name, kind, directable, power_direction)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (mrid) DO UPDATE SET
			name = excluded.name,
			kind = excluded.kind,
			directable = excluded.directable,
			power_direction = excluded.power_direction`

	_, err := r.pool.DB().ExecContext(ctx, query,
		function.MRID, function.Name, function.Kind, function.Directable,
		orDefault(function.PowerDirection, "UNKNOWN"),
	)
	if err != nil {
		return fmt.Errorf("put protection relay function %s: %w", function.MRID, MapError(err))
	}
	return nil
}

// ListProtectionRelayFunctions returns every relay function ordered by mRID
func (r *NetworkRepository) ListProtectionRelayFunctions(ctx context.Context) ([]persistence.ProtectionRelayFunction, error) {
	query := `
		SELECT mrid, name, kind, directable, power_direction
		FROM protection_relay_functions
		ORDER BY mrid`

	var functions []persistence.ProtectionRelayFunction
	err := r.pool.WithReadOnlyTransaction(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var f persistence.ProtectionRelayFunction
			if err := rows.Scan(&f.MRID, &f.Name, &f.Kind, &f.Directable, &f.PowerDirection); err != nil {
				return err
			}
			functions = append(functions, f)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list protection relay functions: %w", MapError(err))
	}
	return functions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBreaker(row rowScanner) (persistence.Breaker, error) {
	var b persistence.Breaker
	err := row.Scan(&b.MRID, &b.Name, &b.NormalOpen, &b.Open, &b.RatedCurrent, &b.InTransitTime)
	return b, err
}

func scanPowerTransformerEnd(row rowScanner) (persistence.PowerTransformerEnd, error) {
	var e persistence.PowerTransformerEnd
	err := row.Scan(&e.MRID, &e.Name, &e.EndNumber, &e.PowerTransformerMRID, &e.RatedS, &e.RatedU)
	return e, err
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
