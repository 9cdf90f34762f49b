package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/cimdb/internal/persistence"
)

// CustomerRepository implements persistence.CustomerRepository for SQLite
type CustomerRepository struct {
	pool *ConnectionPool
}

// NewCustomerRepository creates a customer repository on pool
func NewCustomerRepository(pool *ConnectionPool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// PutCustomer inserts a customer or replaces the one with the same mRID
func (r *CustomerRepository) PutCustomer(ctx context.Context, customer persistence.Customer) error {
	query := `
		INSERT INTO customers (mrid, name, kind, num_end_devices)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (mrid) DO UPDATE SET
			name = excluded.name,
			kind = excluded.kind,
			num_end_devices = excluded.num_end_devices`

	_, err := r.pool.DB().ExecContext(ctx, query,
		customer.MRID, customer.Name, orDefault(customer.Kind, "UNKNOWN"), customer.NumEndDevices,
	)
	if err != nil {
		return fmt.Errorf("put customer %s: %w", customer.MRID, MapError(err))
	}
	return nil
}

// GetCustomer returns the customer with the given mRID
func (r *CustomerRepository) GetCustomer(ctx context.Context, mrid string) (persistence.Customer, error) {
	query := `SELECT mrid, name, kind, num_end_devices FROM customers WHERE mrid = ?`

	var c persistence.Customer
	err := r.pool.DB().QueryRowContext(ctx, query, mrid).Scan(&c.MRID, &c.Name, &c.Kind, &c.NumEndDevices)
	if err != nil {
		return persistence.Customer{}, fmt.Errorf("get customer %s: %w", mrid, MapError(err))
	}
	return c, nil
}

// ListCustomers returns every customer ordered by mRID
func (r *CustomerRepository) ListCustomers(ctx context.Context) ([]persistence.Customer, error) {
	query := `SELECT mrid, name, kind, num_end_devices FROM customers ORDER BY mrid`

	var customers []persistence.Customer
	err := r.pool.WithReadOnlyTransaction(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var c persistence.Customer
			if err := rows.Scan(&c.MRID, &c.Name, &c.Kind, &c.NumEndDevices); err != nil {
				return err
			}
			customers = append(customers, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", MapError(err))
	}
	return customers, nil
}

// PutCustomerAgreement inserts an agreement or replaces the one with the same mRID
func (r *CustomerRepository) PutCustomerAgreement(ctx context.Context, agreement persistence.CustomerAgreement) error {
	query := `
		INSERT INTO customer_agreements (mrid, name, customer_mrid)
		VALUES (?, ?, ?)
		ON CONFLICT (mrid) DO UPDATE SET
			name = excluded.name,
			customer_mrid = excluded.customer_mrid`

	_, err := r.pool.DB().ExecContext(ctx, query, agreement.MRID, agreement.Name, agreement.CustomerMRID)
	if err != nil {
		return fmt.Errorf("put customer agreement %s: %w", agreement.MRID, MapError(err))
	}
	return nil
}

// ListCustomerAgreements returns the agreements of a customer ordered by mRID
func (r *CustomerRepository) ListCustomerAgreements(ctx context.Context, customerMRID string) ([]persistence.CustomerAgreement, error) {
	query := `
		SELECT mrid, name, customer_mrid
		FROM customer_agreements
		WHERE customer_mrid = ?
		ORDER BY mrid`

	var agreements []persistence.CustomerAgreement
	err := r.pool.WithReadOnlyTransaction(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query, customerMRID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var a persistence.CustomerAgreement
			if err := rows.Scan(&a.MRID, &a.Name, &a.CustomerMRID); err != nil {
				return err
			}
			agreements = append(agreements, a)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list customer agreements of %s: %w", customerMRID, MapError(err))
	}
	return agreements, nil
}
