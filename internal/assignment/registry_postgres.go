package assignment

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresRegistry reads the firm_assignments table maintained by the roster
// system. Rows may carry an end date; only active assignments count.
type PostgresRegistry struct {
	db *sql.DB
}

func NewPostgresRegistry(db *sql.DB) *PostgresRegistry {
	return &PostgresRegistry{db: db}
}

func (r *PostgresRegistry) Assigned(ctx context.Context, agencyID, firmID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM firm_assignments
			WHERE agency_id = $1 AND firm_id = $2
			  AND (ends_at IS NULL OR ends_at > NOW())
		)
	`
	var assigned bool
	if err := r.db.QueryRowContext(ctx, query, agencyID, firmID).Scan(&assigned); err != nil {
		return false, fmt.Errorf("check assignment: %w", err)
	}
	return assigned, nil
}
