package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"vigil/internal/workflow/models"
	"vigil/pkg/sentinel"
)

// Postgres persists workflow entities in PostgreSQL via database/sql.
// Atomic contract methods open their own transaction; uniqueness is enforced
// by the schema (observations unique on (audit_id, number), penalties on
// observation_id, scorecards on audit_id).
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// uniqueViolation reports whether err is a Postgres unique-constraint error.
func uniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// -----------------------------------------------------------------------------
// Audits
// -----------------------------------------------------------------------------

func (s *Postgres) CreateAudit(ctx context.Context, audit *models.Audit) error {
	query := `
		INSERT INTO audits (id, agency_id, firm_id, auditor_name, auditor_employee_id, audit_date, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		audit.ID,
		audit.AgencyID,
		audit.FirmID,
		audit.AuditorName,
		audit.AuditorEmployeeID,
		audit.AuditDate,
		audit.Status,
		audit.CreatedAt,
		audit.UpdatedAt,
	)
	if err != nil {
		if uniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert audit: %w", err)
	}
	return nil
}

func (s *Postgres) GetAudit(ctx context.Context, id uuid.UUID) (*models.Audit, error) {
	query := `
		SELECT id, agency_id, firm_id, auditor_name, auditor_employee_id, audit_date, status, created_at, updated_at
		FROM audits
		WHERE id = $1
	`
	audit, err := scanAudit(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get audit: %w", err)
	}
	return audit, nil
}

func (s *Postgres) TransitionAudit(ctx context.Context, id uuid.UUID, from, to models.AuditStatus, now time.Time) (bool, error) {
	query := `
		UPDATE audits
		SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
	`
	result, err := s.db.ExecContext(ctx, query, id, from, to, now)
	if err != nil {
		return false, fmt.Errorf("transition audit: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition audit rows affected: %w", err)
	}
	return rows > 0, nil
}

// -----------------------------------------------------------------------------
// Observations
// -----------------------------------------------------------------------------

func (s *Postgres) CreateObservation(ctx context.Context, obs *models.Observation) error {
	query := `
		INSERT INTO observations (id, audit_id, number, category, severity, description, status, notice_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.ExecContext(ctx, query,
		obs.ID,
		obs.AuditID,
		obs.Number,
		obs.Category,
		obs.Severity,
		obs.Description,
		obs.Status,
		obs.NoticeID,
		obs.CreatedAt,
		obs.UpdatedAt,
	)
	if err != nil {
		if uniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert observation: %w", err)
	}
	return nil
}

func (s *Postgres) GetObservation(ctx context.Context, id uuid.UUID) (*models.Observation, error) {
	query := observationSelect + ` WHERE id = $1`
	obs, err := scanObservation(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get observation: %w", err)
	}
	return obs, nil
}

func (s *Postgres) ListObservationsByAudit(ctx context.Context, auditID uuid.UUID) ([]*models.Observation, error) {
	query := observationSelect + ` WHERE audit_id = $1 ORDER BY number`
	rows, err := s.db.QueryContext(ctx, query, auditID)
	if err != nil {
		return nil, fmt.Errorf("list observations: %w", err)
	}
	defer rows.Close()
	return collectObservations(rows)
}

// -----------------------------------------------------------------------------
// Row scanning
// -----------------------------------------------------------------------------

const observationSelect = `
	SELECT id, audit_id, number, category, severity, description, status, notice_id, created_at, updated_at
	FROM observations`

type row interface {
	Scan(dest ...any) error
}

func scanAudit(r row) (*models.Audit, error) {
	var audit models.Audit
	if err := r.Scan(
		&audit.ID,
		&audit.AgencyID,
		&audit.FirmID,
		&audit.AuditorName,
		&audit.AuditorEmployeeID,
		&audit.AuditDate,
		&audit.Status,
		&audit.CreatedAt,
		&audit.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &audit, nil
}

func scanObservation(r row) (*models.Observation, error) {
	var obs models.Observation
	var noticeID uuid.NullUUID
	if err := r.Scan(
		&obs.ID,
		&obs.AuditID,
		&obs.Number,
		&obs.Category,
		&obs.Severity,
		&obs.Description,
		&obs.Status,
		&noticeID,
		&obs.CreatedAt,
		&obs.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if noticeID.Valid {
		obs.NoticeID = &noticeID.UUID
	}
	return &obs, nil
}

func collectObservations(rows *sql.Rows) ([]*models.Observation, error) {
	var out []*models.Observation
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		out = append(out, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate observations: %w", err)
	}
	return out, nil
}
