package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"vigil/internal/workflow/models"
	"vigil/pkg/sentinel"
)

func (s *Postgres) UpsertPenalty(ctx context.Context, penalty *models.Penalty) (*models.Penalty, error) {
	query := `
		INSERT INTO penalties (id, observation_id, amount_minor, reason, deduction_month, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (observation_id) DO UPDATE SET
			amount_minor = EXCLUDED.amount_minor,
			reason = EXCLUDED.reason,
			deduction_month = EXCLUDED.deduction_month,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
		RETURNING id, observation_id, amount_minor, reason, deduction_month, status, created_at, updated_at
	`
	out, err := scanPenalty(s.db.QueryRowContext(ctx, query,
		penalty.ID,
		penalty.ObservationID,
		penalty.AmountMinor,
		penalty.Reason,
		penalty.DeductionMonth,
		penalty.Status,
		penalty.CreatedAt,
		penalty.UpdatedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("upsert penalty: %w", err)
	}
	return out, nil
}

func (s *Postgres) GetPenaltyByObservation(ctx context.Context, observationID uuid.UUID) (*models.Penalty, error) {
	query := `
		SELECT id, observation_id, amount_minor, reason, deduction_month, status, created_at, updated_at
		FROM penalties
		WHERE observation_id = $1
	`
	penalty, err := scanPenalty(s.db.QueryRowContext(ctx, query, observationID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get penalty: %w", err)
	}
	return penalty, nil
}

func (s *Postgres) PublishScorecard(ctx context.Context, card *models.AuditScorecard) (*models.AuditScorecard, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin publish scorecard: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// xmax = 0 distinguishes a fresh insert from a conflict update, so one
	// round trip tells us whether this publication closes the audit.
	query := `
		INSERT INTO audit_scorecards (id, audit_id, audit_period, audit_score, audit_grade, audit_category, final_observation, justification, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (audit_id) DO UPDATE SET
			audit_period = EXCLUDED.audit_period,
			audit_score = EXCLUDED.audit_score,
			audit_grade = EXCLUDED.audit_grade,
			audit_category = EXCLUDED.audit_category,
			final_observation = EXCLUDED.final_observation,
			justification = EXCLUDED.justification,
			updated_at = EXCLUDED.updated_at
		RETURNING id, audit_id, audit_period, audit_score, audit_grade, audit_category, final_observation, justification, created_at, updated_at, (xmax = 0)
	`
	var out models.AuditScorecard
	var created bool
	err = tx.QueryRowContext(ctx, query,
		card.ID,
		card.AuditID,
		card.AuditPeriod,
		card.AuditScore,
		card.AuditGrade,
		card.AuditCategory,
		card.FinalObservation,
		card.Justification,
		card.CreatedAt,
		card.UpdatedAt,
	).Scan(
		&out.ID,
		&out.AuditID,
		&out.AuditPeriod,
		&out.AuditScore,
		&out.AuditGrade,
		&out.AuditCategory,
		&out.FinalObservation,
		&out.Justification,
		&out.CreatedAt,
		&out.UpdatedAt,
		&created,
	)
	if err != nil {
		return nil, false, fmt.Errorf("upsert scorecard: %w", err)
	}

	if created {
		result, err := tx.ExecContext(ctx,
			`UPDATE audits SET status = $2, updated_at = $3 WHERE id = $1`,
			card.AuditID, models.AuditClosed, card.CreatedAt,
		)
		if err != nil {
			return nil, false, fmt.Errorf("close audit: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return nil, false, fmt.Errorf("close audit rows affected: %w", err)
		}
		if rows == 0 {
			return nil, false, sentinel.ErrNotFound
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit publish scorecard: %w", err)
	}
	return &out, created, nil
}

func (s *Postgres) GetScorecardByAudit(ctx context.Context, auditID uuid.UUID) (*models.AuditScorecard, error) {
	query := `
		SELECT id, audit_id, audit_period, audit_score, audit_grade, audit_category, final_observation, justification, created_at, updated_at
		FROM audit_scorecards
		WHERE audit_id = $1
	`
	var card models.AuditScorecard
	err := s.db.QueryRowContext(ctx, query, auditID).Scan(
		&card.ID,
		&card.AuditID,
		&card.AuditPeriod,
		&card.AuditScore,
		&card.AuditGrade,
		&card.AuditCategory,
		&card.FinalObservation,
		&card.Justification,
		&card.CreatedAt,
		&card.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get scorecard: %w", err)
	}
	return &card, nil
}

func scanPenalty(r row) (*models.Penalty, error) {
	var penalty models.Penalty
	if err := r.Scan(
		&penalty.ID,
		&penalty.ObservationID,
		&penalty.AmountMinor,
		&penalty.Reason,
		&penalty.DeductionMonth,
		&penalty.Status,
		&penalty.CreatedAt,
		&penalty.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &penalty, nil
}
