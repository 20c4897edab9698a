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

func (s *Postgres) IssueNotice(ctx context.Context, notice *models.ShowCauseNotice, observationIDs []uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin issue notice: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Lock every referenced observation, then verify eligibility under lock.
	// A conflicting observation aborts the transaction, so issuance is
	// all-or-nothing at the notice granularity.
	eligibility := `
		SELECT o.status, o.notice_id, a.agency_id, n.status
		FROM observations o
		JOIN audits a ON a.id = o.audit_id
		LEFT JOIN show_cause_notices n ON n.id = o.notice_id
		WHERE o.id = $1
		FOR UPDATE OF o
	`
	for _, obsID := range observationIDs {
		var (
			obsStatus  models.ObservationStatus
			heldNotice uuid.NullUUID
			agencyID   string
			heldStatus sql.NullString
		)
		err := tx.QueryRowContext(ctx, eligibility, obsID).Scan(&obsStatus, &heldNotice, &agencyID, &heldStatus)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return &ObservationConflictError{ObservationID: obsID, Reason: ConflictNotFound}
			}
			return fmt.Errorf("check observation %s: %w", obsID, err)
		}
		if agencyID != notice.AgencyID {
			return &ObservationConflictError{ObservationID: obsID, Reason: ConflictWrongAgency}
		}
		if obsStatus != models.ObservationPending {
			return &ObservationConflictError{ObservationID: obsID, Reason: ConflictNotPending}
		}
		if heldNotice.Valid && heldStatus.Valid && models.NoticeStatus(heldStatus.String).Open() {
			return &ObservationConflictError{ObservationID: obsID, Reason: ConflictAlreadyNoticed}
		}
	}

	insert := `
		INSERT INTO show_cause_notices (id, agency_id, issued_by_id, subject, details, response_due, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := tx.ExecContext(ctx, insert,
		notice.ID,
		notice.AgencyID,
		notice.IssuedByID,
		notice.Subject,
		notice.Details,
		notice.ResponseDue,
		notice.Status,
		notice.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert notice: %w", err)
	}

	link := `UPDATE observations SET notice_id = $2, updated_at = $3 WHERE id = $1`
	for _, obsID := range observationIDs {
		if _, err := tx.ExecContext(ctx, link, obsID, notice.ID, notice.CreatedAt); err != nil {
			return fmt.Errorf("link observation %s: %w", obsID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit issue notice: %w", err)
	}
	return nil
}

func (s *Postgres) GetNotice(ctx context.Context, id uuid.UUID) (*models.ShowCauseNotice, error) {
	query := `
		SELECT id, agency_id, issued_by_id, subject, details, response_due, status, created_at
		FROM show_cause_notices
		WHERE id = $1
	`
	notice, err := scanNotice(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get notice: %w", err)
	}
	return notice, nil
}

func (s *Postgres) ListNoticeObservations(ctx context.Context, noticeID uuid.UUID) ([]*models.Observation, error) {
	query := observationSelect + ` WHERE notice_id = $1 ORDER BY number`
	rows, err := s.db.QueryContext(ctx, query, noticeID)
	if err != nil {
		return nil, fmt.Errorf("list notice observations: %w", err)
	}
	defer rows.Close()
	return collectObservations(rows)
}

func (s *Postgres) AppendResponse(ctx context.Context, resp *models.ShowCauseResponse) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin append response: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var status models.NoticeStatus
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM show_cause_notices WHERE id = $1 FOR UPDATE`,
		resp.NoticeID,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, sentinel.ErrNotFound
		}
		return false, fmt.Errorf("lock notice: %w", err)
	}
	if status == models.NoticeClosed {
		return false, sentinel.ErrInvalidState
	}

	insert := `
		INSERT INTO show_cause_responses (id, notice_id, author_id, content, attachment_ids, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := tx.ExecContext(ctx, insert,
		resp.ID,
		resp.NoticeID,
		resp.AuthorID,
		resp.Content,
		pq.StringArray(resp.AttachmentIDs),
		resp.CreatedAt,
	); err != nil {
		return false, fmt.Errorf("insert response: %w", err)
	}

	first := status == models.NoticeIssued
	if first {
		if _, err := tx.ExecContext(ctx,
			`UPDATE show_cause_notices SET status = $2 WHERE id = $1`,
			resp.NoticeID, models.NoticeResponded,
		); err != nil {
			return false, fmt.Errorf("mark notice responded: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit append response: %w", err)
	}
	return first, nil
}

func (s *Postgres) ListResponses(ctx context.Context, noticeID uuid.UUID) ([]*models.ShowCauseResponse, error) {
	query := `
		SELECT id, notice_id, author_id, content, attachment_ids, created_at
		FROM show_cause_responses
		WHERE notice_id = $1
		ORDER BY created_at
	`
	rows, err := s.db.QueryContext(ctx, query, noticeID)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	defer rows.Close()

	var out []*models.ShowCauseResponse
	for rows.Next() {
		resp, err := scanResponse(rows)
		if err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		out = append(out, resp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate responses: %w", err)
	}
	return out, nil
}

func (s *Postgres) CountResponses(ctx context.Context, noticeID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM show_cause_responses WHERE notice_id = $1`,
		noticeID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count responses: %w", err)
	}
	return count, nil
}

func (s *Postgres) ResolveObservation(ctx context.Context, noticeID, observationID uuid.UUID, outcome models.ObservationStatus, now time.Time) (bool, error) {
	// Conditional claim: the WHERE clause rechecks PENDING immediately before
	// the write, so a resolution that committed first wins and this call
	// reports zero rows instead of overwriting it.
	query := `
		UPDATE observations
		SET status = $3, updated_at = $4
		WHERE id = $1 AND notice_id = $2 AND status = $5
	`
	result, err := s.db.ExecContext(ctx, query, observationID, noticeID, outcome, now, models.ObservationPending)
	if err != nil {
		return false, fmt.Errorf("resolve observation: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("resolve observation rows affected: %w", err)
	}
	if rows > 0 {
		return true, nil
	}

	// Zero rows is ambiguous: the observation may already be resolved, or it
	// may not be linked to this notice at all. Distinguish so callers report
	// not-found instead of a bogus already-resolved state.
	var linked bool
	err = s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM observations WHERE id = $1 AND notice_id = $2)`,
		observationID, noticeID,
	).Scan(&linked)
	if err != nil {
		return false, fmt.Errorf("recheck observation link: %w", err)
	}
	if !linked {
		return false, sentinel.ErrNotFound
	}
	return false, nil
}

func (s *Postgres) CloseNotice(ctx context.Context, noticeID uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin close notice: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var status models.NoticeStatus
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM show_cause_notices WHERE id = $1 FOR UPDATE`,
		noticeID,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("lock notice: %w", err)
	}
	if status == models.NoticeClosed {
		return nil
	}

	var pending int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM observations WHERE notice_id = $1 AND status = $2`,
		noticeID, models.ObservationPending,
	).Scan(&pending)
	if err != nil {
		return fmt.Errorf("count pending observations: %w", err)
	}
	if pending > 0 {
		return sentinel.ErrStillPending
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE show_cause_notices SET status = $2 WHERE id = $1`,
		noticeID, models.NoticeClosed,
	); err != nil {
		return fmt.Errorf("close notice: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit close notice: %w", err)
	}
	return nil
}

func (s *Postgres) ListDueNotices(ctx context.Context, now time.Time, limit int) ([]*models.ShowCauseNotice, error) {
	query := `
		SELECT id, agency_id, issued_by_id, subject, details, response_due, status, created_at
		FROM show_cause_notices
		WHERE status IN ($1, $2) AND response_due <= $3
		ORDER BY response_due
		LIMIT $4
	`
	rows, err := s.db.QueryContext(ctx, query, models.NoticeIssued, models.NoticeResponded, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due notices: %w", err)
	}
	defer rows.Close()

	var out []*models.ShowCauseNotice
	for rows.Next() {
		notice, err := scanNotice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notice: %w", err)
		}
		out = append(out, notice)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due notices: %w", err)
	}
	return out, nil
}

func scanNotice(r row) (*models.ShowCauseNotice, error) {
	var notice models.ShowCauseNotice
	if err := r.Scan(
		&notice.ID,
		&notice.AgencyID,
		&notice.IssuedByID,
		&notice.Subject,
		&notice.Details,
		&notice.ResponseDue,
		&notice.Status,
		&notice.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &notice, nil
}

func scanResponse(r row) (*models.ShowCauseResponse, error) {
	var resp models.ShowCauseResponse
	var attachments pq.StringArray
	if err := r.Scan(
		&resp.ID,
		&resp.NoticeID,
		&resp.AuthorID,
		&resp.Content,
		&attachments,
		&resp.CreatedAt,
	); err != nil {
		return nil, err
	}
	resp.AttachmentIDs = attachments
	return &resp, nil
}
