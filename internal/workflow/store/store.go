// Package store persists the workflow entities. Two implementations exist:
// an in-memory store for unit tests and a PostgreSQL store for production.
//
// Methods that implement a state-machine transition are atomic: the
// precondition check and the write happen inside one transaction (or one
// critical section in memory), so an admin action and a concurrent deadline
// sweep can never both win the same observation. Stores are pure I/O plus
// these atomicity guarantees; capability checks and orchestration belong to
// the service layer.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"vigil/internal/workflow/models"
)

// ConflictReason says why an observation was ineligible for notice issuance.
type ConflictReason string

const (
	ConflictNotFound       ConflictReason = "observation does not exist"
	ConflictWrongAgency    ConflictReason = "observation belongs to a different agency's audit"
	ConflictNotPending     ConflictReason = "observation is no longer pending"
	ConflictAlreadyNoticed ConflictReason = "observation is already linked to an open notice"
)

// ObservationConflictError reports the first ineligible observation found
// while issuing a notice. Issuance is all-or-nothing, so one conflict fails
// the whole set with no side effects.
type ObservationConflictError struct {
	ObservationID uuid.UUID
	Reason        ConflictReason
}

func (e *ObservationConflictError) Error() string {
	return fmt.Sprintf("observation %s: %s", e.ObservationID, e.Reason)
}

// Store is the full persistence contract. Services depend on the narrow
// subset they use; Memory and Postgres implement everything.
type Store interface {
	AuditStore
	ObservationStore
	NoticeStore
	PenaltyStore
	ScorecardStore
}

type AuditStore interface {
	CreateAudit(ctx context.Context, audit *models.Audit) error
	GetAudit(ctx context.Context, id uuid.UUID) (*models.Audit, error)
	// TransitionAudit conditionally moves an audit from one status to
	// another. Zero rows affected (false, nil) means the audit was not in
	// the expected status; callers decide whether that is an error.
	TransitionAudit(ctx context.Context, id uuid.UUID, from, to models.AuditStatus, now time.Time) (bool, error)
}

type ObservationStore interface {
	// CreateObservation returns sentinel.ErrConflict when the (audit, number)
	// pair already exists.
	CreateObservation(ctx context.Context, obs *models.Observation) error
	GetObservation(ctx context.Context, id uuid.UUID) (*models.Observation, error)
	ListObservationsByAudit(ctx context.Context, auditID uuid.UUID) ([]*models.Observation, error)
}

type NoticeStore interface {
	// IssueNotice creates the notice and links every referenced observation
	// in one transaction. Eligibility (same agency, PENDING, not held by an
	// open notice) is re-checked under lock; the first violation aborts the
	// whole call with *ObservationConflictError and no side effects.
	IssueNotice(ctx context.Context, notice *models.ShowCauseNotice, observationIDs []uuid.UUID) error
	GetNotice(ctx context.Context, id uuid.UUID) (*models.ShowCauseNotice, error)
	ListNoticeObservations(ctx context.Context, noticeID uuid.UUID) ([]*models.Observation, error)
	// AppendResponse inserts the response and, if this is the first one,
	// flips the notice ISSUED -> RESPONDED in the same transaction. Returns
	// sentinel.ErrInvalidState when the notice is already closed.
	AppendResponse(ctx context.Context, resp *models.ShowCauseResponse) (first bool, err error)
	ListResponses(ctx context.Context, noticeID uuid.UUID) ([]*models.ShowCauseResponse, error)
	CountResponses(ctx context.Context, noticeID uuid.UUID) (int, error)
	// ResolveObservation claims a pending observation linked to the notice
	// and sets its final status. Zero rows affected (false, nil) means the
	// observation was already resolved; callers treat that per their own
	// rules (the sweep skips, an admin gets an invalid-state error).
	ResolveObservation(ctx context.Context, noticeID, observationID uuid.UUID, outcome models.ObservationStatus, now time.Time) (claimed bool, err error)
	// CloseNotice transitions the notice to CLOSED. Returns
	// sentinel.ErrStillPending while any linked observation is PENDING.
	// Closing an already-closed notice is a no-op.
	CloseNotice(ctx context.Context, noticeID uuid.UUID) error
	// ListDueNotices returns ISSUED or RESPONDED notices whose response
	// deadline has passed as of now, oldest deadline first, capped at limit.
	ListDueNotices(ctx context.Context, now time.Time, limit int) ([]*models.ShowCauseNotice, error)
}

type PenaltyStore interface {
	// UpsertPenalty inserts or, keyed by observation, updates in place.
	UpsertPenalty(ctx context.Context, penalty *models.Penalty) (*models.Penalty, error)
	GetPenaltyByObservation(ctx context.Context, observationID uuid.UUID) (*models.Penalty, error)
}

type ScorecardStore interface {
	// PublishScorecard creates or updates the audit's scorecard. Creation
	// also sets the audit CLOSED inside the same transaction; updates leave
	// the audit status untouched.
	PublishScorecard(ctx context.Context, card *models.AuditScorecard) (result *models.AuditScorecard, created bool, err error)
	GetScorecardByAudit(ctx context.Context, auditID uuid.UUID) (*models.AuditScorecard, error)
}
