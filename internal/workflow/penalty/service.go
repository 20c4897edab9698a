// Package penalty finalizes the workflow: monetary penalties attached to
// resolved observations, and the scorecard whose first publication closes
// the audit.
package penalty

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"vigil/internal/identity"
	"vigil/internal/notify"
	"vigil/internal/workflow/metrics"
	"vigil/internal/workflow/models"
	dErrors "vigil/pkg/domain-errors"
	"vigil/pkg/requestcontext"
	"vigil/pkg/sentinel"
)

// Store is the persistence subset this service needs.
type Store interface {
	GetAudit(ctx context.Context, id uuid.UUID) (*models.Audit, error)
	GetObservation(ctx context.Context, id uuid.UUID) (*models.Observation, error)
	ListObservationsByAudit(ctx context.Context, auditID uuid.UUID) ([]*models.Observation, error)
	UpsertPenalty(ctx context.Context, penalty *models.Penalty) (*models.Penalty, error)
	GetPenaltyByObservation(ctx context.Context, observationID uuid.UUID) (*models.Penalty, error)
	PublishScorecard(ctx context.Context, card *models.AuditScorecard) (result *models.AuditScorecard, created bool, err error)
	GetScorecardByAudit(ctx context.Context, auditID uuid.UUID) (*models.AuditScorecard, error)
}

type Service struct {
	store   Store
	sink    notify.Sink
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewService(st Store, sink notify.Sink, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{store: st, sink: sink, metrics: m, logger: logger}
}

// PenaltyParams describes a penalty assignment.
type PenaltyParams struct {
	ObservationID  uuid.UUID
	AmountMinor    int64
	Reason         string
	DeductionMonth string
	Status         models.PenaltyStatus
}

// AssignPenalty attaches a penalty to a resolved observation. Repeat
// assignments against the same observation update the existing record; the
// amount at deduction time is whatever the last assignment set.
func (s *Service) AssignPenalty(ctx context.Context, p identity.Principal, params PenaltyParams) (*models.Penalty, error) {
	if !p.IsAdmin() {
		return nil, dErrors.New(dErrors.CodeForbidden, "only admins assign penalties")
	}
	if params.AmountMinor <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "penalty amount must be positive")
	}
	if params.Reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "penalty reason is required")
	}
	if params.Status == "" {
		params.Status = models.PenaltyProposed
	}
	if params.Status != models.PenaltyProposed && params.Status != models.PenaltyApplied {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown penalty status %q", params.Status)
	}

	obs, err := s.store.GetObservation(ctx, params.ObservationID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "observation not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load observation")
	}
	if !obs.Status.Resolved() {
		return nil, dErrors.New(dErrors.CodeInvalidState, "observation is still pending; penalties attach to resolved observations only")
	}

	now := requestcontext.Now(ctx).UTC()
	penalty, err := s.store.UpsertPenalty(ctx, &models.Penalty{
		ID:             uuid.New(),
		ObservationID:  params.ObservationID,
		AmountMinor:    params.AmountMinor,
		Reason:         params.Reason,
		DeductionMonth: params.DeductionMonth,
		Status:         params.Status,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to assign penalty")
	}
	return penalty, nil
}

// GetPenalty returns the penalty attached to an observation, if any. Access
// follows the scorecard rules: agency users see their own agency's
// penalties, auditors their own firm's, admins everything.
func (s *Service) GetPenalty(ctx context.Context, p identity.Principal, observationID uuid.UUID) (*models.Penalty, error) {
	obs, err := s.store.GetObservation(ctx, observationID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "observation not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load observation")
	}
	audit, err := s.store.GetAudit(ctx, obs.AuditID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load audit")
	}
	switch {
	case p.IsAdmin():
	case p.IsAuditor() && p.FirmID == audit.FirmID:
	case p.IsAgencyUser() && p.AgencyID == audit.AgencyID:
	default:
		return nil, dErrors.New(dErrors.CodeForbidden, "no access to this observation")
	}

	penalty, err := s.store.GetPenaltyByObservation(ctx, observationID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no penalty for this observation")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load penalty")
	}
	return penalty, nil
}

// ScorecardParams describes a scorecard publication.
type ScorecardParams struct {
	AuditID          uuid.UUID
	AuditPeriod      string
	AuditScore       float64
	AuditGrade       string
	AuditCategory    string
	FinalObservation string
	Justification    string
}

// PublishScorecard creates or revises the audit's scorecard. First
// publication closes the audit; revisions leave audit status alone.
// Unresolved observations do not block publication, only a warning is
// logged, since scoring judgement stays with the admin.
func (s *Service) PublishScorecard(ctx context.Context, p identity.Principal, params ScorecardParams) (*models.AuditScorecard, error) {
	if !p.IsAdmin() {
		return nil, dErrors.New(dErrors.CodeForbidden, "only admins publish scorecards")
	}
	if params.AuditPeriod == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "audit period is required")
	}
	if params.AuditScore < 0 || params.AuditScore > 100 {
		return nil, dErrors.New(dErrors.CodeValidation, "audit score must be between 0 and 100")
	}
	if params.AuditGrade == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "audit grade is required")
	}

	audit, err := s.store.GetAudit(ctx, params.AuditID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "audit not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load audit")
	}

	if pending := s.countPending(ctx, audit.ID); pending > 0 && s.logger != nil {
		s.logger.WarnContext(ctx, "publishing scorecard over unresolved observations",
			"audit_id", audit.ID,
			"pending_observations", pending,
		)
	}

	now := requestcontext.Now(ctx).UTC()
	card, created, err := s.store.PublishScorecard(ctx, &models.AuditScorecard{
		ID:               uuid.New(),
		AuditID:          params.AuditID,
		AuditPeriod:      params.AuditPeriod,
		AuditScore:       params.AuditScore,
		AuditGrade:       params.AuditGrade,
		AuditCategory:    params.AuditCategory,
		FinalObservation: params.FinalObservation,
		Justification:    params.Justification,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "audit not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to publish scorecard")
	}

	if created {
		s.metrics.IncScorecardsPublished()
		s.publish(ctx, notify.Event{
			Type:     notify.EventScorecardPublished,
			AgencyID: audit.AgencyID,
			EntityID: card.ID,
			ActorID:  p.UserID,
			Detail:   card.AuditGrade,
		})
	}
	return card, nil
}

// GetScorecard returns the audit's scorecard. Agency users see their own
// agency's cards; auditors their own firm's; admins everything.
func (s *Service) GetScorecard(ctx context.Context, p identity.Principal, auditID uuid.UUID) (*models.AuditScorecard, error) {
	audit, err := s.store.GetAudit(ctx, auditID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "audit not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load audit")
	}
	switch {
	case p.IsAdmin():
	case p.IsAuditor() && p.FirmID == audit.FirmID:
	case p.IsAgencyUser() && p.AgencyID == audit.AgencyID:
	default:
		return nil, dErrors.New(dErrors.CodeForbidden, "no access to this audit")
	}

	card, err := s.store.GetScorecardByAudit(ctx, auditID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no scorecard for this audit")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load scorecard")
	}
	return card, nil
}

func (s *Service) countPending(ctx context.Context, auditID uuid.UUID) int {
	observations, err := s.store.ListObservationsByAudit(ctx, auditID)
	if err != nil {
		return 0
	}
	pending := 0
	for _, o := range observations {
		if !o.Status.Resolved() {
			pending++
		}
	}
	return pending
}

func (s *Service) publish(ctx context.Context, event notify.Event) {
	if s.sink == nil {
		return
	}
	event.ID = uuid.New()
	event.OccurredAt = requestcontext.Now(ctx).UTC()
	if err := s.sink.Publish(ctx, event); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "notification publish failed",
			"event_type", event.Type,
			"entity_id", event.EntityID,
			"error", err,
		)
	}
}
