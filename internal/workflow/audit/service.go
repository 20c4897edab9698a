// Package audit implements the audit state machine: engagement creation,
// observation recording, and completion. The lifecycle is linear
// (IN_PROGRESS -> COMPLETED -> CLOSED) and closing happens only through
// scorecard publication in the penalty package.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"vigil/internal/assignment"
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
	CreateAudit(ctx context.Context, audit *models.Audit) error
	GetAudit(ctx context.Context, id uuid.UUID) (*models.Audit, error)
	TransitionAudit(ctx context.Context, id uuid.UUID, from, to models.AuditStatus, now time.Time) (bool, error)
	CreateObservation(ctx context.Context, obs *models.Observation) error
	ListObservationsByAudit(ctx context.Context, auditID uuid.UUID) ([]*models.Observation, error)
}

type Service struct {
	store    Store
	registry assignment.Registry
	sink     notify.Sink
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewService(store Store, registry assignment.Registry, sink notify.Sink, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{store: store, registry: registry, sink: sink, metrics: m, logger: logger}
}

// CreateParams carries the attributes of a new engagement. Auditor name and
// employee id are engagement-record free text, not account references.
type CreateParams struct {
	AgencyID          string
	FirmID            string
	AuditorName       string
	AuditorEmployeeID string
	AuditDate         time.Time
}

// Create opens an audit engagement. Only an auditor whose firm is currently
// assigned to the agency may create one.
func (s *Service) Create(ctx context.Context, p identity.Principal, params CreateParams) (*models.Audit, error) {
	if !p.IsAuditor() {
		return nil, dErrors.New(dErrors.CodeForbidden, "only auditors create audits")
	}
	if p.FirmID != params.FirmID {
		return nil, dErrors.New(dErrors.CodeForbidden, "auditor does not belong to the named firm")
	}
	if params.AgencyID == "" || params.FirmID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "agency and firm are required")
	}
	if params.AuditorName == "" || params.AuditorEmployeeID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "auditor name and employee id are required")
	}

	assigned, err := s.registry.Assigned(ctx, params.AgencyID, params.FirmID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "assignment lookup failed")
	}
	if !assigned {
		return nil, dErrors.New(dErrors.CodeForbidden, "firm is not assigned to this agency")
	}

	now := requestcontext.Now(ctx).UTC()
	audit := &models.Audit{
		ID:                uuid.New(),
		AgencyID:          params.AgencyID,
		FirmID:            params.FirmID,
		AuditorName:       params.AuditorName,
		AuditorEmployeeID: params.AuditorEmployeeID,
		AuditDate:         params.AuditDate,
		Status:            models.AuditInProgress,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.store.CreateAudit(ctx, audit); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create audit")
	}
	s.metrics.IncAuditsCreated()
	return audit, nil
}

// ObservationParams carries a new finding. Number is caller-supplied and
// unique within the audit.
type ObservationParams struct {
	AuditID     uuid.UUID
	Number      int
	Category    string
	Severity    models.Severity
	Description string
}

// RecordObservation adds a finding to an in-progress audit. Only the owning
// firm's auditor may record, and only while the audit is IN_PROGRESS.
func (s *Service) RecordObservation(ctx context.Context, p identity.Principal, params ObservationParams) (*models.Observation, error) {
	audit, err := s.getAudit(ctx, params.AuditID)
	if err != nil {
		return nil, err
	}
	if !p.IsAuditor() || p.FirmID != audit.FirmID {
		return nil, dErrors.New(dErrors.CodeForbidden, "observation must be recorded by the owning firm's auditor")
	}
	if audit.Status != models.AuditInProgress {
		return nil, dErrors.Newf(dErrors.CodeInvalidState, "audit is %s; observations require IN_PROGRESS", audit.Status)
	}
	if !params.Severity.Valid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown severity %q", params.Severity)
	}
	if params.Category == "" || params.Description == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "category and description are required")
	}

	now := requestcontext.Now(ctx).UTC()
	obs := &models.Observation{
		ID:          uuid.New(),
		AuditID:     audit.ID,
		Number:      params.Number,
		Category:    params.Category,
		Severity:    params.Severity,
		Description: params.Description,
		Status:      models.ObservationPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateObservation(ctx, obs); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Newf(dErrors.CodeValidation, "observation number %d already exists in this audit", params.Number)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record observation")
	}
	s.metrics.IncObservationsRecorded()
	return obs, nil
}

// Complete transitions the audit IN_PROGRESS -> COMPLETED, after which it
// appears in the admin review queue. Completing an already-completed audit
// is a no-op; a closed audit cannot move.
func (s *Service) Complete(ctx context.Context, p identity.Principal, auditID uuid.UUID) (*models.Audit, error) {
	audit, err := s.getAudit(ctx, auditID)
	if err != nil {
		return nil, err
	}
	if !p.IsAuditor() || p.FirmID != audit.FirmID {
		return nil, dErrors.New(dErrors.CodeForbidden, "only the owning firm's auditor completes an audit")
	}

	switch audit.Status {
	case models.AuditCompleted:
		return audit, nil
	case models.AuditClosed:
		return nil, dErrors.New(dErrors.CodeInvalidState, "audit is closed")
	}

	now := requestcontext.Now(ctx).UTC()
	moved, err := s.store.TransitionAudit(ctx, auditID, models.AuditInProgress, models.AuditCompleted, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to complete audit")
	}
	if !moved {
		// Lost a race; re-read and apply the same rules to the fresh status.
		return s.Complete(ctx, p, auditID)
	}

	audit.Status = models.AuditCompleted
	audit.UpdatedAt = now
	s.publish(ctx, notify.Event{
		Type:     notify.EventAuditCompleted,
		AgencyID: audit.AgencyID,
		EntityID: audit.ID,
		ActorID:  p.UserID,
	})
	return audit, nil
}

// Get returns one audit. Admins see everything; auditors their firm's
// audits; agency users their agency's audits.
func (s *Service) Get(ctx context.Context, p identity.Principal, auditID uuid.UUID) (*models.Audit, error) {
	audit, err := s.getAudit(ctx, auditID)
	if err != nil {
		return nil, err
	}
	if err := requireReadAccess(p, audit); err != nil {
		return nil, err
	}
	return audit, nil
}

// ListObservations returns the audit's findings, ordered by number.
func (s *Service) ListObservations(ctx context.Context, p identity.Principal, auditID uuid.UUID) ([]*models.Observation, error) {
	audit, err := s.getAudit(ctx, auditID)
	if err != nil {
		return nil, err
	}
	if err := requireReadAccess(p, audit); err != nil {
		return nil, err
	}
	observations, err := s.store.ListObservationsByAudit(ctx, auditID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list observations")
	}
	return observations, nil
}

func (s *Service) getAudit(ctx context.Context, auditID uuid.UUID) (*models.Audit, error) {
	audit, err := s.store.GetAudit(ctx, auditID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "audit not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load audit")
	}
	return audit, nil
}

func requireReadAccess(p identity.Principal, audit *models.Audit) error {
	switch {
	case p.IsAdmin():
		return nil
	case p.IsAuditor() && p.FirmID == audit.FirmID:
		return nil
	case p.IsAgencyUser() && p.AgencyID == audit.AgencyID:
		return nil
	}
	return dErrors.New(dErrors.CodeForbidden, "no access to this audit")
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
