// Package notice implements the show-cause notice process: issuance over a
// set of pending observations, agency responses, per-observation resolution,
// and closure. The deadline sweep that auto-accepts overdue observations
// lives in the sweeper package; both sides share the store's conditional
// claim so whichever commits first wins.
package notice

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"vigil/internal/identity"
	"vigil/internal/notify"
	"vigil/internal/workflow/metrics"
	"vigil/internal/workflow/models"
	"vigil/internal/workflow/store"
	"vigil/pkg/deadline"
	dErrors "vigil/pkg/domain-errors"
	"vigil/pkg/requestcontext"
	"vigil/pkg/sentinel"
)

// Store is the persistence subset this service needs.
type Store interface {
	IssueNotice(ctx context.Context, notice *models.ShowCauseNotice, observationIDs []uuid.UUID) error
	GetNotice(ctx context.Context, id uuid.UUID) (*models.ShowCauseNotice, error)
	ListNoticeObservations(ctx context.Context, noticeID uuid.UUID) ([]*models.Observation, error)
	AppendResponse(ctx context.Context, resp *models.ShowCauseResponse) (first bool, err error)
	ListResponses(ctx context.Context, noticeID uuid.UUID) ([]*models.ShowCauseResponse, error)
	CountResponses(ctx context.Context, noticeID uuid.UUID) (int, error)
	ResolveObservation(ctx context.Context, noticeID, observationID uuid.UUID, outcome models.ObservationStatus, now time.Time) (claimed bool, err error)
	CloseNotice(ctx context.Context, noticeID uuid.UUID) error
}

type Service struct {
	store   Store
	sink    notify.Sink
	metrics *metrics.Metrics
	logger  *slog.Logger
	bulkPar int
}

// NewService builds the notice service. bulkParallelism bounds how many bulk
// items are processed concurrently; values below 1 mean sequential.
func NewService(st Store, sink notify.Sink, m *metrics.Metrics, logger *slog.Logger, bulkParallelism int) *Service {
	if bulkParallelism < 1 {
		bulkParallelism = 1
	}
	return &Service{store: st, sink: sink, metrics: m, logger: logger, bulkPar: bulkParallelism}
}

// IssueParams describes one notice over a set of observations.
type IssueParams struct {
	AgencyID       string
	ObservationIDs []uuid.UUID
	Subject        string
	Details        string
	ResponseDue    time.Time
}

// Issue creates a notice over the referenced observations. All-or-nothing:
// one ineligible observation fails the call and nothing is linked. The
// observations stay PENDING; their sub-state resolves only at response or
// sweep time.
func (s *Service) Issue(ctx context.Context, p identity.Principal, params IssueParams) (*models.ShowCauseNotice, error) {
	if !p.IsAdmin() {
		return nil, dErrors.New(dErrors.CodeForbidden, "only admins issue notices")
	}
	if err := validateIssueParams(params); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx).UTC()
	n := &models.ShowCauseNotice{
		ID:          uuid.New(),
		AgencyID:    params.AgencyID,
		IssuedByID:  p.UserID,
		Subject:     params.Subject,
		Details:     params.Details,
		ResponseDue: params.ResponseDue,
		Status:      models.NoticeIssued,
		CreatedAt:   now,
	}
	if err := s.store.IssueNotice(ctx, n, params.ObservationIDs); err != nil {
		var conflict *store.ObservationConflictError
		if errors.As(err, &conflict) {
			if conflict.Reason == store.ConflictNotFound {
				return nil, dErrors.Newf(dErrors.CodeNotFound, "observation %s does not exist", conflict.ObservationID)
			}
			return nil, dErrors.Wrap(err, dErrors.CodeConflictingObservation, conflict.Error())
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue notice")
	}

	s.metrics.IncNoticesIssued()
	s.publish(ctx, notify.Event{
		Type:     notify.EventNoticeIssued,
		AgencyID: n.AgencyID,
		EntityID: n.ID,
		ActorID:  p.UserID,
		Detail:   n.Subject,
	})
	return n, nil
}

func validateIssueParams(params IssueParams) error {
	if params.AgencyID == "" {
		return dErrors.New(dErrors.CodeValidation, "agency is required")
	}
	if len(params.ObservationIDs) == 0 {
		return dErrors.New(dErrors.CodeValidation, "at least one observation is required")
	}
	if params.Subject == "" {
		return dErrors.New(dErrors.CodeValidation, "subject is required")
	}
	if params.ResponseDue.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "response due date is required")
	}
	seen := make(map[uuid.UUID]struct{}, len(params.ObservationIDs))
	for _, id := range params.ObservationIDs {
		if _, dup := seen[id]; dup {
			return dErrors.Newf(dErrors.CodeValidation, "observation %s referenced twice", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// SubmitResponse appends an agency reply. The first response flips the
// notice ISSUED -> RESPONDED; later ones append without a status change.
// A response after the deadline is still accepted, but it does not undo an
// auto-acceptance the sweep has already committed.
func (s *Service) SubmitResponse(ctx context.Context, p identity.Principal, noticeID uuid.UUID, content string, attachmentIDs []string) (*models.ShowCauseResponse, error) {
	n, err := s.getNotice(ctx, noticeID)
	if err != nil {
		return nil, err
	}
	if !p.IsAgencyUser() || p.AgencyID != n.AgencyID {
		return nil, dErrors.New(dErrors.CodeForbidden, "only the addressed agency responds to a notice")
	}
	if content == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "response content is required")
	}

	resp := &models.ShowCauseResponse{
		ID:            uuid.New(),
		NoticeID:      noticeID,
		AuthorID:      p.UserID,
		Content:       content,
		AttachmentIDs: attachmentIDs,
		CreatedAt:     requestcontext.Now(ctx).UTC(),
	}
	if _, err := s.store.AppendResponse(ctx, resp); err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			return nil, dErrors.New(dErrors.CodeInvalidState, "notice is closed")
		}
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "notice not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to submit response")
	}
	s.metrics.IncResponsesSubmitted()
	return resp, nil
}

// ResolveObservation records the admin's per-observation outcome after
// reviewing the agency's response. One notice can bundle observations with
// differing agency positions, so this is per observation, not per notice.
func (s *Service) ResolveObservation(ctx context.Context, p identity.Principal, noticeID, observationID uuid.UUID, outcome models.ObservationStatus) error {
	if !p.IsAdmin() {
		return dErrors.New(dErrors.CodeForbidden, "only admins resolve observations")
	}
	if !outcome.ResolutionOutcome() {
		return dErrors.Newf(dErrors.CodeValidation, "outcome must be %s or %s", models.ObservationAgencyAccepted, models.ObservationAgencyDisputed)
	}
	if _, err := s.getNotice(ctx, noticeID); err != nil {
		return err
	}

	count, err := s.store.CountResponses(ctx, noticeID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to count responses")
	}
	if count == 0 {
		return dErrors.New(dErrors.CodeInvalidState, "notice has no response to review")
	}

	now := requestcontext.Now(ctx).UTC()
	claimed, err := s.store.ResolveObservation(ctx, noticeID, observationID, outcome, now)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "observation is not part of this notice")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve observation")
	}
	if !claimed {
		return dErrors.New(dErrors.CodeInvalidState, "observation is already resolved")
	}
	return nil
}

// Close transitions the notice to CLOSED once every linked observation has
// left PENDING. Closing has no effect on penalties or scorecards.
func (s *Service) Close(ctx context.Context, p identity.Principal, noticeID uuid.UUID) error {
	if !p.IsAdmin() {
		return dErrors.New(dErrors.CodeForbidden, "only admins close notices")
	}
	n, err := s.getNotice(ctx, noticeID)
	if err != nil {
		return err
	}

	if err := s.store.CloseNotice(ctx, noticeID); err != nil {
		if errors.Is(err, sentinel.ErrStillPending) {
			return dErrors.New(dErrors.CodeNoticeStillPending, "notice has unresolved observations")
		}
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "notice not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to close notice")
	}
	s.publish(ctx, notify.Event{
		Type:     notify.EventNoticeClosed,
		AgencyID: n.AgencyID,
		EntityID: n.ID,
		ActorID:  p.UserID,
	})
	return nil
}

// Detail is the read surface for one notice. Agencies see status and
// deadline; admins additionally rely on the per-observation states.
type Detail struct {
	Notice       *models.ShowCauseNotice     `json:"notice"`
	Observations []*models.Observation       `json:"observations"`
	Responses    []*models.ShowCauseResponse `json:"responses"`
	Overdue      bool                        `json:"overdue"`
}

// Get returns the notice with its observations, responses, and overdue flag.
func (s *Service) Get(ctx context.Context, p identity.Principal, noticeID uuid.UUID) (*Detail, error) {
	n, err := s.getNotice(ctx, noticeID)
	if err != nil {
		return nil, err
	}
	if !p.IsAdmin() && !(p.IsAgencyUser() && p.AgencyID == n.AgencyID) {
		return nil, dErrors.New(dErrors.CodeForbidden, "no access to this notice")
	}

	observations, err := s.store.ListNoticeObservations(ctx, noticeID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list notice observations")
	}
	responses, err := s.store.ListResponses(ctx, noticeID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list responses")
	}

	return &Detail{
		Notice:       n,
		Observations: observations,
		Responses:    responses,
		Overdue:      n.Status.Open() && deadline.Passed(n.ResponseDue, requestcontext.Now(ctx)),
	}, nil
}

func (s *Service) getNotice(ctx context.Context, noticeID uuid.UUID) (*models.ShowCauseNotice, error) {
	n, err := s.store.GetNotice(ctx, noticeID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "notice not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load notice")
	}
	return n, nil
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
