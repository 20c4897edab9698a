package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"vigil/internal/workflow/models"
	"vigil/pkg/deadline"
	"vigil/pkg/sentinel"
)

// Memory is the in-memory store used by unit tests and local development.
// A single mutex stands in for the database's transaction isolation; every
// atomic contract method runs as one critical section.
type Memory struct {
	mu         sync.RWMutex
	audits     map[uuid.UUID]models.Audit
	obs        map[uuid.UUID]models.Observation
	obsNumbers map[uuid.UUID]map[int]uuid.UUID
	notices    map[uuid.UUID]models.ShowCauseNotice
	responses  map[uuid.UUID][]models.ShowCauseResponse
	penalties  map[uuid.UUID]models.Penalty
	scorecards map[uuid.UUID]models.AuditScorecard
}

func NewMemory() *Memory {
	return &Memory{
		audits:     make(map[uuid.UUID]models.Audit),
		obs:        make(map[uuid.UUID]models.Observation),
		obsNumbers: make(map[uuid.UUID]map[int]uuid.UUID),
		notices:    make(map[uuid.UUID]models.ShowCauseNotice),
		responses:  make(map[uuid.UUID][]models.ShowCauseResponse),
		penalties:  make(map[uuid.UUID]models.Penalty),
		scorecards: make(map[uuid.UUID]models.AuditScorecard),
	}
}

// -----------------------------------------------------------------------------
// Audits
// -----------------------------------------------------------------------------

func (s *Memory) CreateAudit(_ context.Context, audit *models.Audit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.audits[audit.ID]; ok {
		return sentinel.ErrConflict
	}
	s.audits[audit.ID] = *audit
	return nil
}

func (s *Memory) GetAudit(_ context.Context, id uuid.UUID) (*models.Audit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	audit, ok := s.audits[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &audit, nil
}

func (s *Memory) TransitionAudit(_ context.Context, id uuid.UUID, from, to models.AuditStatus, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	audit, ok := s.audits[id]
	if !ok {
		return false, sentinel.ErrNotFound
	}
	if audit.Status != from {
		return false, nil
	}
	audit.Status = to
	audit.UpdatedAt = now
	s.audits[id] = audit
	return true, nil
}

// -----------------------------------------------------------------------------
// Observations
// -----------------------------------------------------------------------------

func (s *Memory) CreateObservation(_ context.Context, obs *models.Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	numbers, ok := s.obsNumbers[obs.AuditID]
	if !ok {
		numbers = make(map[int]uuid.UUID)
		s.obsNumbers[obs.AuditID] = numbers
	}
	if _, taken := numbers[obs.Number]; taken {
		return sentinel.ErrConflict
	}
	numbers[obs.Number] = obs.ID
	s.obs[obs.ID] = *obs
	return nil
}

func (s *Memory) GetObservation(_ context.Context, id uuid.UUID) (*models.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obs, ok := s.obs[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneObservation(obs), nil
}

func (s *Memory) ListObservationsByAudit(_ context.Context, auditID uuid.UUID) ([]*models.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Observation
	for _, obs := range s.obs {
		if obs.AuditID == auditID {
			out = append(out, cloneObservation(obs))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

// -----------------------------------------------------------------------------
// Notices
// -----------------------------------------------------------------------------

func (s *Memory) IssueNotice(_ context.Context, notice *models.ShowCauseNotice, observationIDs []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// All-or-nothing: validate the whole set before touching anything.
	for _, obsID := range observationIDs {
		obs, ok := s.obs[obsID]
		if !ok {
			return &ObservationConflictError{ObservationID: obsID, Reason: ConflictNotFound}
		}
		audit, ok := s.audits[obs.AuditID]
		if !ok || audit.AgencyID != notice.AgencyID {
			return &ObservationConflictError{ObservationID: obsID, Reason: ConflictWrongAgency}
		}
		if obs.Status != models.ObservationPending {
			return &ObservationConflictError{ObservationID: obsID, Reason: ConflictNotPending}
		}
		if obs.NoticeID != nil {
			if held, ok := s.notices[*obs.NoticeID]; ok && held.Status.Open() {
				return &ObservationConflictError{ObservationID: obsID, Reason: ConflictAlreadyNoticed}
			}
		}
	}

	s.notices[notice.ID] = *notice
	for _, obsID := range observationIDs {
		obs := s.obs[obsID]
		noticeID := notice.ID
		obs.NoticeID = &noticeID
		obs.UpdatedAt = notice.CreatedAt
		s.obs[obsID] = obs
	}
	return nil
}

func (s *Memory) GetNotice(_ context.Context, id uuid.UUID) (*models.ShowCauseNotice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	notice, ok := s.notices[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &notice, nil
}

func (s *Memory) ListNoticeObservations(_ context.Context, noticeID uuid.UUID) ([]*models.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Observation
	for _, obs := range s.obs {
		if obs.NoticeID != nil && *obs.NoticeID == noticeID {
			out = append(out, cloneObservation(obs))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (s *Memory) AppendResponse(_ context.Context, resp *models.ShowCauseResponse) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	notice, ok := s.notices[resp.NoticeID]
	if !ok {
		return false, sentinel.ErrNotFound
	}
	if notice.Status == models.NoticeClosed {
		return false, sentinel.ErrInvalidState
	}
	s.responses[resp.NoticeID] = append(s.responses[resp.NoticeID], *resp)

	first := notice.Status == models.NoticeIssued
	if first {
		notice.Status = models.NoticeResponded
		s.notices[resp.NoticeID] = notice
	}
	return first, nil
}

func (s *Memory) ListResponses(_ context.Context, noticeID uuid.UUID) ([]*models.ShowCauseResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.responses[noticeID]
	out := make([]*models.ShowCauseResponse, 0, len(stored))
	for i := range stored {
		resp := stored[i]
		out = append(out, &resp)
	}
	return out, nil
}

func (s *Memory) CountResponses(_ context.Context, noticeID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.responses[noticeID]), nil
}

func (s *Memory) ResolveObservation(_ context.Context, noticeID, observationID uuid.UUID, outcome models.ObservationStatus, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obs, ok := s.obs[observationID]
	if !ok {
		return false, sentinel.ErrNotFound
	}
	if obs.NoticeID == nil || *obs.NoticeID != noticeID {
		return false, sentinel.ErrNotFound
	}
	// Recheck-before-write: a concurrent resolution (explicit or sweep) that
	// committed first wins and this claim reports zero rows.
	if obs.Status != models.ObservationPending {
		return false, nil
	}
	obs.Status = outcome
	obs.UpdatedAt = now
	s.obs[observationID] = obs
	return true, nil
}

func (s *Memory) CloseNotice(_ context.Context, noticeID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	notice, ok := s.notices[noticeID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if notice.Status == models.NoticeClosed {
		return nil
	}
	for _, obs := range s.obs {
		if obs.NoticeID != nil && *obs.NoticeID == noticeID && obs.Status == models.ObservationPending {
			return sentinel.ErrStillPending
		}
	}
	notice.Status = models.NoticeClosed
	s.notices[noticeID] = notice
	return nil
}

func (s *Memory) ListDueNotices(_ context.Context, now time.Time, limit int) ([]*models.ShowCauseNotice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.ShowCauseNotice
	for _, notice := range s.notices {
		if notice.Status.Open() && deadline.Passed(notice.ResponseDue, now) {
			n := notice
			out = append(out, &n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResponseDue.Before(out[j].ResponseDue) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Penalties and scorecards
// -----------------------------------------------------------------------------

func (s *Memory) UpsertPenalty(_ context.Context, penalty *models.Penalty) (*models.Penalty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.penalties[penalty.ObservationID]; ok {
		existing.AmountMinor = penalty.AmountMinor
		existing.Reason = penalty.Reason
		existing.DeductionMonth = penalty.DeductionMonth
		existing.Status = penalty.Status
		existing.UpdatedAt = penalty.UpdatedAt
		s.penalties[penalty.ObservationID] = existing
		return &existing, nil
	}
	s.penalties[penalty.ObservationID] = *penalty
	out := *penalty
	return &out, nil
}

func (s *Memory) GetPenaltyByObservation(_ context.Context, observationID uuid.UUID) (*models.Penalty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	penalty, ok := s.penalties[observationID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &penalty, nil
}

func (s *Memory) PublishScorecard(_ context.Context, card *models.AuditScorecard) (*models.AuditScorecard, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	audit, ok := s.audits[card.AuditID]
	if !ok {
		return nil, false, sentinel.ErrNotFound
	}

	if existing, ok := s.scorecards[card.AuditID]; ok {
		existing.AuditPeriod = card.AuditPeriod
		existing.AuditScore = card.AuditScore
		existing.AuditGrade = card.AuditGrade
		existing.AuditCategory = card.AuditCategory
		existing.FinalObservation = card.FinalObservation
		existing.Justification = card.Justification
		existing.UpdatedAt = card.UpdatedAt
		s.scorecards[card.AuditID] = existing
		return &existing, false, nil
	}

	s.scorecards[card.AuditID] = *card
	audit.Status = models.AuditClosed
	audit.UpdatedAt = card.CreatedAt
	s.audits[card.AuditID] = audit
	out := *card
	return &out, true, nil
}

func (s *Memory) GetScorecardByAudit(_ context.Context, auditID uuid.UUID) (*models.AuditScorecard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	card, ok := s.scorecards[auditID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &card, nil
}

func cloneObservation(obs models.Observation) *models.Observation {
	out := obs
	if obs.NoticeID != nil {
		noticeID := *obs.NoticeID
		out.NoticeID = &noticeID
	}
	return &out
}
