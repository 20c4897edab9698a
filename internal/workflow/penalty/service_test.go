package penalty

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"vigil/internal/identity"
	"vigil/internal/notify"
	"vigil/internal/workflow/models"
	"vigil/internal/workflow/store"
	dErrors "vigil/pkg/domain-errors"
)

type PenaltyServiceSuite struct {
	suite.Suite
	store   *store.Memory
	sink    *notify.MemorySink
	service *Service
	ctx     context.Context

	admin   identity.Principal
	auditor identity.Principal
	agency  identity.Principal
}

func TestPenaltyServiceSuite(t *testing.T) {
	suite.Run(t, new(PenaltyServiceSuite))
}

func (s *PenaltyServiceSuite) SetupTest() {
	s.store = store.NewMemory()
	s.sink = notify.NewMemorySink()
	s.service = NewService(s.store, s.sink, nil, nil)
	s.ctx = context.Background()

	s.admin = identity.Principal{UserID: "u-admin", Role: identity.RoleAdmin}
	s.auditor = identity.Principal{UserID: "u-auditor", Role: identity.RoleAuditor, FirmID: "firm-1"}
	s.agency = identity.Principal{UserID: "u-agency", Role: identity.RoleAgencyUser, AgencyID: "agency-1"}
}

// seedAudit creates a completed audit with one observation in the given
// acceptance state.
func (s *PenaltyServiceSuite) seedAudit(obsStatus models.ObservationStatus) (*models.Audit, *models.Observation) {
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	audit := &models.Audit{
		ID:       uuid.New(),
		AgencyID: "agency-1", FirmID: "firm-1",
		Status:    models.AuditCompleted,
		CreatedAt: now, UpdatedAt: now,
	}
	s.Require().NoError(s.store.CreateAudit(s.ctx, audit))

	obs := &models.Observation{
		ID: uuid.New(), AuditID: audit.ID, Number: 1,
		Severity: models.SeverityHigh, Status: obsStatus,
		CreatedAt: now, UpdatedAt: now,
	}
	s.Require().NoError(s.store.CreateObservation(s.ctx, obs))
	return audit, obs
}

func (s *PenaltyServiceSuite) penaltyParams(obsID uuid.UUID) PenaltyParams {
	return PenaltyParams{
		ObservationID:  obsID,
		AmountMinor:    250_000,
		Reason:         "repeat billing lapse",
		DeductionMonth: "2026-05",
	}
}

func (s *PenaltyServiceSuite) TestAssignPenalty() {
	s.Run("attaches to a resolved observation", func() {
		_, obs := s.seedAudit(models.ObservationAutoAccepted)
		p, err := s.service.AssignPenalty(s.ctx, s.admin, s.penaltyParams(obs.ID))
		s.Require().NoError(err)
		s.Equal(models.PenaltyProposed, p.Status)
		s.EqualValues(250_000, p.AmountMinor)
	})

	s.Run("pending observation is invalid state", func() {
		_, obs := s.seedAudit(models.ObservationPending)
		_, err := s.service.AssignPenalty(s.ctx, s.admin, s.penaltyParams(obs.ID))
		s.True(dErrors.Is(err, dErrors.CodeInvalidState))
	})

	s.Run("disputed observation may still be penalized", func() {
		_, obs := s.seedAudit(models.ObservationAgencyDisputed)
		_, err := s.service.AssignPenalty(s.ctx, s.admin, s.penaltyParams(obs.ID))
		s.NoError(err)
	})

	s.Run("repeat assignment updates in place", func() {
		_, obs := s.seedAudit(models.ObservationAgencyAccepted)
		first, err := s.service.AssignPenalty(s.ctx, s.admin, s.penaltyParams(obs.ID))
		s.Require().NoError(err)

		params := s.penaltyParams(obs.ID)
		params.AmountMinor = 400_000
		params.Status = models.PenaltyApplied
		second, err := s.service.AssignPenalty(s.ctx, s.admin, params)
		s.Require().NoError(err)

		s.Equal(first.ID, second.ID, "same penalty record, revised")
		s.EqualValues(400_000, second.AmountMinor)
		s.Equal(models.PenaltyApplied, second.Status)
	})

	s.Run("auditor cannot assign", func() {
		_, obs := s.seedAudit(models.ObservationAutoAccepted)
		_, err := s.service.AssignPenalty(s.ctx, s.auditor, s.penaltyParams(obs.ID))
		s.True(dErrors.Is(err, dErrors.CodeForbidden))
	})

	s.Run("non-positive amount fails validation", func() {
		_, obs := s.seedAudit(models.ObservationAutoAccepted)
		params := s.penaltyParams(obs.ID)
		params.AmountMinor = 0
		_, err := s.service.AssignPenalty(s.ctx, s.admin, params)
		s.True(dErrors.Is(err, dErrors.CodeValidation))
	})

	s.Run("unknown observation is not found", func() {
		_, err := s.service.AssignPenalty(s.ctx, s.admin, s.penaltyParams(uuid.New()))
		s.True(dErrors.Is(err, dErrors.CodeNotFound))
	})
}

func (s *PenaltyServiceSuite) TestGetPenalty() {
	_, obs := s.seedAudit(models.ObservationAgencyAccepted)
	_, err := s.service.AssignPenalty(s.ctx, s.admin, s.penaltyParams(obs.ID))
	s.Require().NoError(err)

	s.Run("owning agency reads its penalty", func() {
		p, err := s.service.GetPenalty(s.ctx, s.agency, obs.ID)
		s.Require().NoError(err)
		s.EqualValues(250_000, p.AmountMinor)
	})

	s.Run("owning firm's auditor reads it too", func() {
		_, err := s.service.GetPenalty(s.ctx, s.auditor, obs.ID)
		s.NoError(err)
	})

	s.Run("another agency is forbidden", func() {
		other := identity.Principal{UserID: "u9", Role: identity.RoleAgencyUser, AgencyID: "agency-2"}
		_, err := s.service.GetPenalty(s.ctx, other, obs.ID)
		s.True(dErrors.Is(err, dErrors.CodeForbidden))
	})

	s.Run("unpenalized observation is not found", func() {
		_, bare := s.seedAudit(models.ObservationAgencyAccepted)
		_, err := s.service.GetPenalty(s.ctx, s.admin, bare.ID)
		s.True(dErrors.Is(err, dErrors.CodeNotFound))
	})

	s.Run("unknown observation is not found", func() {
		_, err := s.service.GetPenalty(s.ctx, s.admin, uuid.New())
		s.True(dErrors.Is(err, dErrors.CodeNotFound))
	})
}

func (s *PenaltyServiceSuite) scorecardParams(auditID uuid.UUID) ScorecardParams {
	return ScorecardParams{
		AuditID:       auditID,
		AuditPeriod:   "2026-Q1",
		AuditScore:    72.5,
		AuditGrade:    "B",
		AuditCategory: "routine",
		Justification: "two medium findings, both accepted",
	}
}

func (s *PenaltyServiceSuite) TestPublishScorecard() {
	s.Run("first publication closes the audit", func() {
		audit, _ := s.seedAudit(models.ObservationAgencyAccepted)
		card, err := s.service.PublishScorecard(s.ctx, s.admin, s.scorecardParams(audit.ID))
		s.Require().NoError(err)
		s.Equal("B", card.AuditGrade)

		got, err := s.store.GetAudit(s.ctx, audit.ID)
		s.Require().NoError(err)
		s.Equal(models.AuditClosed, got.Status)

		events := s.sink.Events()
		s.Require().Len(events, 1)
		s.Equal(notify.EventScorecardPublished, events[0].Type)
	})

	s.Run("revision updates without a second event", func() {
		audit, _ := s.seedAudit(models.ObservationAgencyAccepted)
		_, err := s.service.PublishScorecard(s.ctx, s.admin, s.scorecardParams(audit.ID))
		s.Require().NoError(err)
		emitted := len(s.sink.Events())

		params := s.scorecardParams(audit.ID)
		params.AuditScore = 65
		params.AuditGrade = "C"
		card, err := s.service.PublishScorecard(s.ctx, s.admin, params)
		s.Require().NoError(err)
		s.Equal("C", card.AuditGrade)
		s.Len(s.sink.Events(), emitted)
	})

	s.Run("pending observations do not block publication", func() {
		audit, _ := s.seedAudit(models.ObservationPending)
		_, err := s.service.PublishScorecard(s.ctx, s.admin, s.scorecardParams(audit.ID))
		s.NoError(err)
	})

	s.Run("score outside 0..100 fails validation", func() {
		audit, _ := s.seedAudit(models.ObservationAgencyAccepted)
		params := s.scorecardParams(audit.ID)
		params.AuditScore = 104
		_, err := s.service.PublishScorecard(s.ctx, s.admin, params)
		s.True(dErrors.Is(err, dErrors.CodeValidation))
	})

	s.Run("auditor cannot publish", func() {
		audit, _ := s.seedAudit(models.ObservationAgencyAccepted)
		_, err := s.service.PublishScorecard(s.ctx, s.auditor, s.scorecardParams(audit.ID))
		s.True(dErrors.Is(err, dErrors.CodeForbidden))
	})

	s.Run("unknown audit is not found", func() {
		_, err := s.service.PublishScorecard(s.ctx, s.admin, s.scorecardParams(uuid.New()))
		s.True(dErrors.Is(err, dErrors.CodeNotFound))
	})
}

func (s *PenaltyServiceSuite) TestGetScorecard() {
	audit, _ := s.seedAudit(models.ObservationAgencyAccepted)
	_, err := s.service.PublishScorecard(s.ctx, s.admin, s.scorecardParams(audit.ID))
	s.Require().NoError(err)

	s.Run("agency user reads own agency's card", func() {
		card, err := s.service.GetScorecard(s.ctx, s.agency, audit.ID)
		s.Require().NoError(err)
		s.Equal(audit.ID, card.AuditID)
	})

	s.Run("owning firm's auditor reads the card", func() {
		_, err := s.service.GetScorecard(s.ctx, s.auditor, audit.ID)
		s.NoError(err)
	})

	s.Run("other agency is forbidden", func() {
		other := identity.Principal{UserID: "u9", Role: identity.RoleAgencyUser, AgencyID: "agency-2"}
		_, err := s.service.GetScorecard(s.ctx, other, audit.ID)
		s.True(dErrors.Is(err, dErrors.CodeForbidden))
	})

	s.Run("audit without a card is not found", func() {
		bare, _ := s.seedAudit(models.ObservationAgencyAccepted)
		_, err := s.service.GetScorecard(s.ctx, s.agency, bare.ID)
		s.True(dErrors.Is(err, dErrors.CodeNotFound))
	})
}
