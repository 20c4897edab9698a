//go:build integration

package store_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"vigil/internal/workflow/models"
	"vigil/internal/workflow/store"
	"vigil/pkg/sentinel"
	"vigil/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
	ctx      context.Context
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.ctx = context.Background()
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(s.ctx,
		"audit_scorecards", "penalties", "show_cause_responses",
		"observations", "show_cause_notices", "audits", "firm_assignments")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) seedAudit(status models.AuditStatus) *models.Audit {
	now := time.Now().UTC().Truncate(time.Microsecond)
	audit := &models.Audit{
		ID:                uuid.New(),
		AgencyID:          "agency-1",
		FirmID:            "firm-1",
		AuditorName:       "R. Mehta",
		AuditorEmployeeID: "EMP-42",
		AuditDate:         now,
		Status:            status,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	s.Require().NoError(s.store.CreateAudit(s.ctx, audit))
	return audit
}

func (s *PostgresStoreSuite) seedObservation(auditID uuid.UUID, number int) *models.Observation {
	now := time.Now().UTC().Truncate(time.Microsecond)
	obs := &models.Observation{
		ID:        uuid.New(),
		AuditID:   auditID,
		Number:    number,
		Severity:  models.SeverityMedium,
		Status:    models.ObservationPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.Require().NoError(s.store.CreateObservation(s.ctx, obs))
	return obs
}

func (s *PostgresStoreSuite) seedNotice(obsIDs []uuid.UUID, due time.Time) *models.ShowCauseNotice {
	notice := &models.ShowCauseNotice{
		ID:          uuid.New(),
		AgencyID:    "agency-1",
		IssuedByID:  "u-admin",
		Subject:     "findings",
		ResponseDue: due,
		Status:      models.NoticeIssued,
		CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
	}
	s.Require().NoError(s.store.IssueNotice(s.ctx, notice, obsIDs))
	return notice
}

func (s *PostgresStoreSuite) TestAuditRoundTrip() {
	audit := s.seedAudit(models.AuditInProgress)
	found, err := s.store.GetAudit(s.ctx, audit.ID)
	s.Require().NoError(err)
	s.Equal(audit.AgencyID, found.AgencyID)
	s.Equal(models.AuditInProgress, found.Status)

	_, err = s.store.GetAudit(s.ctx, uuid.New())
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestDuplicateObservationNumber() {
	audit := s.seedAudit(models.AuditInProgress)
	s.seedObservation(audit.ID, 1)

	dup := &models.Observation{
		ID: uuid.New(), AuditID: audit.ID, Number: 1,
		Severity: models.SeverityLow, Status: models.ObservationPending,
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	err := s.store.CreateObservation(s.ctx, dup)
	s.Require().ErrorIs(err, sentinel.ErrConflict)
}

// TestConcurrentTransition verifies that a contended status transition
// succeeds exactly once.
func (s *PostgresStoreSuite) TestConcurrentTransition() {
	audit := s.seedAudit(models.AuditInProgress)
	const goroutines = 20

	var wg sync.WaitGroup
	var transitioned atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.store.TransitionAudit(s.ctx, audit.ID, models.AuditInProgress, models.AuditCompleted, time.Now().UTC())
			s.NoError(err)
			if ok {
				transitioned.Add(1)
			}
		}()
	}
	wg.Wait()
	s.EqualValues(1, transitioned.Load())
}

func (s *PostgresStoreSuite) TestIssueNoticeAtomicity() {
	audit := s.seedAudit(models.AuditCompleted)
	obs := s.seedObservation(audit.ID, 1)

	notice := &models.ShowCauseNotice{
		ID: uuid.New(), AgencyID: "agency-1", IssuedByID: "u-admin",
		Subject: "findings", ResponseDue: time.Now().UTC().Add(time.Hour),
		Status: models.NoticeIssued, CreatedAt: time.Now().UTC(),
	}
	err := s.store.IssueNotice(s.ctx, notice, []uuid.UUID{obs.ID, uuid.New()})
	var conflict *store.ObservationConflictError
	s.Require().ErrorAs(err, &conflict)
	s.Equal(store.ConflictNotFound, conflict.Reason)

	// The valid observation was not linked.
	found, err := s.store.GetObservation(s.ctx, obs.ID)
	s.Require().NoError(err)
	s.Nil(found.NoticeID)

	// The failed notice row was not kept either.
	_, err = s.store.GetNotice(s.ctx, notice.ID)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

// TestConcurrentResolveClaim verifies the conditional claim: when the sweep
// and an explicit resolution race, exactly one side wins.
func (s *PostgresStoreSuite) TestConcurrentResolveClaim() {
	audit := s.seedAudit(models.AuditCompleted)
	obs := s.seedObservation(audit.ID, 1)
	notice := s.seedNotice([]uuid.UUID{obs.ID}, time.Now().UTC().Add(-time.Hour))

	const goroutines = 20
	var wg sync.WaitGroup
	var claims atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		outcome := models.ObservationAutoAccepted
		if i%2 == 0 {
			outcome = models.ObservationAgencyAccepted
		}
		go func() {
			defer wg.Done()
			claimed, err := s.store.ResolveObservation(s.ctx, notice.ID, obs.ID, outcome, time.Now().UTC())
			s.NoError(err)
			if claimed {
				claims.Add(1)
			}
		}()
	}
	wg.Wait()
	s.EqualValues(1, claims.Load())

	found, err := s.store.GetObservation(s.ctx, obs.ID)
	s.Require().NoError(err)
	s.True(found.Status.Resolved())
}

func (s *PostgresStoreSuite) TestResolveObservationDistinguishesZeroRows() {
	audit := s.seedAudit(models.AuditCompleted)
	linked := s.seedObservation(audit.ID, 1)
	stray := s.seedObservation(audit.ID, 2)
	notice := s.seedNotice([]uuid.UUID{linked.ID}, time.Now().UTC().Add(time.Hour))

	claimed, err := s.store.ResolveObservation(s.ctx, notice.ID, stray.ID, models.ObservationAgencyAccepted, time.Now().UTC())
	s.Require().ErrorIs(err, sentinel.ErrNotFound, "unlinked observation is not-found, not already-resolved")
	s.False(claimed)

	claimed, err = s.store.ResolveObservation(s.ctx, notice.ID, linked.ID, models.ObservationAgencyAccepted, time.Now().UTC())
	s.Require().NoError(err)
	s.True(claimed)

	claimed, err = s.store.ResolveObservation(s.ctx, notice.ID, linked.ID, models.ObservationAgencyDisputed, time.Now().UTC())
	s.Require().NoError(err, "already-resolved reports a missed claim, not an error")
	s.False(claimed)
}

func (s *PostgresStoreSuite) TestCloseNoticeRequiresResolution() {
	audit := s.seedAudit(models.AuditCompleted)
	first := s.seedObservation(audit.ID, 1)
	second := s.seedObservation(audit.ID, 2)
	notice := s.seedNotice([]uuid.UUID{first.ID, second.ID}, time.Now().UTC().Add(time.Hour))

	err := s.store.CloseNotice(s.ctx, notice.ID)
	s.Require().ErrorIs(err, sentinel.ErrStillPending)

	for _, id := range []uuid.UUID{first.ID, second.ID} {
		claimed, err := s.store.ResolveObservation(s.ctx, notice.ID, id, models.ObservationAgencyAccepted, time.Now().UTC())
		s.Require().NoError(err)
		s.Require().True(claimed)
	}
	s.Require().NoError(s.store.CloseNotice(s.ctx, notice.ID))
	// Idempotent.
	s.Require().NoError(s.store.CloseNotice(s.ctx, notice.ID))
}

func (s *PostgresStoreSuite) TestListDueNotices() {
	audit := s.seedAudit(models.AuditCompleted)
	overdueObs := s.seedObservation(audit.ID, 1)
	freshObs := s.seedObservation(audit.ID, 2)

	now := time.Now().UTC().Truncate(time.Microsecond)
	overdue := s.seedNotice([]uuid.UUID{overdueObs.ID}, now.Add(-time.Hour))
	s.seedNotice([]uuid.UUID{freshObs.ID}, now.Add(time.Hour))

	due, err := s.store.ListDueNotices(s.ctx, now, 10)
	s.Require().NoError(err)
	s.Require().Len(due, 1)
	s.Equal(overdue.ID, due[0].ID)
}

func (s *PostgresStoreSuite) TestAppendResponseFlipsOnce() {
	audit := s.seedAudit(models.AuditCompleted)
	obs := s.seedObservation(audit.ID, 1)
	notice := s.seedNotice([]uuid.UUID{obs.ID}, time.Now().UTC().Add(time.Hour))

	first, err := s.store.AppendResponse(s.ctx, &models.ShowCauseResponse{
		ID: uuid.New(), NoticeID: notice.ID, AuthorID: "u-agency",
		Content: "reply one", AttachmentIDs: []string{"doc-1"},
		CreatedAt: time.Now().UTC(),
	})
	s.Require().NoError(err)
	s.True(first)

	second, err := s.store.AppendResponse(s.ctx, &models.ShowCauseResponse{
		ID: uuid.New(), NoticeID: notice.ID, AuthorID: "u-agency",
		Content: "reply two", CreatedAt: time.Now().UTC(),
	})
	s.Require().NoError(err)
	s.False(second)

	responses, err := s.store.ListResponses(s.ctx, notice.ID)
	s.Require().NoError(err)
	s.Require().Len(responses, 2)
	s.Equal([]string{"doc-1"}, responses[0].AttachmentIDs)
}

func (s *PostgresStoreSuite) TestPenaltyUpsert() {
	audit := s.seedAudit(models.AuditCompleted)
	obs := s.seedObservation(audit.ID, 1)

	now := time.Now().UTC().Truncate(time.Microsecond)
	first, err := s.store.UpsertPenalty(s.ctx, &models.Penalty{
		ID: uuid.New(), ObservationID: obs.ID, AmountMinor: 100,
		Reason: "initial", Status: models.PenaltyProposed,
		CreatedAt: now, UpdatedAt: now,
	})
	s.Require().NoError(err)

	second, err := s.store.UpsertPenalty(s.ctx, &models.Penalty{
		ID: uuid.New(), ObservationID: obs.ID, AmountMinor: 250,
		Reason: "revised", Status: models.PenaltyApplied,
		CreatedAt: now, UpdatedAt: now.Add(time.Minute),
	})
	s.Require().NoError(err)
	s.Equal(first.ID, second.ID)
	s.EqualValues(250, second.AmountMinor)
}

func (s *PostgresStoreSuite) TestPublishScorecardClosesAuditOnce() {
	audit := s.seedAudit(models.AuditCompleted)
	now := time.Now().UTC().Truncate(time.Microsecond)

	card := &models.AuditScorecard{
		ID: uuid.New(), AuditID: audit.ID, AuditPeriod: "2026-Q1",
		AuditScore: 72.5, AuditGrade: "B",
		CreatedAt: now, UpdatedAt: now,
	}
	_, created, err := s.store.PublishScorecard(s.ctx, card)
	s.Require().NoError(err)
	s.True(created)

	found, err := s.store.GetAudit(s.ctx, audit.ID)
	s.Require().NoError(err)
	s.Equal(models.AuditClosed, found.Status)

	revision := *card
	revision.ID = uuid.New()
	revision.AuditGrade = "C"
	result, created, err := s.store.PublishScorecard(s.ctx, &revision)
	s.Require().NoError(err)
	s.False(created)
	s.Equal(card.ID, result.ID)
	s.Equal("C", result.AuditGrade)
}
