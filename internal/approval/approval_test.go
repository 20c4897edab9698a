package approval

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"vigil/internal/identity"
	dErrors "vigil/pkg/domain-errors"
	"vigil/pkg/requestcontext"
)

type ApprovalSuite struct {
	suite.Suite
	service *Service
	ctx     context.Context

	requester identity.Principal
	approver  identity.Principal
}

func TestApprovalSuite(t *testing.T) {
	suite.Run(t, new(ApprovalSuite))
}

func (s *ApprovalSuite) SetupTest() {
	s.service = NewService(NewMemoryStore(), 15*time.Minute)
	s.ctx = context.Background()
	s.requester = identity.Principal{UserID: "admin-1", Role: identity.RoleAdmin}
	s.approver = identity.Principal{UserID: "admin-2", Role: identity.RoleSuperAdmin}
}

func (s *ApprovalSuite) TestDualControl() {
	s.Run("pending session is not active", func() {
		session, err := s.service.Begin(s.ctx, s.requester, "penalty.waive")
		s.Require().NoError(err)
		s.Equal(StatePending, session.State)

		active, err := s.service.Active(s.ctx, session.ID)
		s.Require().NoError(err)
		s.False(active)
	})

	s.Run("second admin confirms and session turns active", func() {
		session, err := s.service.Begin(s.ctx, s.requester, "penalty.waive")
		s.Require().NoError(err)

		confirmed, err := s.service.Confirm(s.ctx, s.approver, session.ID)
		s.Require().NoError(err)
		s.Equal(StateConfirmed, confirmed.State)
		s.Equal("admin-2", confirmed.ApproverID)

		active, err := s.service.Active(s.ctx, session.ID)
		s.Require().NoError(err)
		s.True(active)
	})

	s.Run("requester cannot confirm own session", func() {
		session, err := s.service.Begin(s.ctx, s.requester, "penalty.waive")
		s.Require().NoError(err)
		_, err = s.service.Confirm(s.ctx, s.requester, session.ID)
		s.True(dErrors.Is(err, dErrors.CodeForbidden))
	})

	s.Run("non-admin cannot begin", func() {
		agency := identity.Principal{UserID: "u", Role: identity.RoleAgencyUser}
		_, err := s.service.Begin(s.ctx, agency, "penalty.waive")
		s.True(dErrors.Is(err, dErrors.CodeForbidden))
	})

	s.Run("expired session is gone", func() {
		session, err := s.service.Begin(s.ctx, s.requester, "penalty.waive")
		s.Require().NoError(err)

		late := requestcontext.WithTime(s.ctx, session.ExpiresAt.Add(time.Second))
		_, err = s.service.Confirm(late, s.approver, session.ID)
		s.True(dErrors.Is(err, dErrors.CodeNotFound))

		active, err := s.service.Active(late, session.ID)
		s.Require().NoError(err)
		s.False(active)
	})

	s.Run("unknown session reads inactive", func() {
		active, err := s.service.Active(s.ctx, uuid.New())
		s.Require().NoError(err)
		s.False(active)
	})
}
