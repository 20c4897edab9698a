package notice

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"vigil/internal/identity"
	dErrors "vigil/pkg/domain-errors"
)

// BulkItem is one agency's slice of a bulk issuance.
type BulkItem struct {
	AgencyID       string
	ObservationIDs []uuid.UUID
	Subject        string
	Details        string
}

// BulkResult reports one item's outcome. Exactly one of NoticeID and Code is
// set: a created notice, or the failure code and message for this item.
type BulkResult struct {
	AgencyID string       `json:"agency_id"`
	NoticeID *uuid.UUID   `json:"notice_id,omitempty"`
	Code     dErrors.Code `json:"code,omitempty"`
	Message  string       `json:"message,omitempty"`
}

// BulkParams issues one notice per item with a shared deadline. Subject and
// details fall back to the campaign-level defaults when an item leaves them
// empty.
type BulkParams struct {
	Items       []BulkItem
	Subject     string
	Details     string
	ResponseDue time.Time
}

// IssueBulk issues one notice per agency item. Items are independent: a
// failed item never rolls back or blocks its siblings, and the call as a
// whole only errors on bad input or missing permission. Results come back in
// item order.
func (s *Service) IssueBulk(ctx context.Context, p identity.Principal, params BulkParams) ([]BulkResult, error) {
	if !p.IsAdmin() {
		return nil, dErrors.New(dErrors.CodeForbidden, "only admins issue notices")
	}
	if len(params.Items) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "at least one item is required")
	}

	results := make([]BulkResult, len(params.Items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.bulkPar)
	for i, item := range params.Items {
		g.Go(func() error {
			results[i] = s.issueBulkItem(gctx, p, params, item)
			return nil
		})
	}
	// Workers never return errors; Wait only fences the results slice.
	_ = g.Wait()
	return results, nil
}

func (s *Service) issueBulkItem(ctx context.Context, p identity.Principal, params BulkParams, item BulkItem) BulkResult {
	subject := item.Subject
	if subject == "" {
		subject = params.Subject
	}
	details := item.Details
	if details == "" {
		details = params.Details
	}

	n, err := s.Issue(ctx, p, IssueParams{
		AgencyID:       item.AgencyID,
		ObservationIDs: item.ObservationIDs,
		Subject:        subject,
		Details:        details,
		ResponseDue:    params.ResponseDue,
	})
	if err != nil {
		s.metrics.IncBulkItem("failed")
		return BulkResult{
			AgencyID: item.AgencyID,
			Code:     dErrors.CodeOf(err),
			Message:  dErrors.MessageOf(err),
		}
	}
	s.metrics.IncBulkItem("issued")
	return BulkResult{AgencyID: item.AgencyID, NoticeID: &n.ID}
}
