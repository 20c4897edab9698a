// Package notify emits events for workflow actions that change externally
// visible state: notice issuance, audit completion, scorecard publication.
// Delivery and formatting are another system's concern; the workflow treats
// publication as best-effort and never fails a business operation because
// the sink is down.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType classifies notification events.
type EventType string

const (
	EventAuditCompleted     EventType = "audit.completed"
	EventNoticeIssued       EventType = "notice.issued"
	EventNoticeClosed       EventType = "notice.closed"
	EventScorecardPublished EventType = "scorecard.published"
)

// Event is one notification. EntityID refers to the audit, notice or
// scorecard the event is about; AgencyID routes delivery.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Type       EventType `json:"type"`
	AgencyID   string    `json:"agency_id"`
	EntityID   uuid.UUID `json:"entity_id"`
	ActorID    string    `json:"actor_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	Detail     string    `json:"detail,omitempty"`
}

// Sink receives notification events.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}
