// Package models holds the entities of the audit and corrective-action
// workflow: Audit, Observation, ShowCauseNotice, ShowCauseResponse, Penalty
// and AuditScorecard, together with their status enums. Transition rules
// live in the service packages; this package stays declarative.
package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditStatus is the linear audit lifecycle. There are no back-transitions;
// CLOSED is reached only through scorecard publication.
type AuditStatus string

const (
	AuditInProgress AuditStatus = "IN_PROGRESS"
	AuditCompleted  AuditStatus = "COMPLETED"
	AuditClosed     AuditStatus = "CLOSED"
)

// Audit is one inspection engagement of an agency by an auditing firm.
// Auditor name and employee id are free text from the engagement record,
// not user accounts.
type Audit struct {
	ID                uuid.UUID   `json:"id"`
	AgencyID          string      `json:"agency_id"`
	FirmID            string      `json:"firm_id"`
	AuditorName       string      `json:"auditor_name"`
	AuditorEmployeeID string      `json:"auditor_employee_id"`
	AuditDate         time.Time   `json:"audit_date"`
	Status            AuditStatus `json:"status"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// Severity grades an observation.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Valid reports whether the severity is a recognized grade.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// ObservationStatus is the acceptance sub-state of a finding. An observation
// leaves PENDING exactly once, and only through show-cause resolution or the
// deadline sweep.
type ObservationStatus string

const (
	ObservationPending        ObservationStatus = "PENDING"
	ObservationAgencyAccepted ObservationStatus = "AGENCY_ACCEPTED"
	ObservationAutoAccepted   ObservationStatus = "AUTO_ACCEPTED"
	ObservationAgencyDisputed ObservationStatus = "AGENCY_DISPUTED"
)

// Resolved reports whether the observation has left PENDING.
func (s ObservationStatus) Resolved() bool {
	return s != ObservationPending
}

// ResolutionOutcome is the subset of observation states an admin may set
// explicitly. AUTO_ACCEPTED is reserved for the deadline sweep.
func (s ObservationStatus) ResolutionOutcome() bool {
	return s == ObservationAgencyAccepted || s == ObservationAgencyDisputed
}

// Observation is a single recorded finding within an audit. Number is
// caller-supplied and unique within the audit; no auto-sequencing is assumed.
type Observation struct {
	ID          uuid.UUID         `json:"id"`
	AuditID     uuid.UUID         `json:"audit_id"`
	Number      int               `json:"number"`
	Category    string            `json:"category"`
	Severity    Severity          `json:"severity"`
	Description string            `json:"description"`
	Status      ObservationStatus `json:"status"`
	// NoticeID is set once the observation is bundled into a show-cause
	// notice. An observation belongs to at most one open notice at a time.
	NoticeID  *uuid.UUID `json:"notice_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// NoticeStatus is the show-cause notice lifecycle.
type NoticeStatus string

const (
	NoticeIssued    NoticeStatus = "ISSUED"
	NoticeResponded NoticeStatus = "RESPONDED"
	NoticeClosed    NoticeStatus = "CLOSED"
)

// Open reports whether the notice still holds its observations; a closed
// notice releases them for future notices.
func (s NoticeStatus) Open() bool {
	return s != NoticeClosed
}

// ShowCauseNotice bundles one or more observations into a formal notice
// with a response deadline. ResponseDue is immutable after issuance.
type ShowCauseNotice struct {
	ID          uuid.UUID    `json:"id"`
	AgencyID    string       `json:"agency_id"`
	IssuedByID  string       `json:"issued_by_id"`
	Subject     string       `json:"subject"`
	Details     string       `json:"details"`
	ResponseDue time.Time    `json:"response_due"`
	Status      NoticeStatus `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
}

// ShowCauseResponse is an agency's reply to a notice. Append-only; never
// mutated or deleted.
type ShowCauseResponse struct {
	ID            uuid.UUID `json:"id"`
	NoticeID      uuid.UUID `json:"notice_id"`
	AuthorID      string    `json:"author_id"`
	Content       string    `json:"content"`
	AttachmentIDs []string  `json:"attachment_ids,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// PenaltyStatus tracks the penalty's administrative handling.
type PenaltyStatus string

const (
	PenaltyProposed PenaltyStatus = "PROPOSED"
	PenaltyApplied  PenaltyStatus = "APPLIED"
)

// Penalty is the monetary consequence attached to one resolved observation.
// At most one per observation; repeat assignments update in place.
type Penalty struct {
	ID             uuid.UUID     `json:"id"`
	ObservationID  uuid.UUID     `json:"observation_id"`
	AmountMinor    int64         `json:"amount_minor"`
	Reason         string        `json:"reason"`
	DeductionMonth string        `json:"deduction_month"`
	Status         PenaltyStatus `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// AuditScorecard is the terminal artifact; creating it is the only action
// that closes an audit.
type AuditScorecard struct {
	ID               uuid.UUID `json:"id"`
	AuditID          uuid.UUID `json:"audit_id"`
	AuditPeriod      string    `json:"audit_period"`
	AuditScore       float64   `json:"audit_score"`
	AuditGrade       string    `json:"audit_grade"`
	AuditCategory    string    `json:"audit_category"`
	FinalObservation string    `json:"final_observation"`
	Justification    string    `json:"justification"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
