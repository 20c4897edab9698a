// Package approval implements short-lived dual-control sessions: a sensitive
// action is requested by one admin and must be confirmed by a different one
// before the window expires. Sessions are transient by design; expiry is the
// store's responsibility, not the caller's.
package approval

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"vigil/internal/identity"
	dErrors "vigil/pkg/domain-errors"
	"vigil/pkg/requestcontext"
	"vigil/pkg/sentinel"
)

// State is the session lifecycle.
type State string

const (
	StatePending   State = "PENDING"
	StateConfirmed State = "CONFIRMED"
)

// Session is one dual-control approval window.
type Session struct {
	ID          uuid.UUID `json:"id"`
	Action      string    `json:"action"`
	RequesterID string    `json:"requester_id"`
	ApproverID  string    `json:"approver_id,omitempty"`
	State       State     `json:"state"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Store keeps sessions with expiry. Implementations drop expired sessions on
// their own; Get on an expired or unknown session returns sentinel.ErrNotFound.
type Store interface {
	Put(ctx context.Context, session *Session, ttl time.Duration) error
	Get(ctx context.Context, id uuid.UUID) (*Session, error)
}

type Service struct {
	store Store
	ttl   time.Duration
}

func NewService(store Store, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Service{store: store, ttl: ttl}
}

// Begin opens an approval window for the named action.
func (s *Service) Begin(ctx context.Context, p identity.Principal, action string) (*Session, error) {
	if !p.IsAdmin() {
		return nil, dErrors.New(dErrors.CodeForbidden, "only admins request approval")
	}
	if action == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "action is required")
	}
	now := requestcontext.Now(ctx).UTC()
	session := &Session{
		ID:          uuid.New(),
		Action:      action,
		RequesterID: p.UserID,
		State:       StatePending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}
	if err := s.store.Put(ctx, session, s.ttl); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store approval session")
	}
	return session, nil
}

// Confirm records the second admin's approval. The requester cannot confirm
// their own session.
func (s *Service) Confirm(ctx context.Context, p identity.Principal, id uuid.UUID) (*Session, error) {
	if !p.IsAdmin() {
		return nil, dErrors.New(dErrors.CodeForbidden, "only admins confirm approval")
	}
	session, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.RequesterID == p.UserID {
		return nil, dErrors.New(dErrors.CodeForbidden, "requester cannot confirm their own session")
	}
	if session.State == StateConfirmed {
		return session, nil
	}

	session.State = StateConfirmed
	session.ApproverID = p.UserID
	ttl := session.ExpiresAt.Sub(requestcontext.Now(ctx).UTC())
	if ttl <= 0 {
		return nil, dErrors.New(dErrors.CodeNotFound, "approval session expired")
	}
	if err := s.store.Put(ctx, session, ttl); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store approval session")
	}
	return session, nil
}

// Active reports whether the session exists, is confirmed, and has not
// expired. Callers gate their sensitive action on this.
func (s *Service) Active(ctx context.Context, id uuid.UUID) (bool, error) {
	session, err := s.get(ctx, id)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeNotFound) {
			return false, nil
		}
		return false, err
	}
	now := requestcontext.Now(ctx).UTC()
	return session.State == StateConfirmed && now.Before(session.ExpiresAt), nil
}

func (s *Service) get(ctx context.Context, id uuid.UUID) (*Session, error) {
	session, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "approval session not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load approval session")
	}
	if !requestcontext.Now(ctx).UTC().Before(session.ExpiresAt) {
		return nil, dErrors.New(dErrors.CodeNotFound, "approval session expired")
	}
	return session, nil
}
