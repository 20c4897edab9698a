package approval

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"vigil/pkg/sentinel"
)

// MemoryStore is the test double. Expiry is checked lazily on Get against
// the wall clock recorded at Put.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]memorySession
}

type memorySession struct {
	session Session
	dropAt  time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[uuid.UUID]memorySession)}
}

func (s *MemoryStore) Put(_ context.Context, session *Session, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = memorySession{session: *session, dropAt: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.sessions[id]
	if !ok || time.Now().After(stored.dropAt) {
		return nil, sentinel.ErrNotFound
	}
	out := stored.session
	return &out, nil
}
