package assignment

import (
	"context"
	"sync"
)

type pairing struct {
	agencyID string
	firmID   string
}

// MemoryRegistry is an in-memory assignment lookup for tests and local
// development.
type MemoryRegistry struct {
	mu    sync.RWMutex
	pairs map[pairing]bool
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{pairs: make(map[pairing]bool)}
}

// Assign authorizes the firm for the agency.
func (r *MemoryRegistry) Assign(agencyID, firmID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pairs[pairing{agencyID: agencyID, firmID: firmID}] = true
}

// Revoke removes the authorization.
func (r *MemoryRegistry) Revoke(agencyID, firmID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pairs, pairing{agencyID: agencyID, firmID: firmID})
}

func (r *MemoryRegistry) Assigned(_ context.Context, agencyID, firmID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pairs[pairing{agencyID: agencyID, firmID: firmID}], nil
}
