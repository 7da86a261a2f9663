package entry

import (
	"context"
	"maps"
	"sync"

	"veritrail/internal/audit/models"
	id "veritrail/pkg/domain"
	"veritrail/pkg/platform/sentinel"
)

// InMemoryStore keeps per-tenant chains in insertion order. Used by unit
// tests and single-node deployments; mirrors the Postgres store behavior.
type InMemoryStore struct {
	mu      sync.RWMutex
	chains  map[id.TenantID][]*models.Entry
	byEntry map[id.EntryID]*models.Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		chains:  make(map[id.TenantID][]*models.Entry),
		byEntry: make(map[id.EntryID]*models.Entry),
	}
}

// Clear drops all stored entries. Test helper.
func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chains = make(map[id.TenantID][]*models.Entry)
	s.byEntry = make(map[id.EntryID]*models.Entry)
}

func copyEntry(e *models.Entry) *models.Entry {
	cp := *e
	cp.Metadata = maps.Clone(e.Metadata)
	return &cp
}

func (s *InMemoryStore) Insert(_ context.Context, entry *models.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEntry[entry.ID]; exists {
		return sentinel.ErrConflict
	}

	stored := copyEntry(entry)
	s.chains[entry.TenantID] = append(s.chains[entry.TenantID], stored)
	s.byEntry[entry.ID] = stored
	return nil
}

func (s *InMemoryStore) Head(_ context.Context, tenantID id.TenantID) (*models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chain := s.chains[tenantID]
	if len(chain) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return copyEntry(chain[len(chain)-1]), nil
}

func (s *InMemoryStore) Get(_ context.Context, tenantID id.TenantID, entryID id.EntryID) (*models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.byEntry[entryID]
	if !ok || entry.TenantID != tenantID {
		// Cross-tenant lookups report absence, never existence elsewhere.
		return nil, sentinel.ErrNotFound
	}
	return copyEntry(entry), nil
}

func (s *InMemoryStore) List(_ context.Context, tenantID id.TenantID, filter models.EntryFilter) ([]*models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chain := s.chains[tenantID]
	var out []*models.Entry
	for i := len(chain) - 1; i >= 0; i-- {
		if !filter.Matches(chain[i]) {
			continue
		}
		out = append(out, copyEntry(chain[i]))
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListChain(_ context.Context, tenantID id.TenantID) ([]*models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chain := s.chains[tenantID]
	out := make([]*models.Entry, 0, len(chain))
	for _, e := range chain {
		out = append(out, copyEntry(e))
	}
	return out, nil
}

func (s *InMemoryStore) Count(_ context.Context, tenantID id.TenantID, filter models.EntryFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, e := range s.chains[tenantID] {
		if filter.Matches(e) {
			n++
		}
	}
	return n, nil
}
