package incident

import (
	"context"
	"sync"

	"veritrail/internal/alert/models"
	id "veritrail/pkg/domain"
	"veritrail/pkg/platform/sentinel"
)

type matchKey struct {
	ruleID  id.RuleID
	entryID id.EntryID
}

type InMemoryStore struct {
	mu        sync.RWMutex
	incidents map[id.IncidentID]*models.Incident
	order     map[id.TenantID][]id.IncidentID
	byMatch   map[matchKey]struct{}
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		incidents: make(map[id.IncidentID]*models.Incident),
		order:     make(map[id.TenantID][]id.IncidentID),
		byMatch:   make(map[matchKey]struct{}),
	}
}

func copyIncident(i *models.Incident) *models.Incident {
	cp := *i
	if i.ResolvedAt != nil {
		at := *i.ResolvedAt
		cp.ResolvedAt = &at
	}
	return &cp
}

func (s *InMemoryStore) Create(_ context.Context, incident *models.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := matchKey{ruleID: incident.RuleID, entryID: incident.EntryID}
	if _, dup := s.byMatch[key]; dup {
		return sentinel.ErrConflict
	}

	s.incidents[incident.ID] = copyIncident(incident)
	s.order[incident.TenantID] = append(s.order[incident.TenantID], incident.ID)
	s.byMatch[key] = struct{}{}
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, tenantID id.TenantID, incidentID id.IncidentID) (*models.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	incident, ok := s.incidents[incidentID]
	if !ok || incident.TenantID != tenantID {
		return nil, sentinel.ErrNotFound
	}
	return copyIncident(incident), nil
}

func (s *InMemoryStore) Update(_ context.Context, incident *models.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.incidents[incident.ID]
	if !ok || existing.TenantID != incident.TenantID {
		return sentinel.ErrNotFound
	}
	s.incidents[incident.ID] = copyIncident(incident)
	return nil
}

func (s *InMemoryStore) List(_ context.Context, tenantID id.TenantID, filter models.IncidentFilter) ([]*models.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.order[tenantID]
	var out []*models.Incident
	for i := len(ids) - 1; i >= 0; i-- {
		incident := s.incidents[ids[i]]
		if !filter.Matches(incident) {
			continue
		}
		out = append(out, copyIncident(incident))
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}
