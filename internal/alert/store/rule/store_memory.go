package rule

import (
	"context"
	"slices"
	"strings"
	"sync"

	"veritrail/internal/alert/models"
	id "veritrail/pkg/domain"
	"veritrail/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu    sync.RWMutex
	rules map[id.RuleID]*models.AlertRule
	// order preserves creation order per tenant for stable listings.
	order map[id.TenantID][]id.RuleID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		rules: make(map[id.RuleID]*models.AlertRule),
		order: make(map[id.TenantID][]id.RuleID),
	}
}

func copyRule(r *models.AlertRule) *models.AlertRule {
	cp := *r
	cp.Conditions = models.TriggerConditions{
		Actions:      slices.Clone(r.Conditions.Actions),
		SubjectTypes: slices.Clone(r.Conditions.SubjectTypes),
		ActorIDs:     slices.Clone(r.Conditions.ActorIDs),
		IPAddresses:  slices.Clone(r.Conditions.IPAddresses),
	}
	return &cp
}

func (s *InMemoryStore) Create(_ context.Context, r *models.AlertRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existingID := range s.order[r.TenantID] {
		if strings.EqualFold(s.rules[existingID].Name, r.Name) {
			return sentinel.ErrConflict
		}
	}

	s.rules[r.ID] = copyRule(r)
	s.order[r.TenantID] = append(s.order[r.TenantID], r.ID)
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, r *models.AlertRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.rules[r.ID]
	if !ok || existing.TenantID != r.TenantID {
		return sentinel.ErrNotFound
	}
	s.rules[r.ID] = copyRule(r)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, tenantID id.TenantID, ruleID id.RuleID) (*models.AlertRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rules[ruleID]
	if !ok || r.TenantID != tenantID {
		return nil, sentinel.ErrNotFound
	}
	return copyRule(r), nil
}

func (s *InMemoryStore) List(_ context.Context, tenantID id.TenantID, activeOnly bool) ([]*models.AlertRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.AlertRule
	for _, ruleID := range s.order[tenantID] {
		r := s.rules[ruleID]
		if activeOnly && !r.Active {
			continue
		}
		out = append(out, copyRule(r))
	}
	return out, nil
}
