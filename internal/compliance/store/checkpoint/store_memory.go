// Package checkpoint provides checkpoint store implementations.
package checkpoint

import (
	"context"
	"sync"

	"veritrail/internal/compliance/models"
	id "veritrail/pkg/domain"
	"veritrail/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu          sync.RWMutex
	checkpoints map[id.CheckpointID]*models.Checkpoint
	order       map[id.TenantID][]id.CheckpointID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		checkpoints: make(map[id.CheckpointID]*models.Checkpoint),
		order:       make(map[id.TenantID][]id.CheckpointID),
	}
}

func copyCheckpoint(c *models.Checkpoint) *models.Checkpoint {
	cp := *c
	if c.ExpiresAt != nil {
		at := *c.ExpiresAt
		cp.ExpiresAt = &at
	}
	if c.VerifiedAt != nil {
		at := *c.VerifiedAt
		cp.VerifiedAt = &at
	}
	return &cp
}

func (s *InMemoryStore) Create(_ context.Context, checkpoint *models.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.checkpoints[checkpoint.ID]; dup {
		return sentinel.ErrConflict
	}
	s.checkpoints[checkpoint.ID] = copyCheckpoint(checkpoint)
	s.order[checkpoint.TenantID] = append(s.order[checkpoint.TenantID], checkpoint.ID)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, tenantID id.TenantID, checkpointID id.CheckpointID) (*models.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	checkpoint, ok := s.checkpoints[checkpointID]
	if !ok || checkpoint.TenantID != tenantID {
		return nil, sentinel.ErrNotFound
	}
	return copyCheckpoint(checkpoint), nil
}

func (s *InMemoryStore) Update(_ context.Context, checkpoint *models.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.checkpoints[checkpoint.ID]
	if !ok || existing.TenantID != checkpoint.TenantID {
		return sentinel.ErrNotFound
	}
	s.checkpoints[checkpoint.ID] = copyCheckpoint(checkpoint)
	return nil
}

func (s *InMemoryStore) List(_ context.Context, tenantID id.TenantID) ([]*models.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.order[tenantID]
	out := make([]*models.Checkpoint, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		out = append(out, copyCheckpoint(s.checkpoints[ids[i]]))
	}
	return out, nil
}
