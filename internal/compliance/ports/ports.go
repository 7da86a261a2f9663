// Package ports defines shared interfaces for the compliance module.
package ports

import (
	"context"

	"veritrail/internal/compliance/models"
	id "veritrail/pkg/domain"
)

// CheckpointStore persists compliance checkpoints.
type CheckpointStore interface {
	// Create persists a new checkpoint.
	Create(ctx context.Context, checkpoint *models.Checkpoint) error

	// Get returns one checkpoint scoped to the tenant, or sentinel.ErrNotFound.
	Get(ctx context.Context, tenantID id.TenantID, checkpointID id.CheckpointID) (*models.Checkpoint, error)

	// Update replaces the stored checkpoint (verification fields only by
	// convention). Returns sentinel.ErrNotFound when absent for the tenant.
	Update(ctx context.Context, checkpoint *models.Checkpoint) error

	// List returns the tenant's checkpoints, newest first.
	List(ctx context.Context, tenantID id.TenantID) ([]*models.Checkpoint, error)
}
