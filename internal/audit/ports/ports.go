// Package ports defines shared interfaces for the audit module.
// Interfaces are placed here when consumed by multiple services to avoid duplication.
package ports

import (
	"context"

	"veritrail/internal/audit/models"
	"veritrail/internal/notify"
	id "veritrail/pkg/domain"
)

// EntryStore persists audit entries. Implementations must preserve per-tenant
// insertion order: ListChain returns entries exactly in the order they were
// inserted, which is the order digests were chained in.
type EntryStore interface {
	// Insert persists a fully-stamped entry. Entries are stamped before
	// insertion, so readers never observe a half-written entry.
	Insert(ctx context.Context, entry *models.Entry) error

	// Head returns the most recently inserted entry for the tenant, the
	// current chain head. Returns sentinel.ErrNotFound for an empty chain.
	Head(ctx context.Context, tenantID id.TenantID) (*models.Entry, error)

	// Get returns one entry scoped to the tenant, or sentinel.ErrNotFound.
	Get(ctx context.Context, tenantID id.TenantID, entryID id.EntryID) (*models.Entry, error)

	// List returns entries for the tenant, newest first, bounded by filter.
	List(ctx context.Context, tenantID id.TenantID, filter models.EntryFilter) ([]*models.Entry, error)

	// ListChain returns all entries for the tenant in insertion order,
	// oldest first. Used by chain verification.
	ListChain(ctx context.Context, tenantID id.TenantID) ([]*models.Entry, error)

	// Count returns the number of entries matching the filter for the tenant.
	Count(ctx context.Context, tenantID id.TenantID, filter models.EntryFilter) (int64, error)
}

// Publisher emits outward notifications. Implementations must be safe for
// concurrent use; publish failures are the caller's to log, never to propagate.
type Publisher interface {
	Publish(ctx context.Context, event notify.Event) error
}

// Evaluator receives each newly appended entry exactly once for rule
// evaluation. Submit must not block the append path.
type Evaluator interface {
	Submit(entry *models.Entry)
}
