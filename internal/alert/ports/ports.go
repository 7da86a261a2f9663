// Package ports defines shared interfaces for the alert module.
package ports

import (
	"context"

	"veritrail/internal/alert/models"
	id "veritrail/pkg/domain"
)

// RuleStore persists alert rules.
type RuleStore interface {
	// Create persists a new rule. Returns sentinel.ErrConflict when the
	// tenant already has a rule with the same name.
	Create(ctx context.Context, rule *models.AlertRule) error

	// Update replaces the stored rule. Returns sentinel.ErrNotFound when
	// the rule does not exist for the tenant.
	Update(ctx context.Context, rule *models.AlertRule) error

	// Get returns one rule scoped to the tenant, or sentinel.ErrNotFound.
	Get(ctx context.Context, tenantID id.TenantID, ruleID id.RuleID) (*models.AlertRule, error)

	// List returns the tenant's rules; activeOnly narrows to active rules.
	List(ctx context.Context, tenantID id.TenantID, activeOnly bool) ([]*models.AlertRule, error)
}

// IncidentStore persists incidents.
type IncidentStore interface {
	// Create persists a new incident. Returns sentinel.ErrConflict when an
	// incident for the same (rule, entry) pair already exists, which keeps
	// the exactly-once-per-match invariant under retries.
	Create(ctx context.Context, incident *models.Incident) error

	// Get returns one incident scoped to the tenant, or sentinel.ErrNotFound.
	Get(ctx context.Context, tenantID id.TenantID, incidentID id.IncidentID) (*models.Incident, error)

	// Update replaces the stored incident (resolution fields only by
	// convention). Returns sentinel.ErrNotFound when absent for the tenant.
	Update(ctx context.Context, incident *models.Incident) error

	// List returns the tenant's incidents, newest first, bounded by filter.
	List(ctx context.Context, tenantID id.TenantID, filter models.IncidentFilter) ([]*models.Incident, error)
}

// ActiveRuleProvider resolves the active rules the engine evaluates.
// Implementations may cache; staleness is bounded by the cache TTL.
type ActiveRuleProvider interface {
	ActiveRules(ctx context.Context, tenantID id.TenantID) ([]*models.AlertRule, error)
}
