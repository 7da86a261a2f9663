package models

import (
	"slices"
	"time"

	audit "veritrail/internal/audit/models"
	id "veritrail/pkg/domain"
)

// TriggerConditions is a rule's condition set. Each list is either nil
// (matches anything) or a non-empty allow-list; a present list requires the
// entry to match at least one of its values, and every present list must
// match for the rule to fire.
type TriggerConditions struct {
	Actions      []audit.Action
	SubjectTypes []string
	ActorIDs     []id.ActorID
	IPAddresses  []string
}

// Matches evaluates the condition set against an entry.
func (c TriggerConditions) Matches(e *audit.Entry) bool {
	if len(c.Actions) > 0 && !slices.Contains(c.Actions, e.Action) {
		return false
	}
	if len(c.SubjectTypes) > 0 && !slices.Contains(c.SubjectTypes, e.SubjectType) {
		return false
	}
	if len(c.ActorIDs) > 0 && !slices.Contains(c.ActorIDs, e.ActorID) {
		return false
	}
	if len(c.IPAddresses) > 0 && !slices.Contains(c.IPAddresses, e.IPAddress) {
		return false
	}
	return true
}

// IsEmpty reports whether no condition list is present (rule matches every entry).
func (c TriggerConditions) IsEmpty() bool {
	return len(c.Actions) == 0 && len(c.SubjectTypes) == 0 &&
		len(c.ActorIDs) == 0 && len(c.IPAddresses) == 0
}

// AlertRule is a tenant-scoped trigger. Rules are never deleted, only
// deactivated, so incident history keeps a valid rule reference.
type AlertRule struct {
	ID         id.RuleID
	TenantID   id.TenantID
	Name       string
	Conditions TriggerConditions
	// Severity assigned to incidents this rule raises. Empty means the
	// engine applies the MEDIUM default at incident creation.
	Severity  audit.Severity
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RuleUpdate carries the mutable fields of a rule. Nil pointers leave the
// current value unchanged.
type RuleUpdate struct {
	Name       *string
	Conditions *TriggerConditions
	Severity   *audit.Severity
	Active     *bool
}

// Incident is created exactly once per (rule, entry) match. Immutable except
// for the resolution fields, which transition once.
type Incident struct {
	ID       id.IncidentID
	TenantID id.TenantID
	RuleID   id.RuleID
	Severity audit.Severity

	// Trigger snapshot of the matched entry.
	EntryID     id.EntryID
	Action      audit.Action
	SubjectType string

	Message    string
	Note       string
	CreatedAt  time.Time
	ResolvedAt *time.Time
	ResolvedBy id.ActorID
}

// Resolved reports whether the incident has been closed.
func (i *Incident) Resolved() bool { return i.ResolvedAt != nil }

// IncidentFilter bounds incident listings. Zero values impose no constraint.
type IncidentFilter struct {
	RuleID   id.RuleID
	Severity audit.Severity
	// Resolved filters by state when set: true for closed, false for open.
	Resolved *bool
	Limit    int
}

// Matches reports whether the incident satisfies every set filter field.
func (f IncidentFilter) Matches(i *Incident) bool {
	if !f.RuleID.IsNil() && i.RuleID != f.RuleID {
		return false
	}
	if f.Severity != "" && i.Severity != f.Severity {
		return false
	}
	if f.Resolved != nil && i.Resolved() != *f.Resolved {
		return false
	}
	return true
}
