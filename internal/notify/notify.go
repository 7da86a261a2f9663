// Package notify defines the outward notification events the audit subsystem
// raises and the backends that deliver them.
//
// Consumers (dashboards, notification delivery) subscribe to these events;
// their failure must never affect the write path, so every backend is
// best-effort from the emitting service's point of view.
package notify

import (
	"time"

	id "veritrail/pkg/domain"
)

// Kind discriminates notification events on the wire.
type Kind string

const (
	KindEntryLogged       Kind = "entry_logged"
	KindIntegrityBroken   Kind = "integrity_broken"
	KindCheckpointCreated Kind = "checkpoint_created"
	KindIncidentRaised    Kind = "incident_raised"
)

// Event is one outward notification. Exactly one of the optional reference
// fields is set depending on Kind; TenantID is always set.
type Event struct {
	Kind         Kind            `json:"kind"`
	TenantID     id.TenantID     `json:"-"`
	EntryID      id.EntryID      `json:"-"`
	RuleID       id.RuleID       `json:"-"`
	IncidentID   id.IncidentID   `json:"-"`
	CheckpointID id.CheckpointID `json:"-"`
	Action       string          `json:"action,omitempty"`
	OccurredAt   time.Time       `json:"occurredAt"`
}

// EntryLogged builds the notification raised after every successful append.
func EntryLogged(tenantID id.TenantID, entryID id.EntryID, action string, at time.Time) Event {
	return Event{Kind: KindEntryLogged, TenantID: tenantID, EntryID: entryID, Action: action, OccurredAt: at}
}

// IntegrityBroken builds the notification raised when chain verification
// detects a divergence. Detection signal only; nothing is auto-corrected.
func IntegrityBroken(tenantID id.TenantID, entryID id.EntryID, at time.Time) Event {
	return Event{Kind: KindIntegrityBroken, TenantID: tenantID, EntryID: entryID, OccurredAt: at}
}

// CheckpointCreated builds the notification raised when a compliance
// checkpoint is created.
func CheckpointCreated(tenantID id.TenantID, checkpointID id.CheckpointID, at time.Time) Event {
	return Event{Kind: KindCheckpointCreated, TenantID: tenantID, CheckpointID: checkpointID, OccurredAt: at}
}

// IncidentRaised builds the notification raised when a rule match creates an
// incident.
func IncidentRaised(tenantID id.TenantID, incidentID id.IncidentID, ruleID id.RuleID, at time.Time) Event {
	return Event{Kind: KindIncidentRaised, TenantID: tenantID, IncidentID: incidentID, RuleID: ruleID, OccurredAt: at}
}
