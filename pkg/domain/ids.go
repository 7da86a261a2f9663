// Package domain defines strongly typed identifiers shared across modules.
//
// Every identifier is a distinct type over uuid.UUID so the compiler rejects
// cross-entity mixups (passing a RuleID where a TenantID is expected). Parse
// functions validate input at trust boundaries; internal code constructs IDs
// directly from uuid values.
package domain

import (
	"github.com/google/uuid"

	dErrors "veritrail/pkg/domain-errors"
)

// TenantID identifies the tenant that owns a chain of audit entries.
type TenantID uuid.UUID

// ActorID identifies the user who performed an audited action.
type ActorID uuid.UUID

// EntryID identifies a single audit log entry.
type EntryID uuid.UUID

// RuleID identifies an alert rule.
type RuleID uuid.UUID

// IncidentID identifies an incident raised by a rule match.
type IncidentID uuid.UUID

// CheckpointID identifies a compliance checkpoint.
type CheckpointID uuid.UUID

func (id TenantID) String() string     { return uuid.UUID(id).String() }
func (id ActorID) String() string      { return uuid.UUID(id).String() }
func (id EntryID) String() string      { return uuid.UUID(id).String() }
func (id RuleID) String() string       { return uuid.UUID(id).String() }
func (id IncidentID) String() string   { return uuid.UUID(id).String() }
func (id CheckpointID) String() string { return uuid.UUID(id).String() }

func (id TenantID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id ActorID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id EntryID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id RuleID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id IncidentID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id CheckpointID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// NewTenantID returns a fresh random tenant identifier.
func NewTenantID() TenantID { return TenantID(uuid.New()) }

// NewActorID returns a fresh random actor identifier.
func NewActorID() ActorID { return ActorID(uuid.New()) }

// NewEntryID returns a fresh random entry identifier.
func NewEntryID() EntryID { return EntryID(uuid.New()) }

// NewRuleID returns a fresh random rule identifier.
func NewRuleID() RuleID { return RuleID(uuid.New()) }

// NewIncidentID returns a fresh random incident identifier.
func NewIncidentID() IncidentID { return IncidentID(uuid.New()) }

// NewCheckpointID returns a fresh random checkpoint identifier.
func NewCheckpointID() CheckpointID { return CheckpointID(uuid.New()) }

func parseUUID(kind, raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s is required", kind)
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "invalid %s", kind)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s must not be the nil UUID", kind)
	}
	return parsed, nil
}

// ParseTenantID validates and converts a string into a TenantID.
func ParseTenantID(raw string) (TenantID, error) {
	parsed, err := parseUUID("tenant id", raw)
	return TenantID(parsed), err
}

// ParseActorID validates and converts a string into an ActorID.
func ParseActorID(raw string) (ActorID, error) {
	parsed, err := parseUUID("actor id", raw)
	return ActorID(parsed), err
}

// ParseEntryID validates and converts a string into an EntryID.
func ParseEntryID(raw string) (EntryID, error) {
	parsed, err := parseUUID("entry id", raw)
	return EntryID(parsed), err
}

// ParseRuleID validates and converts a string into a RuleID.
func ParseRuleID(raw string) (RuleID, error) {
	parsed, err := parseUUID("rule id", raw)
	return RuleID(parsed), err
}

// ParseIncidentID validates and converts a string into an IncidentID.
func ParseIncidentID(raw string) (IncidentID, error) {
	parsed, err := parseUUID("incident id", raw)
	return IncidentID(parsed), err
}

// ParseCheckpointID validates and converts a string into a CheckpointID.
func ParseCheckpointID(raw string) (CheckpointID, error) {
	parsed, err := parseUUID("checkpoint id", raw)
	return CheckpointID(parsed), err
}
