package models

import (
	"time"

	id "veritrail/pkg/domain"
)

// Action enumerates what was done to the subject of an audit entry.
type Action string

const (
	ActionCreate  Action = "CREATE"
	ActionUpdate  Action = "UPDATE"
	ActionDelete  Action = "DELETE"
	ActionRead    Action = "READ"
	ActionLogin   Action = "LOGIN"
	ActionLogout  Action = "LOGOUT"
	ActionExport  Action = "EXPORT"
	ActionAPICall Action = "API_CALL"
)

// IsValid reports whether the action is a known enum value.
func (a Action) IsValid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete, ActionRead,
		ActionLogin, ActionLogout, ActionExport, ActionAPICall:
		return true
	}
	return false
}

// Category classifies an audit entry by its primary concern.
type Category string

const (
	CategoryData       Category = "DATA"
	CategorySystem     Category = "SYSTEM"
	CategorySecurity   Category = "SECURITY"
	CategoryCompliance Category = "COMPLIANCE"
)

// IsValid reports whether the category is a known enum value.
func (c Category) IsValid() bool {
	switch c {
	case CategoryData, CategorySystem, CategorySecurity, CategoryCompliance:
		return true
	}
	return false
}

// Severity grades an audit entry or incident.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// IsValid reports whether the severity is a known enum value.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityInfo, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Entry is one link in a tenant's hash chain. Immutable once stamped: every
// field that feeds the digest projection must never change after Append
// returns, or chain verification will flag the entry.
//
// Chain invariant: for a tenant's entries in creation order,
// entry[i].PrevDigest == entry[i-1].Digest and the first entry has an empty
// PrevDigest.
type Entry struct {
	ID          id.EntryID
	TenantID    id.TenantID
	ActorID     id.ActorID // nil UUID when the action was not tied to a user
	Action      Action
	Category    Category
	Severity    Severity
	SubjectType string
	SubjectID   string
	Description string
	Metadata    map[string]any // redacted before stamping, never raw
	IPAddress   string
	UserAgent   string
	CreatedAt   time.Time

	// Integrity fields, set by the hash chain stamper.
	Digest     string
	PrevDigest string
}

// AppendRequest carries the caller-supplied fields of a new entry.
// Metadata may be arbitrarily nested; it is redacted before storage.
type AppendRequest struct {
	TenantID    id.TenantID
	ActorID     id.ActorID
	Action      Action
	Category    Category
	Severity    Severity
	SubjectType string
	SubjectID   string
	Description string
	Metadata    map[string]any
	IPAddress   string
	UserAgent   string
}

// EntryFilter bounds List and Count queries. Zero values impose no constraint.
type EntryFilter struct {
	Actions     []Action
	Category    Category
	Severity    Severity
	SubjectType string
	ActorID     id.ActorID
	Since       time.Time
	Until       time.Time
	Limit       int
}

// Matches reports whether the entry satisfies every set filter field.
func (f EntryFilter) Matches(e *Entry) bool {
	if len(f.Actions) > 0 {
		found := false
		for _, a := range f.Actions {
			if e.Action == a {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Category != "" && e.Category != f.Category {
		return false
	}
	if f.Severity != "" && e.Severity != f.Severity {
		return false
	}
	if f.SubjectType != "" && e.SubjectType != f.SubjectType {
		return false
	}
	if !f.ActorID.IsNil() && e.ActorID != f.ActorID {
		return false
	}
	if !f.Since.IsZero() && e.CreatedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.CreatedAt.After(f.Until) {
		return false
	}
	return true
}
