// Package models defines compliance checkpoint domain types.
package models

import (
	"time"

	id "veritrail/pkg/domain"
)

// Status is a checkpoint's verification state. The only transition is
// PENDING_VERIFICATION to COMPLIANT; there is no revert.
type Status string

const (
	StatusPendingVerification Status = "PENDING_VERIFICATION"
	StatusCompliant           Status = "COMPLIANT"
)

// Statistics is the frozen snapshot of log counts captured at checkpoint
// creation. Counts are advisory, taken without blocking writers, so they
// reflect the log as of the read time rather than a consistency boundary.
type Statistics struct {
	TotalEntries   int64 `json:"totalEntries"`
	ChangeRecords  int64 `json:"changeRecords"`
	AccessRecords  int64 `json:"accessRecords"`
	LoginRecords   int64 `json:"loginRecords"`
	APICallRecords int64 `json:"apiCallRecords"`
}

// Checkpoint ties a frozen statistics snapshot to a compliance requirement.
type Checkpoint struct {
	ID          id.CheckpointID
	TenantID    id.TenantID
	Name        string
	SubjectType string
	SubjectID   string
	Requirement string
	Status      Status
	Statistics  Statistics
	ExpiresAt   *time.Time
	CreatedAt   time.Time
	VerifiedAt  *time.Time
	VerifiedBy  id.ActorID
}

// Verified reports whether the checkpoint has transitioned to COMPLIANT.
func (c *Checkpoint) Verified() bool { return c.Status == StatusCompliant }
