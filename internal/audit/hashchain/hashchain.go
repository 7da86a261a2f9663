// Package hashchain computes and verifies the digests that link a tenant's
// audit entries into a tamper-evident chain.
//
// Each digest is SHA-256 over a canonical JSON projection of the entry plus
// the previous entry's digest. The projection uses a struct (not a map) so
// field order is fixed by declaration; nested metadata is a map, which
// encoding/json marshals with sorted keys, so the serialization is
// deterministic byte-for-byte across processes.
package hashchain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"veritrail/internal/audit/models"
	"veritrail/internal/audit/redact"
)

// projection is the canonical digest input. Changing field order or names
// invalidates every previously written chain.
type projection struct {
	TenantID    string         `json:"tenantId"`
	Action      string         `json:"action"`
	Category    string         `json:"category"`
	Severity    string         `json:"severity"`
	SubjectType string         `json:"subjectType"`
	SubjectID   string         `json:"subjectId"`
	ActorID     string         `json:"actorId"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   string         `json:"createdAt"`
	PrevDigest  string         `json:"previousHash"`
}

// Digest computes the chain digest for an entry given its predecessor's
// digest (empty for the first entry of a tenant). Caller-supplied integrity
// keys in metadata are stripped before hashing so they can never influence
// the result.
func Digest(entry *models.Entry, prevDigest string) (string, error) {
	actorID := ""
	if !entry.ActorID.IsNil() {
		actorID = entry.ActorID.String()
	}

	proj := projection{
		TenantID:    entry.TenantID.String(),
		Action:      string(entry.Action),
		Category:    string(entry.Category),
		Severity:    string(entry.Severity),
		SubjectType: entry.SubjectType,
		SubjectID:   entry.SubjectID,
		ActorID:     actorID,
		Metadata:    redact.StripIntegrityKeys(entry.Metadata),
		CreatedAt:   entry.CreatedAt.UTC().Format(time.RFC3339Nano),
		PrevDigest:  prevDigest,
	}

	canonical, err := json.Marshal(proj)
	if err != nil {
		return "", fmt.Errorf("marshal digest projection: %w", err)
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Stamp computes the digest for entry against prevDigest and writes both
// integrity fields onto the entry. No other field is touched. Must run inside
// the tenant's append critical section so prevDigest cannot go stale.
func Stamp(entry *models.Entry, prevDigest string) error {
	digest, err := Digest(entry, prevDigest)
	if err != nil {
		return err
	}
	entry.Digest = digest
	entry.PrevDigest = prevDigest
	return nil
}

// Extract reads the integrity fields of an already-persisted entry.
func Extract(entry *models.Entry) (digest, prevDigest string) {
	return entry.Digest, entry.PrevDigest
}

// Matches recomputes the digest for entry against the given predecessor
// digest and reports whether the stored digest agrees.
func Matches(entry *models.Entry, prevDigest string) (bool, error) {
	expected, err := Digest(entry, prevDigest)
	if err != nil {
		return false, err
	}
	return expected == entry.Digest, nil
}
