// Package redact strips sensitive values from structured metadata before it
// is hashed or persisted. Redaction is irreversible and happens ahead of any
// digest computation, so redacted values never influence chain integrity.
package redact

// Marker replaces every value stored under a sensitive key.
const Marker = "[REDACTED]"

// DefaultSensitiveKeys is the built-in deny list. Matching is case-sensitive
// and exact: "Password" is not redacted by the "password" key.
var DefaultSensitiveKeys = []string{
	"password",
	"ssn",
	"taxId",
	"bankAccount",
	"cardNumber",
	"apiKey",
	"token",
	"secret",
}

// Redactor replaces values under configured sensitive keys in arbitrarily
// nested JSON-like values. The zero value is not usable; construct with New.
type Redactor struct {
	keys map[string]struct{}
}

// New builds a Redactor for the given key set. With no keys it falls back to
// DefaultSensitiveKeys.
func New(keys ...string) *Redactor {
	if len(keys) == 0 {
		keys = DefaultSensitiveKeys
	}
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return &Redactor{keys: set}
}

// Redact returns a deep copy of v with every value under a sensitive key
// replaced by Marker. Objects and arrays are recursed; scalars pass through
// unchanged. The input is never mutated.
func (r *Redactor) Redact(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			if _, sensitive := r.keys[k]; sensitive {
				out[k] = Marker
				continue
			}
			out[k] = r.Redact(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = r.Redact(inner)
		}
		return out
	default:
		return v
	}
}

// RedactMap is a convenience wrapper for the common metadata shape.
// A nil map stays nil.
func (r *Redactor) RedactMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return r.Redact(m).(map[string]any)
}

// StripIntegrityKeys removes caller-supplied integrity fields from a copy of
// the metadata. Appended entries carry their digest in dedicated columns;
// stray "hash"/"previousHash" keys smuggled in by callers must not feed the
// digest projection or a caller could influence chain verification.
func StripIntegrityKeys(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if k == "hash" || k == "previousHash" {
			continue
		}
		out[k] = v
	}
	return out
}
