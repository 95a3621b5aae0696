// Package redact provides secret detection and redaction for the logging
// and telemetry boundary. Detection is by key name, not value shape.
package redact

import "strings"

// Redacted is the placeholder written in place of secret values.
const Redacted = "[REDACTED]"

// secretFragments are matched case-insensitively against key names.
var secretFragments = []string{
	"key",
	"token",
	"secret",
	"password",
	"credential",
	"auth",
}

// queryFragments mark keys whose values are user content: redacted but
// with the original length preserved for debugging.
var queryFragments = []string{
	"query",
	"prompt",
}

// IsSecretKey reports whether a key name likely refers to a secret.
func IsSecretKey(key string) bool {
	upper := strings.ToUpper(key)
	for _, fragment := range secretFragments {
		if strings.Contains(upper, strings.ToUpper(fragment)) {
			return true
		}
	}
	return false
}

// IsQueryKey reports whether a key carries query-like user content.
func IsQueryKey(key string) bool {
	lower := strings.ToLower(key)
	for _, fragment := range queryFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

// Value redacts a value based on its key: secrets become [REDACTED],
// query-like content becomes [REDACTED,len=N], everything else passes
// through unchanged.
func Value(key, value string) string {
	if IsSecretKey(key) {
		return Redacted
	}
	if IsQueryKey(key) {
		return queryPlaceholder(len(value))
	}
	return value
}

// Map returns a copy of fields with every secret-shaped value redacted.
// The input map is never mutated.
func Map(fields map[string]string) map[string]string {
	if fields == nil {
		return nil
	}
	out := make(map[string]string, len(fields))
	for key, value := range fields {
		out[key] = Value(key, value)
	}
	return out
}

func queryPlaceholder(n int) string {
	return "[REDACTED,len=" + itoa(n) + "]"
}

// itoa avoids strconv for this one hot path helper.
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	pos := len(buf)
	for n > 0 {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[pos:])
}

// Secret wraps a confirmed secret so accidental formatting never leaks it.
type Secret struct {
	value string
}

// NewSecret wraps a secret value.
func NewSecret(value string) Secret {
	return Secret{value: value}
}

// Expose returns the underlying secret.
func (s Secret) Expose() string {
	return s.value
}

// Empty reports whether the secret is unset.
func (s Secret) Empty() bool {
	return s.value == ""
}

// String implements fmt.Stringer and always redacts.
func (s Secret) String() string {
	return Redacted
}

// GoString keeps %#v from leaking the value.
func (s Secret) GoString() string {
	return Redacted
}

// MarshalJSON keeps encoding/json from leaking the value.
func (s Secret) MarshalJSON() ([]byte, error) {
	return []byte(`"` + Redacted + `"`), nil
}
