package redact

import (
	"regexp"
	"strings"

	"github.com/ppiankov/intentgov/internal/model"
)

// DefaultSensitiveKeys are argument names whose values never reach a log line.
var DefaultSensitiveKeys = []string{
	"password", "passwd", "token", "secret", "api_key", "apikey",
	"authorization", "credit_card", "card_number", "cvv", "ssn",
}

// Mask is the placeholder written in place of a sensitive value.
const Mask = "***"

// credKVRe finds key=value and key: value pairs whose key suggests a secret.
var credKVRe = regexp.MustCompile(`(?i)\b(password|passwd|secret|token|api_key|apikey|authorization)([ \t]*[=:][ \t]*)\S+`)

// MaskValue replaces a value with "***". Numbers and bools are preserved.
func MaskValue(v any) any {
	switch v.(type) {
	case int, int64, float64, bool:
		return v
	case nil:
		return nil
	default:
		return Mask
	}
}

func keySet(extra []string) map[string]bool {
	set := make(map[string]bool, len(DefaultSensitiveKeys)+len(extra))
	for _, k := range DefaultSensitiveKeys {
		set[k] = true
	}
	for _, k := range extra {
		set[strings.ToLower(k)] = true
	}
	return set
}

// Args returns a copy of args with sensitive values masked. Order is kept.
// A key matches when it equals a sensitive key or ends with "_<key>".
func Args(args model.Args, extraKeys []string) model.Args {
	set := keySet(extraKeys)
	out := make(model.Args, len(args))
	for i, a := range args {
		out[i] = a
		if sensitive(set, a.Name) {
			out[i].Value = MaskValue(a.Value)
		}
	}
	return out
}

// Map redacts sensitive keys in a map.
func Map(data map[string]any, extraKeys []string) map[string]any {
	set := keySet(extraKeys)
	result := make(map[string]any, len(data))
	for k, v := range data {
		if sensitive(set, k) {
			result[k] = MaskValue(v)
		} else {
			result[k] = v
		}
	}
	return result
}

func sensitive(set map[string]bool, name string) bool {
	lower := strings.ToLower(name)
	if set[lower] {
		return true
	}
	if i := strings.LastIndexByte(lower, '_'); i >= 0 {
		return set[lower[i+1:]]
	}
	return false
}

// Text masks inline credentials such as "token=abc123" in free text.
func Text(s string) string {
	return credKVRe.ReplaceAllString(s, "${1}${2}"+Mask)
}
