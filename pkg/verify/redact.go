package verify

import "regexp"

const MaskedValue = "***REDACTED***"

// secretPattern matches key=value or key: value pairs whose key names
// a well-known secret field, case-insensitively, with optional
// whitespace around the = or : and optional quoting. A key followed
// only by whitespace (e.g. "Bearer abc") is not matched.
var secretPattern = regexp.MustCompile(
	`(?i)(api_key|token|password|secret|bearer)\s*[:=]\s*['"]?[^\s'"]+['"]?`,
)

// RedactSecrets replaces recognized secret values in text with
// MaskedValue, preserving the key name for readability.
func RedactSecrets(text string) string {
	return secretPattern.ReplaceAllStringFunc(text, func(match string) string {
		idx := indexOfSeparator(match)
		if idx < 0 {
			return MaskedValue
		}
		return match[:idx+1] + " " + MaskedValue
	})
}

func indexOfSeparator(s string) int {
	for i, r := range s {
		if r == ':' || r == '=' {
			return i
		}
	}
	return -1
}
