// Package validate contains the input validation engine: pure functions over
// arbitrary byte input with no side effects. Malformed encoding is a
// validation failure, never a panic.
package validate

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"medindex/internal/fault"
)

const (
	// MaxQueryLength bounds search queries after sanitization.
	MaxQueryLength = 500
	// MaxMetadataKeys bounds the number of metadata entries per document.
	MaxMetadataKeys = 50
	// MaxMetadataKeyLength bounds individual metadata key lengths.
	MaxMetadataKeyLength = 100
	// MaxMetadataValueLength bounds individual metadata string values.
	MaxMetadataValueLength = 1000
)

// injectionPatterns is the fail-closed denylist applied to search queries and
// filenames: script tags, javascript:/vbscript: URIs, data URIs, event
// handler attributes and iframe injection.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<script`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)vbscript:`),
	regexp.MustCompile(`(?i)data:`),
	regexp.MustCompile(`(?i)on\w+\s*=`),
	regexp.MustCompile(`(?i)<iframe`),
}

// SanitizeString strips control characters and null bytes (keeping tab,
// newline and carriage return), trims surrounding whitespace, and rejects
// input that is not valid UTF-8 or exceeds maxLen after sanitization.
// Re-sanitizing an accepted output is a no-op.
func SanitizeString(s string, maxLen int) (string, error) {
	if !utf8.ValidString(s) {
		return "", fault.New(fault.InvalidInput, "input is not valid UTF-8 text")
	}

	cleaned := strings.Map(func(r rune) rune {
		if r == 0x7F || (r < 0x20 && r != '\t' && r != '\n' && r != '\r') {
			return -1
		}
		return r
	}, s)
	cleaned = strings.TrimSpace(cleaned)

	// limits are in characters, not bytes, so multibyte text is not penalized
	if n := utf8.RuneCountInString(cleaned); n > maxLen {
		return "", fault.Newf(fault.InvalidInput, "string too long: %d characters (max %d)", n, maxLen)
	}
	return cleaned, nil
}

// ContainsInjection reports whether s matches the injection denylist.
func ContainsInjection(s string) bool {
	for _, p := range injectionPatterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// ValidateSearchQuery sanitizes a search query and fails closed if it is
// empty after sanitization, exceeds MaxQueryLength, or matches the injection
// denylist. Returns the sanitized query.
func ValidateSearchQuery(q string) (string, error) {
	cleaned, err := SanitizeString(q, MaxQueryLength)
	if err != nil {
		return "", err
	}
	if cleaned == "" {
		return "", fault.New(fault.InvalidInput, "search query cannot be empty")
	}
	if ContainsInjection(cleaned) {
		return "", fault.New(fault.InvalidInput, "search query contains potentially dangerous content")
	}
	return cleaned, nil
}

// ValidateMetadata validates a flat key->scalar metadata mapping. Nested
// containers are rejected; string values are sanitized in place. A nil map
// validates to nil.
func ValidateMetadata(m map[string]any) (map[string]any, error) {
	if m == nil {
		return nil, nil
	}
	if len(m) > MaxMetadataKeys {
		return nil, fault.Newf(fault.InvalidInput, "too many metadata keys: %d (max %d)", len(m), MaxMetadataKeys)
	}

	out := make(map[string]any, len(m))
	for k, v := range m {
		if !utf8.ValidString(k) {
			return nil, fault.New(fault.InvalidInput, "metadata key is not valid UTF-8 text")
		}
		if len(k) > MaxMetadataKeyLength {
			return nil, fault.Newf(fault.InvalidInput, "metadata key too long: %d characters (max %d)", len(k), MaxMetadataKeyLength)
		}
		switch val := v.(type) {
		case string:
			cleaned, err := SanitizeString(val, MaxMetadataValueLength)
			if err != nil {
				return nil, err
			}
			out[k] = cleaned
		case bool, int, int32, int64, float32, float64:
			out[k] = val
		default:
			return nil, fault.Newf(fault.InvalidInput, "metadata value for %q must be a scalar", k)
		}
	}
	return out, nil
}
