package identity

import "strings"

// NormalizeIdentifier performs case-insensitive canonicalization of a credential name.
// Note: for now we only trim + lower-case. Additional rules (unicode confusables)
// can be added later behind a versioned policy.
func NormalizeIdentifier(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
