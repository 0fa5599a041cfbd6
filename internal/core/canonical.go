package core

import (
	"strings"
	"unicode"
)

// MinExternalIDLength is the shortest digit run accepted as an external ID.
// Bulk parsing also uses it to tell IDs apart from short codes.
const MinExternalIDLength = 15

var nameSeparators = strings.NewReplacer("_", " ", "-", " ")

// CanonicalName folds a raw name into its lookup key: underscores and hyphens
// become spaces, surrounding whitespace is trimmed and the result is lower-cased.
func CanonicalName(raw string) string {
	return strings.ToLower(strings.TrimSpace(nameSeparators.Replace(raw)))
}

// CanonicalCode folds a raw code into its lookup key: lower-cased with all
// whitespace removed, so "C -48" and "c-48" compare equal.
func CanonicalCode(raw string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, raw)
}

// IsValidExternalID reports whether raw, once trimmed, is at least
// MinExternalIDLength ASCII digits.
func IsValidExternalID(raw string) bool {
	s := strings.TrimSpace(raw)
	if len(s) < MinExternalIDLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
