package encryptedir

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalizer transforms input strings into a canonical form before computing blind indexes.
// It runs before the configured Unicode normalization and case folding.
//
// IMPORTANT: Use the SAME normalizer on both write and search.
// Mixing normalizers breaks lookups.
type Normalizer func(string) string

// Unicode normalization forms accepted by BlindIndexConfig.UnicodeNormalize.
const (
	FormNFC  = "NFC"
	FormNFD  = "NFD"
	FormNFKC = "NFKC"
	FormNFKD = "NFKD"
	FormNone = ""
)

// unicodeForm maps a normalization form name to its x/text implementation.
// ok is false for unknown names; FormNone returns ok with apply=false.
func unicodeForm(name string) (form norm.Form, apply, ok bool) {
	switch strings.ToUpper(name) {
	case FormNone:
		return 0, false, true
	case FormNFC:
		return norm.NFC, true, true
	case FormNFD:
		return norm.NFD, true, true
	case FormNFKC:
		return norm.NFKC, true, true
	case FormNFKD:
		return norm.NFKD, true, true
	default:
		return 0, false, false
	}
}

// NormalizeEmail normalizes email addresses for case-insensitive lookup.
// Applies: lowercase + trim whitespace.
//
// Example: " Alice@Example.COM " -> "alice@example.com"
var NormalizeEmail Normalizer = func(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizePhone normalizes phone numbers by extracting ASCII digits only.
//
// Example: "(555) 123-4567" -> "5551234567"
var NormalizePhone Normalizer = digitsOnly

// NormalizeSSN reduces a social security number to its nine digits, so
// "123-45-6789", "123 45 6789" and "123456789" share one index.
var NormalizeSSN Normalizer = digitsOnly

// NormalizeAccount strips spaces and dashes from account numbers but keeps case.
//
// Example: "ACC-1234 5678" -> "ACC12345678"
var NormalizeAccount Normalizer = func(s string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, s)
}

// NormalizeNone is an identity normalizer that returns the input unchanged.
var NormalizeNone Normalizer = func(s string) string {
	return s
}

// NormalizeTrim normalizes by trimming leading and trailing whitespace only.
// Preserves case.
var NormalizeTrim Normalizer = func(s string) string {
	return strings.TrimSpace(s)
}

// NormalizeLower normalizes to lowercase only (no trim).
var NormalizeLower Normalizer = func(s string) string {
	return strings.ToLower(s)
}

func digitsOnly(s string) string {
	var digits strings.Builder
	digits.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	return digits.String()
}
