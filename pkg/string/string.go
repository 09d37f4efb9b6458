// Package string normalizes request fields before validation.
package string

import "strings"

// TrimStrings trims surrounding whitespace in place.
func TrimStrings(ss ...*string) {
	for _, s := range ss {
		*s = strings.TrimSpace(*s)
	}
}

// UpperStrings trims and uppercases in place. Identifiers such as roll numbers,
// department codes and course codes are stored uppercase on the ledger.
func UpperStrings(ss ...*string) {
	for _, s := range ss {
		*s = strings.ToUpper(strings.TrimSpace(*s))
	}
}

// LowerStrings trims and lowercases in place.
func LowerStrings(ss ...*string) {
	for _, s := range ss {
		*s = strings.ToLower(strings.TrimSpace(*s))
	}
}

// LowerCamel turns an exported Go field name into its wire spelling,
// e.g. StudentID becomes studentID and PDFFile becomes pdfFile.
func LowerCamel(field string) string {
	if field == "" {
		return field
	}
	runes := []rune(field)
	n := 0
	for n < len(runes) && runes[n] >= 'A' && runes[n] <= 'Z' {
		n++
	}
	if n == 0 {
		return field
	}
	// keep the last capital of a leading acronym when a word follows it
	if n > 1 && n < len(runes) && runes[n] >= 'a' && runes[n] <= 'z' {
		n--
	}
	return strings.ToLower(string(runes[:n])) + string(runes[n:])
}
