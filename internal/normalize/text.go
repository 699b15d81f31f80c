package normalize

import "strings"

// EqualFoldTrimmed compares vendor enum values ("opened", "DISMISS", "severity") loosely.
func EqualFoldTrimmed(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// OrDefault returns the trimmed value, or def when nothing is left.
func OrDefault(value, def string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return def
}

// Collapse folds runs of whitespace into single spaces.
func Collapse(value string) string {
	return strings.Join(strings.Fields(value), " ")
}
