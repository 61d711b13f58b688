package utils

import (
	"strings"
	"time"
	"unicode"
)

// TitleCaseKey turns a machine step key like "new_page_key" into a
// human-readable name like "New Page Key". Underscores, hyphens and spaces
// all act as word separators.
func TitleCaseKey(key string) string {
	words := strings.FieldsFunc(key, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
	for i, w := range words {
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

// StartOfUTCDay truncates t to UTC midnight. Aggregate day bucketing has to
// be timezone-independent or re-runs from servers in different zones would
// shift entries between days.
func StartOfUTCDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// TruncateString caps s at max bytes for error detail payloads.
func TruncateString(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
