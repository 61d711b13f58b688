package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTitleCaseKey(t *testing.T) {
	cases := map[string]string{
		"new_page_key":       "New Page Key",
		"email_capture":      "Email Capture",
		"checkout":           "Checkout",
		"social-proof-intro": "Social Proof Intro",
		"already Titled":     "Already Titled",
		"":                   "",
		"__":                 "",
	}
	for in, want := range cases {
		assert.Equal(t, want, TitleCaseKey(in), "key %q", in)
	}
}

func TestStartOfUTCDay(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)

	// 23:30 EST on March 9 is already March 10 in UTC.
	late := time.Date(2025, 3, 9, 23, 30, 0, 0, est)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), StartOfUTCDay(late))

	noon := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), StartOfUTCDay(noon))
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "abc", TruncateString("abc", 5))
	assert.Equal(t, "abcde", TruncateString("abcdefgh", 5))
	assert.Equal(t, "", TruncateString("", 5))
}
