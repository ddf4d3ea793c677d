package utils

import (
	"strings"
	"time"
)

// CanonicalDateFormat is the YYYY-MM-DD layout every normalized date uses.
const CanonicalDateFormat = "2006-01-02"

// Now is the processing clock. Tests replace it to pin "today".
var Now = time.Now

// fullDateLayouts is tried in order; the first successful parse wins. ISO
// forms come first, and month-first (US) is preferred over day-first (EU) for
// ambiguous slash dates. Unpadded layout elements also accept padded input.
var fullDateLayouts = []string{
	"2006-1-2",
	"1/2/2006",
	"2/1/2006",
	"2006-1-2 15:04:05",
	"1/2/2006 15:04:05",
	"2-1-2006",
	"2006/1/2",
}

// yearlessDateLayouts is tried in order by NormalizeYearlessDate. Month names
// match case-insensitively.
var yearlessDateLayouts = []string{
	"1/2",
	"2/1",
	"Jan 2",
	"January 2",
}

// Today returns the processing date in canonical form.
func Today() string {
	return Now().Format(CanonicalDateFormat)
}

// NormalizeFullDate converts a date token to YYYY-MM-DD. Empty or
// unrecognized input yields today's date.
func NormalizeFullDate(token string) string {
	if d, ok := parseFullDate(token); ok {
		return d
	}
	return Today()
}

// NormalizeYearlessDate parses a month/day token and stamps the given year.
// Tokens that carry their own year are accepted as full dates. Anything else
// falls back to NormalizeFullDate, which yields today's date.
func NormalizeYearlessDate(token string, year int) string {
	token = strings.TrimSpace(token)
	if token != "" {
		for _, layout := range yearlessDateLayouts {
			t, err := time.Parse(layout, token)
			if err != nil {
				continue
			}
			stamped := time.Date(year, t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			// Feb 29 outside a leap year rolls into March; treat as unparsed.
			if stamped.Month() != t.Month() || stamped.Day() != t.Day() {
				continue
			}
			return stamped.Format(CanonicalDateFormat)
		}
		if d, ok := parseFullDate(token); ok {
			return d
		}
	}
	if d := NormalizeFullDate(token); IsCanonicalDate(d) {
		return d
	}
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).Format(CanonicalDateFormat)
}

// IsCanonicalDate reports whether s is a well-formed YYYY-MM-DD calendar date.
func IsCanonicalDate(s string) bool {
	if len(s) != len(CanonicalDateFormat) {
		return false
	}
	_, err := time.Parse(CanonicalDateFormat, s)
	return err == nil
}

func parseFullDate(token string) (string, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	for _, layout := range fullDateLayouts {
		if t, err := time.Parse(layout, token); err == nil {
			return t.Format(CanonicalDateFormat), true
		}
	}
	return "", false
}
