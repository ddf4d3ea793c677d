package validation

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// StripUnprintable removes non-printable characters, keeping tab, newline and
// carriage return.
func StripUnprintable(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) || r == '\t' || r == '\n' || r == '\r' {
			return r
		}
		return -1
	}, s)
}

// ForLog prepares untrusted text (email subjects, response snippets) for a log
// attribute: unprintable runes are dropped, line breaks flattened and the
// result cut to limit runes.
func ForLog(s string, limit int) string {
	s = StripUnprintable(s)
	s = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "\t", " ").Replace(s)
	s = strings.TrimSpace(s)
	if limit > 0 && utf8.RuneCountInString(s) > limit {
		runes := []rune(s)
		return string(runes[:limit]) + "..."
	}
	return s
}
