package validators

import (
	"strings"
	"unicode"
)

// SanitizeString trims s, folds runs of whitespace into one space, drops
// control characters and cuts the result to maxLen runes. Accented names
// survive intact.
func SanitizeString(s string, maxLen int) string {
	var b strings.Builder
	b.Grow(len(s))
	runes, pendingSpace := 0, false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			pendingSpace = runes > 0
			continue
		case unicode.IsControl(r):
			continue
		}
		if maxLen > 0 && runes >= maxLen {
			break
		}
		if pendingSpace {
			if maxLen > 0 && runes+1 >= maxLen {
				break
			}
			b.WriteByte(' ')
			runes++
			pendingSpace = false
		}
		b.WriteRune(r)
		runes++
	}
	return b.String()
}
