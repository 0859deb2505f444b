// Package textutil holds small text helpers shared by steps and sinks.
package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// TruncationNotice is appended to text cut by TruncateWithNotice.
const TruncationNotice = "\n\n[...truncated to fit token budget]"

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// TruncateWithNotice cuts s to n runes and marks the cut.
func TruncateWithNotice(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return Truncate(s, n) + TruncationNotice
}

// Slugify turns s into a lowercase ASCII, hyphen separated, filesystem-safe
// name of at most maxRunes. Accents are folded (é -> e). Empty results fall
// back to "untitled".
func Slugify(s string, maxRunes int) string {
	folder := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(folder, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastHyphen = false
			continue
		}
		if !lastHyphen {
			b.WriteByte('-')
			lastHyphen = true
		}
	}

	slug := strings.Trim(b.String(), "-")
	if maxRunes > 0 && len(slug) > maxRunes {
		slug = strings.TrimRight(slug[:maxRunes], "-")
	}
	if slug == "" {
		return "untitled"
	}
	return slug
}
