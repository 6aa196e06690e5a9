package match

import (
	"net/url"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var foldCaser = cases.Fold()

// NormalizeURL strips the query string, fragment and trailing slash and
// lowercases the scheme and host, so color/size/tracking variants of the
// same product page compare equal.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		// Unparseable URLs degrade to trimmed string comparison.
		return strings.TrimSuffix(raw, "/")
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimSuffix(u.Path, "/")
	return strings.TrimSuffix(u.String(), "/")
}

// CanonicalTitle produces the comparison form of a product title:
// Unicode NFKC, case folded, punctuation dropped, whitespace collapsed.
func CanonicalTitle(title string) string {
	t := norm.NFKC.String(title)
	t = foldCaser.String(t)

	var b strings.Builder
	b.Grow(len(t))
	lastSpace := true
	for _, r := range t {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSpace = false
		case r >= 0x80: // keep non-ASCII letters as-is
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// titleTokens returns the sorted unique tokens of a canonical title.
func titleTokens(canonical string) []string {
	fields := strings.Fields(canonical)
	seen := make(map[string]bool, len(fields))
	var out []string
	for _, f := range fields {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}
