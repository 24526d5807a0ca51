package catalog

import (
	"strings"
	"unicode"
)

// IndexChar derives the browsing index entry for an artist name. Configured
// prefixes such as "The " are skipped first, then the first rune decides:
// letters map to their upper case form, digits collapse to "#" and anything
// else to "*".
func IndexChar(name string, ignorePrefixes []string) string {
	stripped := name
	for _, prefix := range ignorePrefixes {
		if rest, ok := strings.CutPrefix(name, prefix); ok && rest != "" {
			stripped = rest
			break
		}
	}

	for _, r := range stripped {
		switch {
		case unicode.IsLetter(r):
			return string(unicode.ToUpper(r))
		case unicode.IsDigit(r):
			return "#"
		default:
			return "*"
		}
	}
	return "*"
}
