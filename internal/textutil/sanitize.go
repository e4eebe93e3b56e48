package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxStemLength = 64

// FoldASCII strips diacritics so "Café Ñandú" becomes "Cafe Nandu".
// Characters without an ASCII decomposition are kept as-is.
func FoldASCII(value string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, value)
	if err != nil {
		return value
	}
	return out
}

// SanitizeToken converts a string to a lowercase key-safe token. Diacritics are
// folded, letters are lowercased, digits and hyphens/underscores are kept, and
// everything else becomes an underscore. Returns "unknown" for empty input.
func SanitizeToken(value string) string {
	value = strings.TrimSpace(FoldASCII(value))
	if value == "" {
		return "unknown"
	}
	var b strings.Builder
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := collapseUnderscores(strings.Trim(b.String(), "_-"))
	if out == "" {
		return "unknown"
	}
	return out
}

// FileStem derives a bounded token from a catalog title, dropping any
// extension the title carries (Commons titles look like "File:Foo.webm").
func FileStem(title string) string {
	title = strings.TrimSpace(title)
	if idx := strings.Index(title, ":"); idx >= 0 && idx < 8 {
		title = title[idx+1:]
	}
	if dot := strings.LastIndex(title, "."); dot > 0 && len(title)-dot <= 5 {
		title = title[:dot]
	}
	stem := SanitizeToken(title)
	if len(stem) > maxStemLength {
		stem = strings.TrimRight(stem[:maxStemLength], "_-")
	}
	return stem
}

// DisplayName renders a campaign or label token for human output.
func DisplayName(value string) string {
	value = strings.ReplaceAll(strings.TrimSpace(value), "_", " ")
	return cases.Title(language.English).String(value)
}

func collapseUnderscores(value string) string {
	for strings.Contains(value, "__") {
		value = strings.ReplaceAll(value, "__", "_")
	}
	return value
}
