package sink

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxDBFName is the longest field name a dBASE III header can hold.
const maxDBFName = 10

// Letters without a canonical decomposition, so NFD leaves them alone.
var foldReplacer = strings.NewReplacer(
	"ł", "l", "Ł", "L",
	"đ", "d", "Đ", "D",
	"ø", "o", "Ø", "O",
	"ß", "ss",
)

// foldASCII strips diacritics and replaces anything outside [A-Za-z0-9_].
func foldASCII(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, foldReplacer.Replace(s))
	if err != nil {
		folded = s
	}

	var b strings.Builder
	for _, r := range folded {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)), r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// dbfNames maps output field names to unique DBF-safe names of at most
// maxDBFName bytes. Case is kept, but names that collide ignoring case or
// after truncation get a numeric suffix.
func dbfNames(names []string) []string {
	out := make([]string, len(names))
	used := make(map[string]bool, len(names))
	for i, name := range names {
		base := foldASCII(name)
		if base == "" {
			base = "field"
		}
		if len(base) > maxDBFName {
			base = base[:maxDBFName]
		}

		candidate := base
		for n := 1; used[strings.ToUpper(candidate)]; n++ {
			suffix := "_" + strconv.Itoa(n)
			stem := base
			if len(stem)+len(suffix) > maxDBFName {
				stem = stem[:maxDBFName-len(suffix)]
			}
			candidate = stem + suffix
		}
		used[strings.ToUpper(candidate)] = true
		out[i] = candidate
	}
	return out
}
