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

// fileNameReplacer replaces filesystem-unsafe characters with safe alternatives.
var fileNameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
)

// SanitizeFileName replaces filesystem-unsafe characters in a filename.
// Slashes, backslashes, colons, and asterisks become dashes; other unsafe
// characters and control characters are removed. Leading dots are dropped so
// the result is never hidden. The result is trimmed of surrounding whitespace.
func SanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	name = fileNameReplacer.Replace(name)
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = strings.TrimLeft(strings.TrimSpace(name), ".")
	return strings.TrimSpace(name)
}

// StripDiacritics folds accented letters to their base form ("Beyoncé" ->
// "Beyonce").
func StripDiacritics(value string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, value)
	if err != nil {
		return value
	}
	return out
}

// OutputName derives a portable output directory name from a source file's
// base name: diacritics are folded, unsafe characters replaced, and runs of
// whitespace collapsed to a single underscore. Returns "item" when nothing
// usable remains.
func OutputName(base string) string {
	name := SanitizeFileName(StripDiacritics(base))
	name = strings.Join(strings.Fields(name), "_")
	if name == "" {
		return "item"
	}
	return name
}

// DisplayTitle turns an output name such as "live_at_the_hall" into
// "Live At The Hall" for notifications and tables.
func DisplayTitle(name string) string {
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
	return cases.Title(language.Und).String(strings.Join(strings.Fields(name), " "))
}
