// Package slug derives URL-safe identifiers from tag names.
package slug

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gosimple/unidecode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxLength bounds a base slug. The column is wider so that a
// disambiguation suffix always fits.
const MaxLength = 100

var (
	nonSlug     = regexp.MustCompile(`[^a-z0-9_]+`)
	multiHyphen = regexp.MustCompile(`-{2,}`)
)

// Options controls how names are normalized before slugging.
type Options struct {
	// Transliterate maps non-ASCII letters to ASCII approximations with
	// unidecode instead of dropping them.
	Transliterate bool
	// Normalize replaces the built-in normalization when set. Its output is
	// still lowercased and sanitized.
	Normalize func(string) string
}

// Slugify lowercases name and turns every run of characters outside
// [a-z0-9_] into a single hyphen. The result may be empty for names made
// only of characters that cannot be represented.
func Slugify(name string, opts Options) string {
	var s string
	if opts.Normalize != nil {
		s = opts.Normalize(name)
	} else {
		s = normalize(name, opts.Transliterate)
	}

	s = strings.ToLower(s)
	s = nonSlug.ReplaceAllString(s, "-")
	s = multiHyphen.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-_")

	if utf8.RuneCountInString(s) > MaxLength {
		s = strings.TrimRight(s[:MaxLength], "-_")
	}
	return s
}

func normalize(name string, transliterate bool) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, name)
	if err != nil {
		out = name
	}
	if transliterate {
		out = unidecode.Unidecode(out)
	}
	return out
}

// Disambiguate returns base_i for the smallest i >= 1 not present in used.
func Disambiguate(base string, used map[string]bool) string {
	for i := 1; ; i++ {
		candidate := base + "_" + strconv.Itoa(i)
		if !used[candidate] {
			return candidate
		}
	}
}
