// Package tagstring converts between user-typed tag strings and tag names.
//
// Multiple-word tags are delimited by commas and double quotes. Quotes take
// precedence, so a quoted name may contain commas and spaces. When the input
// has no unquoted comma the unquoted parts are split on whitespace.
package tagstring

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// Parser turns a tag string into names and back. Parse must return unique
// names; Format must accept what Parse returned.
type Parser interface {
	Parse(text string) []string
	Format(names []string) string
}

// Funcs adapts a pair of functions to the Parser interface.
type Funcs struct {
	ParseFunc  func(string) []string
	FormatFunc func([]string) string
}

func (f Funcs) Parse(text string) []string   { return f.ParseFunc(text) }
func (f Funcs) Format(names []string) string { return f.FormatFunc(names) }

var (
	Default Parser = Funcs{ParseFunc: Parse, FormatFunc: Format}
	Comma   Parser = Funcs{ParseFunc: ParseComma, FormatFunc: FormatComma}
)

var parsers = map[string]Parser{
	"":        Default,
	"default": Default,
	"comma":   Comma,
}

// Lookup returns the parser configured under name.
func Lookup(name string) (Parser, error) {
	p, ok := parsers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown tag parser %q", name)
	}
	return p, nil
}

// Parse returns the sorted, unique tag names in text.
func Parse(text string) []string {
	if text == "" {
		return nil
	}

	if !strings.ContainsAny(text, `,"`) {
		return uniqueSorted(strings.Fields(text))
	}

	var (
		words         []string
		toBeSplit     []string
		buf           strings.Builder
		sawLooseComma bool
	)

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		if c != '"' {
			if c == ',' {
				sawLooseComma = true
			}
			buf.WriteRune(c)
			continue
		}

		if buf.Len() > 0 {
			toBeSplit = append(toBeSplit, buf.String())
			buf.Reset()
		}

		end := i + 1
		for end < len(runes) && runes[end] != '"' {
			end++
		}
		if end == len(runes) {
			// unterminated quote: the rest is unquoted text
			rest := string(runes[i+1:])
			if strings.Contains(rest, ",") {
				sawLooseComma = true
			}
			if rest != "" {
				toBeSplit = append(toBeSplit, rest)
			}
			i = end
			break
		}

		if word := strings.TrimSpace(string(runes[i+1 : end])); word != "" {
			words = append(words, word)
		}
		i = end
	}
	if buf.Len() > 0 {
		toBeSplit = append(toBeSplit, buf.String())
	}

	for _, chunk := range toBeSplit {
		if sawLooseComma {
			words = append(words, SplitStrip(chunk, ",")...)
		} else {
			words = append(words, strings.Fields(chunk)...)
		}
	}
	return uniqueSorted(words)
}

// Format renders names so that Parse(Format(names)) yields the same set.
// Names containing a comma or whitespace are double quoted.
func Format(names []string) string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if strings.Contains(name, ",") || strings.IndexFunc(name, unicode.IsSpace) >= 0 {
			out = append(out, `"`+name+`"`)
		} else {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return strings.Join(out, ", ")
}

// ParseComma splits on commas only. Quotes have no meaning.
func ParseComma(text string) []string {
	return uniqueSorted(SplitStrip(text, ","))
}

// FormatComma joins names with ", " without quoting.
func FormatComma(names []string) string {
	out := append([]string(nil), names...)
	sort.Strings(out)
	return strings.Join(out, ", ")
}

// SplitStrip splits s on delimiter, trims each part and drops empty ones.
func SplitStrip(s, delimiter string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, w := range strings.Split(s, delimiter) {
		if w = strings.TrimSpace(w); w != "" {
			out = append(out, w)
		}
	}
	return out
}

func uniqueSorted(words []string) []string {
	if len(words) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	sort.Strings(out)
	return out
}
