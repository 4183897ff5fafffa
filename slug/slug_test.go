package slug

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		transliterate bool
		want          string
	}{
		{"lowercase", "Python", false, "python"},
		{"spaces", "Machine Learning", false, "machine-learning"},
		{"punctuation runs", "C++ & Go!!", false, "c-go"},
		{"keeps underscore", "snake_case", false, "snake_case"},
		{"strips accents", "Crème Brûlée", false, "creme-brulee"},
		{"drops non latin", "Привет", false, ""},
		{"mixed non latin", "tag Привет", false, "tag"},
		{"cyrillic transliterated", "Привет мир", true, "privet-mir"},
		{"greek transliterated", "Ελλάδα", true, "ellada"},
		{"special letters", "Straße Øl", true, "strasse-ol"},
		{"special letters dropped", "Straße", false, "stra-e"},
		{"han transliterated", "北京", true, "bei-jing"},
		{"han dropped", "北京", false, ""},
		{"trims separators", "--hello--", false, "hello"},
		{"empty", "", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Slugify(tt.input, Options{Transliterate: tt.transliterate}))
		})
	}
}

func TestSlugifyTransliteratesEveryScript(t *testing.T) {
	for _, name := range []string{"東京", "שלום", "مرحبا", "서울", "Ελλάδα", "Москва"} {
		s := Slugify(name, Options{Transliterate: true})
		assert.NotEmpty(t, s, name)
		assert.Regexp(t, `^[a-z0-9_-]+$`, s, name)
	}
}

func TestSlugifyCustomNormalizer(t *testing.T) {
	opts := Options{Normalize: func(s string) string { return strings.ReplaceAll(s, "+", " plus ") }}
	assert.Equal(t, "c-plus-plus", Slugify("C++", opts))
}

func TestSlugifyTruncates(t *testing.T) {
	s := Slugify(strings.Repeat("ab ", 80), Options{})
	assert.LessOrEqual(t, len(s), MaxLength)
	assert.False(t, strings.HasSuffix(s, "-"))
}

func TestDisambiguate(t *testing.T) {
	assert.Equal(t, "python_1", Disambiguate("python", map[string]bool{"python": true}))
	assert.Equal(t, "python_2", Disambiguate("python", map[string]bool{"python": true, "python_1": true}))
	// gaps are reused
	assert.Equal(t, "python_2", Disambiguate("python", map[string]bool{
		"python": true, "python_1": true, "python_3": true,
	}))
	assert.Equal(t, "_1", Disambiguate("", map[string]bool{"": true}))
}
