package auth

import (
	"strings"

	"golang.org/x/text/language"
)

// LanguageSet is the set of installed interface languages.
type LanguageSet struct {
	installed map[string]bool
}

// NewLanguageSet builds the set from language codes such as "en" or "pt_br".
// Codes that do not parse as BCP 47 tags are dropped.
func NewLanguageSet(codes []string) LanguageSet {
	set := LanguageSet{installed: make(map[string]bool, len(codes))}
	for _, code := range codes {
		if tag, ok := parseCode(code); ok {
			set.installed[tag.String()] = true
		}
	}
	return set
}

// Valid reports whether code names an installed language.
func (s LanguageSet) Valid(code string) bool {
	tag, ok := parseCode(code)
	if !ok {
		return false
	}
	return s.installed[tag.String()]
}

// Canonical returns the directory spelling of a code ("pt-BR" -> "pt_br").
func Canonical(code string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(code)), "-", "_")
}

func parseCode(code string) (language.Tag, bool) {
	code = strings.TrimSpace(code)
	if code == "" {
		return language.Und, false
	}
	tag, err := language.Parse(strings.ReplaceAll(code, "_", "-"))
	if err != nil {
		return language.Und, false
	}
	return tag, true
}
