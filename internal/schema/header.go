package schema

import (
	"fmt"
	"strings"
)

// CleanCell trims whitespace and spreadsheet artifacts from a cell value.
// Excel formula-escaped text (="value") and surrounding quotes are removed.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	}

	return strings.TrimSpace(s)
}

// NormalizeHeader lower-cases and trims the header row. Empty and duplicate
// column names are rejected, since rows are keyed by column name.
func NormalizeHeader(header []string) ([]string, error) {
	out := make([]string, len(header))
	seen := make(map[string]int, len(header))
	var problems []string

	for i, h := range header {
		name := strings.ToLower(CleanCell(h))
		if name == "" {
			problems = append(problems, fmt.Sprintf("column %d has no name", i+1))
			continue
		}
		if prev, ok := seen[name]; ok {
			problems = append(problems, fmt.Sprintf("duplicate column %q (columns %d and %d)", name, prev+1, i+1))
			continue
		}
		seen[name] = i
		out[i] = name
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("invalid header: %s", strings.Join(problems, "; "))
	}
	return out, nil
}

// Recognised reports whether the engine or a side-effect pass consumes a column.
func Recognised(name string) bool {
	return IsValidField(name) || IsProfileField(name) || IsDirectiveColumn(name)
}

// UnknownColumns lists header columns no part of the upload understands.
// They are ignored during processing; the caller may warn about them.
func UnknownColumns(header []string) []string {
	var out []string
	for _, h := range header {
		if !Recognised(h) {
			out = append(out, h)
		}
	}
	return out
}
