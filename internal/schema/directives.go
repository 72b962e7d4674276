package schema

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// DirectiveKind identifies the side effect a numbered column requests.
type DirectiveKind int

const (
	DirectiveCohort DirectiveKind = iota + 1
	DirectiveSystemRole
	DirectiveEnrol
)

func (k DirectiveKind) String() string {
	switch k {
	case DirectiveCohort:
		return "cohort"
	case DirectiveSystemRole:
		return "sysrole"
	case DirectiveEnrol:
		return "course"
	default:
		return "unknown"
	}
}

// Directive is one numbered assignment slot of a row, e.g. course2 together
// with role2, group2, enrolperiod2 and enrolstatus2.
type Directive struct {
	Kind   DirectiveKind
	Slot   int
	Target string // cohort id/idnumber, role shortname or course shortname

	// System roles only: a leading '-' on the column value unassigns the role.
	Unassign bool

	// Enrolment siblings.
	Type        string
	Role        string
	Group       string
	EnrolPeriod string
	EnrolStatus string
}

var directivePattern = regexp.MustCompile(`^(cohort|sysrole|course)([0-9]+)$`)

// ParseDirectives scans a row once and returns its directives sorted by kind,
// then slot. Empty slots are skipped.
func ParseDirectives(row map[string]string) []Directive {
	var out []Directive

	for col, raw := range row {
		m := directivePattern.FindStringSubmatch(strings.ToLower(col))
		if m == nil {
			continue
		}
		value := strings.TrimSpace(raw)
		if value == "" {
			continue
		}
		slot, err := strconv.Atoi(m[2])
		if err != nil || slot <= 0 {
			continue
		}

		d := Directive{Slot: slot, Target: value}
		switch m[1] {
		case "cohort":
			d.Kind = DirectiveCohort
		case "sysrole":
			d.Kind = DirectiveSystemRole
			if strings.HasPrefix(value, "-") {
				d.Unassign = true
				d.Target = strings.TrimSpace(value[1:])
			}
			if d.Target == "" {
				continue
			}
		case "course":
			d.Kind = DirectiveEnrol
			d.Type = sibling(row, "type", m[2])
			d.Role = sibling(row, "role", m[2])
			d.Group = sibling(row, "group", m[2])
			d.EnrolPeriod = sibling(row, "enrolperiod", m[2])
			d.EnrolStatus = sibling(row, "enrolstatus", m[2])
		}
		out = append(out, d)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Slot < out[j].Slot
	})
	return out
}

func sibling(row map[string]string, prefix, slot string) string {
	return strings.TrimSpace(row[prefix+slot])
}

// IsDirectiveColumn reports whether a column belongs to a directive slot.
func IsDirectiveColumn(name string) bool {
	name = strings.ToLower(name)
	if directivePattern.MatchString(name) {
		return true
	}
	for _, prefix := range []string{"type", "role", "group", "enrolperiod", "enrolstatus"} {
		rest := strings.TrimPrefix(name, prefix)
		if rest == name || rest == "" {
			continue
		}
		if _, err := strconv.Atoi(rest); err == nil {
			return true
		}
	}
	return false
}
