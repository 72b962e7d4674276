// Package schema describes the columns a user upload file may carry.
//
// It is a leaf package: it knows which columns are profile fields, which are
// mandatory when a user is created, which are option flags and which are
// directives consumed after the user record itself has been written. It does
// not know anything about the directory the rows are reconciled against.
package schema

import "strings"

// FieldSpec describes a single recognised column.
type FieldSpec struct {
	Name      string // Column header name (lower-case)
	Mandatory bool   // Must be present and non-empty when the user is created
	Option    bool   // Option flag with a default (deleted, suspended, oldusername)
	Directive bool   // Only steers processing; never stored on the record
	Identity  bool   // Part of the natural key or assigned by the store
}

// UserFieldSpecs lists every standard column in canonical order.
// Iteration over profile fields always follows this order so that merges and
// reports are deterministic.
var UserFieldSpecs = []FieldSpec{
	{Name: "id", Identity: true},
	{Name: "username", Mandatory: true, Identity: true},
	{Name: "email", Mandatory: true},
	{Name: "city"},
	{Name: "country"},
	{Name: "lang"},
	{Name: "timezone"},
	{Name: "mailformat"},
	{Name: "firstname", Mandatory: true},
	{Name: "maildisplay"},
	{Name: "maildigest"},
	{Name: "htmleditor"},
	{Name: "autosubscribe"},
	{Name: "institution"},
	{Name: "department"},
	{Name: "idnumber"},
	{Name: "skype"},
	{Name: "lastname", Mandatory: true},
	{Name: "msn"},
	{Name: "aim"},
	{Name: "yahoo"},
	{Name: "icq"},
	{Name: "phone1"},
	{Name: "phone2"},
	{Name: "address"},
	{Name: "url"},
	{Name: "description"},
	{Name: "descriptionformat"},
	{Name: "password"},
	{Name: "auth"},
	{Name: "oldusername", Option: true, Directive: true},
	{Name: "suspended", Option: true},
	{Name: "deleted", Option: true, Directive: true},
	{Name: "mnethostid", Identity: true},
}

// ProfileFieldPrefix marks custom profile field columns (profile_field_<shortname>).
const ProfileFieldPrefix = "profile_field_"

var specsByName = func() map[string]FieldSpec {
	m := make(map[string]FieldSpec, len(UserFieldSpecs))
	for _, spec := range UserFieldSpecs {
		m[spec.Name] = spec
	}
	return m
}()

// Lookup returns the spec for a standard column.
func Lookup(name string) (FieldSpec, bool) {
	spec, ok := specsByName[strings.ToLower(name)]
	return spec, ok
}

// IsValidField reports whether a column is copied into the record projection.
func IsValidField(name string) bool {
	_, ok := specsByName[strings.ToLower(name)]
	return ok
}

// IsProfileField reports whether a column is a custom profile field.
func IsProfileField(name string) bool {
	return strings.HasPrefix(strings.ToLower(name), ProfileFieldPrefix) &&
		len(name) > len(ProfileFieldPrefix)
}

// ProfileShortname strips the profile field prefix.
func ProfileShortname(name string) string {
	return strings.TrimPrefix(strings.ToLower(name), ProfileFieldPrefix)
}

// MandatoryFields returns the columns a created user must carry, in schema order.
func MandatoryFields() []string {
	var out []string
	for _, spec := range UserFieldSpecs {
		if spec.Mandatory {
			out = append(out, spec.Name)
		}
	}
	return out
}

// ProfileFields returns the columns stored in a record's field map.
// Identity columns, password, auth and the option flags have dedicated
// record attributes and are excluded.
func ProfileFields() []string {
	var out []string
	for _, spec := range UserFieldSpecs {
		if spec.Identity || spec.Option || spec.Directive {
			continue
		}
		if spec.Name == "password" || spec.Name == "auth" {
			continue
		}
		out = append(out, spec.Name)
	}
	return out
}

// Options holds the option flags of a row after defaults were applied.
type Options struct {
	Deleted      bool
	Suspended    bool
	SuspendedSet bool   // The row supplied a non-empty suspended value
	OldUsername  string // Empty when the row is not a rename
}

// ParseOptions extracts the option flags from a row.
// Defaults: deleted=false, suspended=false, oldusername absent.
func ParseOptions(row map[string]string) Options {
	var opts Options

	if v := strings.TrimSpace(row["deleted"]); v != "" {
		opts.Deleted = Truthy(v)
	}
	if v := strings.TrimSpace(row["suspended"]); v != "" {
		opts.Suspended = Truthy(v)
		opts.SuspendedSet = true
	}
	opts.OldUsername = strings.TrimSpace(row["oldusername"])

	return opts
}

// ParseBool converts common spreadsheet boolean spellings.
// ok is false when the value is empty or not recognised.
func ParseBool(s string) (value bool, ok bool) {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "true", "t", "yes", "y", "1":
		return true, true
	case "false", "f", "no", "n", "0":
		return false, true
	default:
		return false, false
	}
}

// Truthy reports whether a non-empty flag value should count as set.
// Unrecognised non-empty values count as set, matching loose CSV exports
// that write "x" or "on".
func Truthy(s string) bool {
	if v, ok := ParseBool(s); ok {
		return v
	}
	return strings.TrimSpace(s) != ""
}
