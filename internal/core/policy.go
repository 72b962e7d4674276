package core

import (
	"errors"
	"fmt"
	"maps"
	"strings"
)

// ImportMode decides whether rows may create users, update users, or both.
type ImportMode int

const (
	// CreateNew adds new users and rejects rows for existing ones.
	CreateNew ImportMode = iota + 1
	// CreateAll adds every row, renaming the username when it collides.
	CreateAll
	// CreateOrUpdate adds new users and updates existing ones.
	CreateOrUpdate
	// UpdateOnly updates existing users and rejects the rest.
	UpdateOnly
)

var importModeNames = map[ImportMode]string{
	CreateNew:      "createnew",
	CreateAll:      "createall",
	CreateOrUpdate: "createorupdate",
	UpdateOnly:     "update",
}

func (m ImportMode) String() string {
	if s, ok := importModeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("ImportMode(%d)", int(m))
}

// UpdateMode decides how existing users are merged with row data.
type UpdateMode int

const (
	UpdateNothing UpdateMode = iota
	UpdateDataOnly
	UpdateDataOrDefaults
	UpdateMissingOnly
)

var updateModeNames = map[UpdateMode]string{
	UpdateNothing:        "nothing",
	UpdateDataOnly:       "dataonly",
	UpdateDataOrDefaults: "dataordefaults",
	UpdateMissingOnly:    "missingonly",
}

func (m UpdateMode) String() string {
	if s, ok := updateModeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("UpdateMode(%d)", int(m))
}

// PasswordMode decides where passwords of new users come from.
type PasswordMode int

const (
	// PasswordGenerate generates a password when the row has none.
	PasswordGenerate PasswordMode = iota
	// PasswordField requires the row to carry the password.
	PasswordField
)

var passwordModeNames = map[PasswordMode]string{
	PasswordGenerate: "generate",
	PasswordField:    "field",
}

func (m PasswordMode) String() string {
	if s, ok := passwordModeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("PasswordMode(%d)", int(m))
}

// ForcePasswordChange decides which users must change their password at
// next login.
type ForcePasswordChange int

const (
	ForceNone ForcePasswordChange = iota
	ForceWeak
	ForceAll
)

var forceNames = map[ForcePasswordChange]string{
	ForceNone: "none",
	ForceWeak: "weak",
	ForceAll:  "all",
}

func (f ForcePasswordChange) String() string {
	if s, ok := forceNames[f]; ok {
		return s
	}
	return fmt.Sprintf("ForcePasswordChange(%d)", int(f))
}

// Policy is the immutable configuration of one run.
type Policy struct {
	ImportMode          ImportMode
	UpdateMode          UpdateMode
	PasswordMode        PasswordMode
	ForcePasswordChange ForcePasswordChange

	AllowRenames      bool
	AllowDeletes      bool
	AllowSuspends     bool
	Standardise       bool
	UpdatePassword    bool
	NoEmailDuplicates bool

	// Defaults are substituted for empty row values on create and, depending
	// on UpdateMode, on update.
	Defaults map[string]string
}

// CanUpdate reports whether existing users may be modified.
func (p Policy) CanUpdate() bool {
	return p.ImportMode == CreateOrUpdate || p.ImportMode == UpdateOnly
}

// CanCreate reports whether new users may be added.
func (p Policy) CanCreate() bool {
	return p.ImportMode != UpdateOnly
}

// Default returns the configured default for a field.
func (p Policy) Default(field string) string {
	return p.Defaults[field]
}

// Validate checks that every enum carries a known value.
func (p Policy) Validate() error {
	var errs []error
	if _, ok := importModeNames[p.ImportMode]; !ok {
		errs = append(errs, fmt.Errorf("unknown import mode %d", int(p.ImportMode)))
	}
	if _, ok := updateModeNames[p.UpdateMode]; !ok {
		errs = append(errs, fmt.Errorf("unknown update mode %d", int(p.UpdateMode)))
	}
	if _, ok := passwordModeNames[p.PasswordMode]; !ok {
		errs = append(errs, fmt.Errorf("unknown password mode %d", int(p.PasswordMode)))
	}
	if _, ok := forceNames[p.ForcePasswordChange]; !ok {
		errs = append(errs, fmt.Errorf("unknown force password change %d", int(p.ForcePasswordChange)))
	}
	return errors.Join(errs...)
}

func (p Policy) clone() Policy {
	p.Defaults = maps.Clone(p.Defaults)
	if p.Defaults == nil {
		p.Defaults = make(map[string]string)
	}
	return p
}

// PolicyOptions is the textual form of a Policy, as given on the command
// line or in an HTTP request. Empty enum strings take their defaults.
type PolicyOptions struct {
	Mode                string            `json:"mode"`
	UpdateMode          string            `json:"update_mode"`
	PasswordMode        string            `json:"password_mode"`
	ForcePasswordChange string            `json:"force_password_change"`
	AllowRenames        bool              `json:"allow_renames"`
	AllowDeletes        bool              `json:"allow_deletes"`
	AllowSuspends       bool              `json:"allow_suspends"`
	Standardise         bool              `json:"standardise"`
	UpdatePassword      bool              `json:"update_password"`
	NoEmailDuplicates   bool              `json:"no_email_duplicates"`
	Defaults            map[string]string `json:"defaults,omitempty"`
}

// DefaultPolicyOptions returns the option set used when a caller supplies
// nothing: add new users only, generate missing passwords.
func DefaultPolicyOptions() PolicyOptions {
	return PolicyOptions{
		Mode:                "createnew",
		UpdateMode:          "nothing",
		PasswordMode:        "generate",
		ForcePasswordChange: "none",
		AllowSuspends:       true,
		Standardise:         true,
		NoEmailDuplicates:   true,
	}
}

// ParsePolicy converts textual options into a Policy.
func ParsePolicy(opts PolicyOptions) (Policy, error) {
	var errs []error

	mode, err := parseEnum("mode", opts.Mode, "createnew", importModeNames)
	errs = appendErr(errs, err)
	update, err := parseEnum("update mode", opts.UpdateMode, "nothing", updateModeNames)
	errs = appendErr(errs, err)
	password, err := parseEnum("password mode", opts.PasswordMode, "generate", passwordModeNames)
	errs = appendErr(errs, err)
	force, err := parseEnum("force password change", opts.ForcePasswordChange, "none", forceNames)
	errs = appendErr(errs, err)

	if err := errors.Join(errs...); err != nil {
		return Policy{}, err
	}

	p := Policy{
		ImportMode:          mode,
		UpdateMode:          update,
		PasswordMode:        password,
		ForcePasswordChange: force,
		AllowRenames:        opts.AllowRenames,
		AllowDeletes:        opts.AllowDeletes,
		AllowSuspends:       opts.AllowSuspends,
		Standardise:         opts.Standardise,
		UpdatePassword:      opts.UpdatePassword,
		NoEmailDuplicates:   opts.NoEmailDuplicates,
		Defaults:            opts.Defaults,
	}
	return p.clone(), nil
}

func parseEnum[T comparable](what, value, fallback string, names map[T]string) (T, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		v = fallback
	}
	for k, name := range names {
		if name == v {
			return k, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", what, value)
}

func appendErr(errs []error, err error) []error {
	if err != nil {
		return append(errs, err)
	}
	return errs
}
