package core

import (
	"maps"
	"strings"
	"time"

	"github.com/JonMunkholm/uploaduser/internal/schema"
)

// RawRow maps column name (lower-case) to the raw cell value of one input line.
type RawRow map[string]string

// Has reports whether the row carries the column at all, empty or not.
func (r RawRow) Has(col string) bool {
	_, ok := r[col]
	return ok
}

// Value returns the trimmed value of a column.
func (r RawRow) Value(col string) string {
	return strings.TrimSpace(r[col])
}

func (r RawRow) clone() RawRow {
	return maps.Clone(r)
}

// Record is a user as the directory stores it. The engine never mutates a
// record it received from the directory; it always works on a Clone.
type Record struct {
	ID        int64
	Username  string
	HostID    int64
	Auth      string
	Password  string
	Suspended bool
	Confirmed bool
	SiteAdmin bool

	// Fields holds the standard profile columns keyed by schema name.
	Fields map[string]string
	// Profile holds custom profile fields keyed by shortname.
	Profile map[string]string

	TimeCreated  time.Time
	TimeModified time.Time
}

// Field returns a profile column value ("" when unset).
func (r *Record) Field(name string) string {
	if r == nil || r.Fields == nil {
		return ""
	}
	return r.Fields[name]
}

// Email returns the record's email address.
func (r *Record) Email() string { return r.Field("email") }

// IsAdmin reports whether the record is the reserved administrator account
// or a site administrator.
func (r *Record) IsAdmin() bool {
	return r != nil && (r.SiteAdmin || r.Username == schema.AdminUsername)
}

// IsGuest reports whether the record is the reserved guest account.
func (r *Record) IsGuest() bool {
	return r != nil && r.Username == schema.GuestUsername
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.Fields = maps.Clone(r.Fields)
	if out.Fields == nil {
		out.Fields = make(map[string]string)
	}
	out.Profile = maps.Clone(r.Profile)
	if out.Profile == nil {
		out.Profile = make(map[string]string)
	}
	return &out
}

func newRecord() *Record {
	return &Record{
		Fields:  make(map[string]string),
		Profile: make(map[string]string),
	}
}

// Action is what a row does to the directory.
type Action int

const (
	ActionNone Action = iota
	ActionCreate
	ActionUpdate
	ActionDelete
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	default:
		return "none"
	}
}

// Sentinel password values stored instead of a hash.
const (
	// PasswordToBeGenerated asks the directory to generate and mail a password.
	PasswordToBeGenerated = "to be generated"
	// PasswordNotCached marks users of external auth plugins.
	PasswordNotCached = "not cached"
)

// Preference names written after a commit.
const (
	PrefForcePasswordChange = "auth_forcepasswordchange"
	PrefCreatePassword      = "create_password"
)

// Status is a coded message attached to a row.
type Status struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// Messages is an ordered code -> message mapping. Codes are unique.
type Messages []Status

// Has reports whether code is present.
func (m Messages) Has(code Code) bool {
	_, ok := m.Get(code)
	return ok
}

// Get returns the message recorded for code.
func (m Messages) Get(code Code) (string, bool) {
	for _, s := range m {
		if s.Code == code {
			return s.Message, true
		}
	}
	return "", false
}

// Codes returns the codes in insertion order.
func (m Messages) Codes() []Code {
	out := make([]Code, len(m))
	for i, s := range m {
		out[i] = s.Code
	}
	return out
}

func (m *Messages) add(s Status) {
	if m.Has(s.Code) {
		return
	}
	*m = append(*m, s)
}

// Outcome is the final, reportable result of one row.
type Outcome struct {
	Line      int
	Action    Action
	Committed bool
	Record    *Record // FinalRecord; nil when the row was rejected
	ID        int64   // Assigned or existing user id, 0 when unknown
	Statuses  []Status
	Errors    Messages
	Echo      map[string]string // Identifying fields shown next to the result
}

// Rejected reports whether the row carries fatal errors.
func (o Outcome) Rejected() bool { return len(o.Errors) > 0 }

// Messages returns errors followed by advisory statuses.
func (o Outcome) Messages() []Status {
	out := make([]Status, 0, len(o.Errors)+len(o.Statuses))
	out = append(out, o.Errors...)
	out = append(out, o.Statuses...)
	return out
}

// HasStatus reports whether an advisory status with code was recorded.
func (o Outcome) HasStatus(code Code) bool {
	for _, s := range o.Statuses {
		if s.Code == code {
			return true
		}
	}
	return false
}
