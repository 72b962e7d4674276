package core

import (
	"context"
	"errors"
	"time"

	"github.com/JonMunkholm/uploaduser/internal/auth"
)

// ErrNotFound is returned by a Directory when no user matches.
var ErrNotFound = errors.New("user not found")

// ErrContractViolation is returned when the engine is driven out of order,
// for example committing a rejected or already committed plan.
var ErrContractViolation = errors.New("engine contract violation")

// Directory answers read-only questions about stored users.
type Directory interface {
	// Lookup finds a live (not deleted) user by identity.
	Lookup(ctx context.Context, username string, hostID int64) (*Record, error)
	// LookupByID finds a live user by id.
	LookupByID(ctx context.Context, id int64) (*Record, error)
	// EmailOwnedByOther reports whether a live user other than excludeID
	// already uses email. Comparison is case-insensitive.
	EmailOwnedByOther(ctx context.Context, email string, excludeID int64) (bool, error)
}

// Executor persists changes to the directory.
type Executor interface {
	Create(ctx context.Context, rec *Record) (int64, error)
	Update(ctx context.Context, rec *Record) error
	Delete(ctx context.Context, rec *Record) error
	SetPreference(ctx context.Context, userID int64, name, value string) error
}

// SessionInvalidator ends the active sessions of a user.
type SessionInvalidator interface {
	InvalidateSessions(ctx context.Context, userID int64) error
}

// Enrolment is one resolved course directive.
type Enrolment struct {
	Course    string
	Role      string
	Group     string
	Start     time.Time
	Period    time.Duration
	Suspended bool
}

// DirectiveExecutor applies post-commit membership directives.
type DirectiveExecutor interface {
	// AddCohortMember adds the user to cohort, creating the cohort when it
	// does not exist. created reports whether it had to be created.
	AddCohortMember(ctx context.Context, userID int64, cohort string) (created bool, err error)
	AssignSystemRole(ctx context.Context, userID int64, role string) error
	UnassignSystemRole(ctx context.Context, userID int64, role string) error
	Enrol(ctx context.Context, userID int64, e Enrolment) error
}

// AuthResolver resolves auth method names to installed plugins.
type AuthResolver interface {
	Resolve(method string) (auth.Plugin, error)
	Supported(method string) bool
}

// PasswordHasher hashes clear text passwords for storage.
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// PasswordChecker returns a non-nil error for passwords that fail the site
// password policy.
type PasswordChecker interface {
	Check(password string) error
}

// LanguageValidator reports whether a language code is installed.
type LanguageValidator interface {
	Valid(code string) bool
}

// RowSource yields input rows in file order. Next returns io.EOF after the
// last row.
type RowSource interface {
	Next() (line int, row RawRow, err error)
}

// Tracker receives row results and the run summary for reporting.
type Tracker interface {
	Start(runID string)
	RowResult(o Outcome)
	RunSummary(s Summary)
}

// RunRecorder keeps a history of finished runs.
type RunRecorder interface {
	RecordRun(ctx context.Context, s Summary) error
}
