// Package store persists the user directory the upload engine reconciles
// against. Postgres backs production runs; Memory backs tests and dry runs.
//
// Both implementations satisfy core.Directory, core.Executor,
// core.DirectiveExecutor and core.RunRecorder, and both give the engine
// read-your-writes consistency: a commit is visible to the next lookup.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/JonMunkholm/uploaduser/internal/core"
)

var (
	// ErrDuplicate is returned when a write would create a second live user
	// with the same identity. The text matches the database's wording so run
	// errors map to the same user message.
	ErrDuplicate = errors.New("duplicate key: user identity already exists")

	// ErrUnknownRole is returned for role shortnames the directory lacks.
	ErrUnknownRole = errors.New("role not found")

	// ErrUnknownCourse is returned for course shortnames the directory lacks.
	ErrUnknownCourse = errors.New("course not found")
)

// RunFilter narrows a run history query.
type RunFilter struct {
	Mode    string
	Aborted *bool
	Since   time.Time
	Limit   int
	Offset  int
}

// DefaultRunLimit is the page size used when RunFilter.Limit is zero.
const DefaultRunLimit = 50

// RunHistory lists recorded runs, newest first.
type RunHistory interface {
	ListRuns(ctx context.Context, f RunFilter) ([]core.Summary, error)
	GetRun(ctx context.Context, runID string) (core.Summary, error)
}

// Directory is everything a run needs from a store.
type Directory interface {
	core.Directory
	core.Executor
	core.DirectiveExecutor
	core.RunRecorder
	RunHistory
}

var (
	_ Directory = (*Memory)(nil)
	_ Directory = (*Postgres)(nil)
)

// ErrRunNotFound is returned by GetRun for unknown run ids.
var ErrRunNotFound = errors.New("upload run not found")
