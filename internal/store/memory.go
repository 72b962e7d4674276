package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/uploaduser/internal/core"
)

// Op names a Memory operation for failure injection.
type Op string

const (
	OpLookup        Op = "lookup"
	OpCreate        Op = "create"
	OpUpdate        Op = "update"
	OpDelete        Op = "delete"
	OpSetPreference Op = "set_preference"
	OpSessions      Op = "sessions"
	OpCohort        Op = "cohort"
	OpRole          Op = "role"
	OpEnrol         Op = "enrol"
)

// Memory is a thread-safe in-memory directory.
type Memory struct {
	mu sync.RWMutex

	nextID   int64
	users    map[int64]*core.Record
	deleted  map[int64]*core.Record
	prefs    map[int64]map[string]string
	sessions map[int64]int

	cohorts    map[string]map[int64]bool
	roles      map[string]bool
	roleAssign map[int64]map[string]bool
	courses    map[string]bool
	enrolments map[int64]map[string]core.Enrolment

	runs []core.Summary

	failures map[Op]error
}

// NewMemory creates an empty directory that knows the given system roles
// and courses.
func NewMemory() *Memory {
	return &Memory{
		nextID:     1,
		users:      make(map[int64]*core.Record),
		deleted:    make(map[int64]*core.Record),
		prefs:      make(map[int64]map[string]string),
		sessions:   make(map[int64]int),
		cohorts:    make(map[string]map[int64]bool),
		roles:      map[string]bool{"manager": true, "coursecreator": true},
		roleAssign: make(map[int64]map[string]bool),
		courses:    make(map[string]bool),
		enrolments: make(map[int64]map[string]core.Enrolment),
		failures:   make(map[Op]error),
	}
}

// Seed stores records as they are, assigning ids to records without one.
// It returns the ids in argument order.
func (m *Memory) Seed(recs ...*core.Record) []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]int64, len(recs))
	for i, r := range recs {
		rec := r.Clone()
		if rec.HostID == 0 {
			rec.HostID = 1
		}
		if rec.ID == 0 {
			rec.ID = m.nextID
		}
		if rec.ID >= m.nextID {
			m.nextID = rec.ID + 1
		}
		m.users[rec.ID] = rec
		ids[i] = rec.ID
	}
	return ids
}

// AddCourse registers course shortnames for enrolment directives.
func (m *Memory) AddCourse(shortnames ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range shortnames {
		m.courses[s] = true
	}
}

// StartSession records an active session for a user.
func (m *Memory) StartSession(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[userID]++
}

// FailOn makes every subsequent op return err. A nil err clears it.
func (m *Memory) FailOn(op Op, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

func (m *Memory) failure(op Op) error {
	return m.failures[op]
}

// --- core.Directory ---

func (m *Memory) Lookup(_ context.Context, username string, hostID int64) (*core.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.failure(OpLookup); err != nil {
		return nil, err
	}
	if r := m.findLocked(username, hostID); r != nil {
		return r.Clone(), nil
	}
	return nil, core.ErrNotFound
}

func (m *Memory) LookupByID(_ context.Context, id int64) (*core.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.failure(OpLookup); err != nil {
		return nil, err
	}
	if r, ok := m.users[id]; ok {
		return r.Clone(), nil
	}
	return nil, core.ErrNotFound
}

func (m *Memory) EmailOwnedByOther(_ context.Context, email string, excludeID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.failure(OpLookup); err != nil {
		return false, err
	}
	for id, r := range m.users {
		if id != excludeID && strings.EqualFold(r.Email(), email) {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) findLocked(username string, hostID int64) *core.Record {
	for _, r := range m.users {
		if r.Username == username && r.HostID == hostID {
			return r
		}
	}
	return nil
}

// --- core.Executor ---

func (m *Memory) Create(_ context.Context, rec *core.Record) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failure(OpCreate); err != nil {
		return 0, err
	}
	if m.findLocked(rec.Username, rec.HostID) != nil {
		return 0, fmt.Errorf("create %q: %w", rec.Username, ErrDuplicate)
	}

	stored := rec.Clone()
	stored.ID = m.nextID
	m.nextID++
	m.users[stored.ID] = stored
	return stored.ID, nil
}

func (m *Memory) Update(_ context.Context, rec *core.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failure(OpUpdate); err != nil {
		return err
	}
	if _, ok := m.users[rec.ID]; !ok {
		return fmt.Errorf("update user %d: %w", rec.ID, core.ErrNotFound)
	}
	if other := m.findLocked(rec.Username, rec.HostID); other != nil && other.ID != rec.ID {
		return fmt.Errorf("update %q: %w", rec.Username, ErrDuplicate)
	}
	m.users[rec.ID] = rec.Clone()
	return nil
}

// Delete soft deletes the user: it disappears from lookups and its
// sessions end.
func (m *Memory) Delete(_ context.Context, rec *core.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failure(OpDelete); err != nil {
		return err
	}
	stored, ok := m.users[rec.ID]
	if !ok {
		return fmt.Errorf("delete user %d: %w", rec.ID, core.ErrNotFound)
	}
	delete(m.users, rec.ID)
	m.deleted[rec.ID] = stored
	delete(m.sessions, rec.ID)
	return nil
}

func (m *Memory) SetPreference(_ context.Context, userID int64, name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failure(OpSetPreference); err != nil {
		return err
	}
	if m.prefs[userID] == nil {
		m.prefs[userID] = make(map[string]string)
	}
	m.prefs[userID][name] = value
	return nil
}

// --- core.SessionInvalidator ---

func (m *Memory) InvalidateSessions(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failure(OpSessions); err != nil {
		return err
	}
	delete(m.sessions, userID)
	return nil
}

// --- core.DirectiveExecutor ---

func (m *Memory) AddCohortMember(_ context.Context, userID int64, cohort string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failure(OpCohort); err != nil {
		return false, err
	}
	members, ok := m.cohorts[cohort]
	if !ok {
		members = make(map[int64]bool)
		m.cohorts[cohort] = members
	}
	members[userID] = true
	return !ok, nil
}

func (m *Memory) AssignSystemRole(_ context.Context, userID int64, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failure(OpRole); err != nil {
		return err
	}
	if !m.roles[role] {
		return fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}
	if m.roleAssign[userID] == nil {
		m.roleAssign[userID] = make(map[string]bool)
	}
	m.roleAssign[userID][role] = true
	return nil
}

func (m *Memory) UnassignSystemRole(_ context.Context, userID int64, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failure(OpRole); err != nil {
		return err
	}
	if !m.roles[role] {
		return fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}
	delete(m.roleAssign[userID], role)
	return nil
}

func (m *Memory) Enrol(_ context.Context, userID int64, e core.Enrolment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failure(OpEnrol); err != nil {
		return err
	}
	if !m.courses[e.Course] {
		return fmt.Errorf("%w: %s", ErrUnknownCourse, e.Course)
	}
	if m.enrolments[userID] == nil {
		m.enrolments[userID] = make(map[string]core.Enrolment)
	}
	m.enrolments[userID][e.Course] = e
	return nil
}

// --- core.RunRecorder and RunHistory ---

func (m *Memory) RecordRun(_ context.Context, s core.Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, s)
	return nil
}

func (m *Memory) ListRuns(_ context.Context, f RunFilter) ([]core.Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultRunLimit
	}

	var out []core.Summary
	for i := len(m.runs) - 1; i >= 0; i-- {
		s := m.runs[i]
		if f.Mode != "" && s.Mode != f.Mode {
			continue
		}
		if f.Aborted != nil && s.Aborted != *f.Aborted {
			continue
		}
		if !f.Since.IsZero() && s.StartedAt.Before(f.Since) {
			continue
		}
		out = append(out, s)
	}

	if f.Offset >= len(out) {
		return []core.Summary{}, nil
	}
	out = out[f.Offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) GetRun(_ context.Context, runID string) (core.Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.runs {
		if s.RunID == runID {
			return s, nil
		}
	}
	return core.Summary{}, ErrRunNotFound
}

// PurgeRuns drops runs that finished before cutoff.
func (m *Memory) PurgeRuns(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	before := len(m.runs)
	m.runs = slices.DeleteFunc(m.runs, func(s core.Summary) bool {
		return s.FinishedAt.Before(cutoff)
	})
	return int64(before - len(m.runs)), nil
}

// --- inspection helpers for tests and dry runs ---

// Users returns copies of every live user, ordered by id.
func (m *Memory) Users() []*core.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*core.Record, 0, len(m.users))
	for _, r := range m.users {
		out = append(out, r.Clone())
	}
	slices.SortFunc(out, func(a, b *core.Record) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})
	return out
}

// IsDeleted reports whether the user was deleted.
func (m *Memory) IsDeleted(id int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.deleted[id]
	return ok
}

// Preference returns a stored user preference.
func (m *Memory) Preference(userID int64, name string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.prefs[userID][name]
	return v, ok
}

// SessionCount returns the number of active sessions of a user.
func (m *Memory) SessionCount(userID int64) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[userID]
}

// CohortMembers returns the member ids of a cohort.
func (m *Memory) CohortMembers(cohort string) []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []int64
	for id := range m.cohorts[cohort] {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// HasSystemRole reports whether a user holds a system role.
func (m *Memory) HasSystemRole(userID int64, role string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.roleAssign[userID][role]
}

// Enrolment returns a user's enrolment in a course.
func (m *Memory) Enrolment(userID int64, course string) (core.Enrolment, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.enrolments[userID][course]
	return e, ok
}
