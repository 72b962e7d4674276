package core_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/uploaduser/internal/auth"
	"github.com/JonMunkholm/uploaduser/internal/core"
	"github.com/JonMunkholm/uploaduser/internal/store"
)

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type harness struct {
	t      testing.TB
	store  *store.Memory
	engine *core.Engine
}

func newHarness(t testing.TB, p core.Policy) *harness {
	t.Helper()

	registry, err := auth.NewRegistry([]string{auth.MethodEmail, "ldap"})
	require.NoError(t, err)

	mem := store.NewMemory()
	mem.AddCourse("math101")

	eng, err := core.NewEngine(p, core.Settings{}, core.Deps{
		Directory:  mem,
		Executor:   mem,
		Sessions:   mem,
		Directives: mem,
		Auth:       registry,
		Hasher:     auth.NewBcryptHasher(4),
		Passwords:  auth.DefaultPasswordPolicy,
		Languages:  auth.NewLanguageSet([]string{"en", "de", "pt_br"}),
		Clock:      func() time.Time { return fixedNow },
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	return &harness{t: t, store: mem, engine: eng}
}

// process prepares and, when possible, commits one row.
func (h *harness) process(row core.RawRow) core.Outcome {
	h.t.Helper()
	ctx := context.Background()

	plan, err := h.engine.Prepare(ctx, 2, row)
	require.NoError(h.t, err)
	if plan.Rejected() {
		return plan.Outcome()
	}
	out, err := h.engine.Commit(ctx, plan)
	require.NoError(h.t, err)
	return out
}

func (h *harness) lookup(username string) *core.Record {
	h.t.Helper()
	rec, err := h.store.Lookup(context.Background(), username, 1)
	require.NoError(h.t, err)
	return rec
}

func policy(mode core.ImportMode, opts ...func(*core.Policy)) core.Policy {
	p := core.Policy{
		ImportMode:          mode,
		UpdateMode:          core.UpdateNothing,
		PasswordMode:        core.PasswordGenerate,
		ForcePasswordChange: core.ForceNone,
		Standardise:         true,
		NoEmailDuplicates:   true,
		AllowSuspends:       true,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

func updateMode(m core.UpdateMode) func(*core.Policy) {
	return func(p *core.Policy) { p.UpdateMode = m }
}

func allowRenames(p *core.Policy) { p.AllowRenames = true }
func allowDeletes(p *core.Policy) { p.AllowDeletes = true }
func updatePassword(p *core.Policy) { p.UpdatePassword = true }

func stored(username, email string) *core.Record {
	return &core.Record{
		Username:  username,
		HostID:    1,
		Auth:      auth.MethodManual,
		Password:  "$2a$04$stored",
		Confirmed: true,
		Fields: map[string]string{
			"email":     email,
			"firstname": "First",
			"lastname":  "Last",
		},
	}
}

func newUserRow(username, email string) core.RawRow {
	return core.RawRow{
		"username":  username,
		"firstname": "A",
		"lastname":  "L",
		"email":     email,
	}
}

func errorCodes(o core.Outcome) []core.Code {
	return o.Errors.Codes()
}

func statusCodes(o core.Outcome) []core.Code {
	out := make([]core.Code, len(o.Statuses))
	for i, s := range o.Statuses {
		out[i] = s.Code
	}
	return out
}
