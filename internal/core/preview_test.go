package core_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/uploaduser/internal/core"
	"github.com/JonMunkholm/uploaduser/internal/store"
)

func TestPreviewWritesNothing(t *testing.T) {
	h := newHarness(t, policy(core.CreateOrUpdate, updateMode(core.UpdateDataOrDefaults)))
	h.store.Seed(stored("carol", "carol@example.com"))

	changedRow := newUserRow("carol", "carol@example.com")
	changedRow["firstname"] = "Caroline"

	src := &sliceSource{rows: []core.RawRow{
		newUserRow("alice", "alice@example.com"),
		changedRow,
		{"username": "dave", "email": "dave@example.com"},
		newUserRow("alice", "alice2@example.com"),
	}}

	p, err := core.NewRunner(h.engine).Preview(context.Background(), src, 0)
	require.NoError(t, err)

	assert.Equal(t, core.PreviewSummary{
		Total:           4,
		Create:          2,
		Update:          1,
		Errors:          1,
		DuplicateInFile: 1,
	}, p.Summary)

	require.Len(t, p.Rows, 4)
	assert.Equal(t, "create", p.Rows[0].Action)
	assert.Equal(t, "update", p.Rows[1].Action)
	assert.Contains(t, p.Rows[1].Changed, "firstname")
	assert.NotContains(t, p.Rows[1].Changed, "email")
	assert.True(t, p.Rows[2].Errors.Has(core.CodeMissingField))

	require.Len(t, p.Duplicates, 1)
	assert.Equal(t, "alice", p.Duplicates[0].Username)
	assert.Equal(t, []int{2, 5}, p.Duplicates[0].Lines)

	assert.Len(t, h.store.Users(), 1, "preview must not create users")
	assert.Equal(t, "First", h.lookup("carol").Field("firstname"))

	runs, err := h.store.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs, "preview is not a run")
}

func TestPreviewTruncatesRows(t *testing.T) {
	h := newHarness(t, policy(core.CreateNew))
	src := &sliceSource{rows: []core.RawRow{
		newUserRow("u1", "u1@example.com"),
		newUserRow("u2", "u2@example.com"),
		newUserRow("u3", "u3@example.com"),
	}}

	p, err := core.NewRunner(h.engine).Preview(context.Background(), src, 2)
	require.NoError(t, err)
	assert.Len(t, p.Rows, 2)
	assert.True(t, p.Truncated)
	assert.Equal(t, 3, p.Summary.Create)
}

func TestPreviewSourceError(t *testing.T) {
	h := newHarness(t, policy(core.CreateNew))
	src := &sliceSource{
		rows: []core.RawRow{newUserRow("u1", "u1@example.com")},
		err:  errors.New("invalid csv: wrong number of fields"),
	}

	p, err := core.NewRunner(h.engine).Preview(context.Background(), src, 0)
	require.Error(t, err)
	assert.Equal(t, 1, p.Summary.Total)
}

func TestPlanChangedOnlyForUpdates(t *testing.T) {
	h := newHarness(t, policy(core.CreateNew))
	plan, err := h.engine.Prepare(context.Background(), 2, newUserRow("erin", "erin@example.com"))
	require.NoError(t, err)
	assert.Nil(t, plan.Changed())
}
