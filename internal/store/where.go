package store

import (
	"fmt"
	"strings"
	"time"
)

// whereBuilder assembles a parameterised WHERE clause. Empty string filters
// are skipped.
type whereBuilder struct {
	conds []string
	args  []any
}

func newWhereBuilder() *whereBuilder {
	return &whereBuilder{}
}

// Add appends "column = $n" when value is non-empty.
func (w *whereBuilder) Add(column, value string) {
	if value == "" {
		return
	}
	w.args = append(w.args, value)
	w.conds = append(w.conds, fmt.Sprintf("%s = $%d", column, len(w.args)))
}

// AddBool appends "column = $n".
func (w *whereBuilder) AddBool(column string, value bool) {
	w.args = append(w.args, value)
	w.conds = append(w.conds, fmt.Sprintf("%s = $%d", column, len(w.args)))
}

// AddSince appends "column >= $n".
func (w *whereBuilder) AddSince(column string, since time.Time) {
	w.args = append(w.args, toPgTimestamptz(since))
	w.conds = append(w.conds, fmt.Sprintf("%s >= $%d", column, len(w.args)))
}

// Build returns the clause (with a leading space) and its arguments.
func (w *whereBuilder) Build() (string, []any) {
	if len(w.conds) == 0 {
		return "", w.args
	}
	return " WHERE " + strings.Join(w.conds, " AND "), w.args
}

// NextArgIndex is the placeholder number of the next argument.
func (w *whereBuilder) NextArgIndex() int {
	return len(w.args) + 1
}
