package core

// preview.go prepares every row of a source without committing anything, so
// an operator can see what an upload would do before running it.
//
// Rows are prepared against the directory as it is now. A preview therefore
// cannot see the effect of earlier rows in the same file; usernames that
// occur on more than one line are listed separately as duplicates.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"time"
)

// PreviewSummary contains the counts of a preview.
type PreviewSummary struct {
	Total           int `json:"total"`
	Create          int `json:"create"`
	Update          int `json:"update"`
	Delete          int `json:"delete"`
	Errors          int `json:"errors"`
	DuplicateInFile int `json:"duplicate_in_file"`
}

// PreviewRow is the planned result of one row.
type PreviewRow struct {
	Line     int      `json:"line"`
	Action   string   `json:"action"`
	Username string   `json:"username,omitempty"`
	ID       int64    `json:"id,omitempty"`
	Changed  []string `json:"changed,omitempty"`
	Errors   Messages `json:"errors,omitempty"`
	Statuses []Status `json:"statuses,omitempty"`
}

// DuplicatePreview lists the lines sharing one username.
type DuplicatePreview struct {
	Username string `json:"username"`
	Lines    []int  `json:"lines"`
}

// Preview is the complete result of a preview.
type Preview struct {
	Summary          PreviewSummary     `json:"summary"`
	Rows             []PreviewRow       `json:"rows"`
	Truncated        bool               `json:"truncated,omitempty"`
	Duplicates       []DuplicatePreview `json:"duplicates"`
	ProcessingTimeMs int64              `json:"processing_time_ms"`
}

// Sample limits
const (
	DefaultPreviewRows  = 100
	maxDuplicateSamples = 20
)

// Preview prepares up to every row of rows and reports the plans. At most
// maxRows rows are kept in the result (DefaultPreviewRows when <= 0); the
// summary always covers the whole source. Nothing is written and the run
// gate is not taken.
func (r *Runner) Preview(ctx context.Context, rows RowSource, maxRows int) (Preview, error) {
	if maxRows <= 0 {
		maxRows = DefaultPreviewRows
	}
	start := time.Now()
	out := Preview{Rows: []PreviewRow{}, Duplicates: []DuplicatePreview{}}
	lines := make(map[string][]int)

	for {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		line, row, err := rows.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return out, fmt.Errorf("read row: %w", err)
		}

		plan, err := r.engine.Prepare(ctx, line, row)
		if err != nil {
			return out, err
		}
		o := plan.Outcome()

		out.Summary.Total++
		switch {
		case plan.Rejected():
			out.Summary.Errors++
		case o.Action == ActionCreate:
			out.Summary.Create++
		case o.Action == ActionUpdate:
			out.Summary.Update++
		case o.Action == ActionDelete:
			out.Summary.Delete++
		}

		username := o.Echo["username"]
		if username != "" {
			lines[username] = append(lines[username], line)
		}

		if len(out.Rows) >= maxRows {
			out.Truncated = true
			continue
		}
		out.Rows = append(out.Rows, PreviewRow{
			Line:     line,
			Action:   o.Action.String(),
			Username: username,
			ID:       o.ID,
			Changed:  plan.Changed(),
			Errors:   o.Errors,
			Statuses: o.Statuses,
		})
	}

	for _, username := range slices.Sorted(maps.Keys(lines)) {
		if len(lines[username]) < 2 {
			continue
		}
		out.Summary.DuplicateInFile++
		if len(out.Duplicates) < maxDuplicateSamples {
			out.Duplicates = append(out.Duplicates, DuplicatePreview{Username: username, Lines: lines[username]})
		}
	}

	out.ProcessingTimeMs = time.Since(start).Milliseconds()
	return out, nil
}

// Changed lists the columns an update plan would change, sorted. It is nil
// for every other plan.
func (p *Plan) Changed() []string {
	if p.action != ActionUpdate || p.existing == nil || p.final == nil || len(p.errors) > 0 {
		return nil
	}
	old, next := p.existing, p.final

	var changed []string
	if old.Username != next.Username {
		changed = append(changed, "username")
	}
	if old.Auth != next.Auth {
		changed = append(changed, "auth")
	}
	if old.Password != next.Password {
		changed = append(changed, "password")
	}
	if old.Suspended != next.Suspended {
		changed = append(changed, "suspended")
	}
	changed = append(changed, diffKeys(old.Fields, next.Fields)...)
	for _, k := range diffKeys(old.Profile, next.Profile) {
		changed = append(changed, "profile_field_"+k)
	}
	slices.Sort(changed)
	return changed
}

func diffKeys(a, b map[string]string) []string {
	var out []string
	for k, v := range b {
		if a[k] != v {
			out = append(out, k)
		}
	}
	for k, v := range a {
		if _, ok := b[k]; !ok && v != "" {
			out = append(out, k)
		}
	}
	return out
}
