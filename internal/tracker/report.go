package tracker

import (
	"sync"

	"github.com/JonMunkholm/uploaduser/internal/core"
)

// RowReport is the reportable form of one row.
type RowReport struct {
	Line     int           `json:"line"`
	Result   string        `json:"result"`
	Action   string        `json:"action"`
	Username string        `json:"username,omitempty"`
	ID       int64         `json:"id,omitempty"`
	Errors   []core.Status `json:"errors,omitempty"`
	Statuses []core.Status `json:"statuses,omitempty"`
}

// RunReport is the full result of one run.
type RunReport struct {
	RunID     string       `json:"run_id"`
	Rows      []RowReport  `json:"rows"`
	Truncated bool         `json:"truncated,omitempty"`
	Summary   core.Summary `json:"summary"`
}

// Report collects row results in memory. Rows past the limit are counted in
// the summary but not kept.
type Report struct {
	mu     sync.Mutex
	limit  int
	report RunReport
}

// NewReport keeps at most limit rows; limit <= 0 keeps all of them.
func NewReport(limit int) *Report {
	return &Report{limit: limit, report: RunReport{Rows: []RowReport{}}}
}

func (r *Report) Start(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.RunID = runID
}

func (r *Report) RowResult(o core.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.limit > 0 && len(r.report.Rows) >= r.limit {
		r.report.Truncated = true
		return
	}
	r.report.Rows = append(r.report.Rows, RowReport{
		Line:     o.Line,
		Result:   result(o),
		Action:   o.Action.String(),
		Username: o.Echo["username"],
		ID:       o.ID,
		Errors:   o.Errors,
		Statuses: o.Statuses,
	})
}

func (r *Report) RunSummary(s core.Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.Summary = s
}

// Result returns a copy of the collected report.
func (r *Report) Result() RunReport {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.report
	out.Rows = append([]RowReport(nil), r.report.Rows...)
	return out
}
