// Package tracker reports row results and run summaries.
//
// Plain writes the tab-separated console format, Report collects a JSON
// report for the HTTP surface, Metrics feeds Prometheus and Multi fans out
// to several of them.
package tracker

import "github.com/JonMunkholm/uploaduser/internal/core"

// Multi forwards every call to each tracker in order.
type Multi []core.Tracker

func (m Multi) Start(runID string) {
	for _, t := range m {
		t.Start(runID)
	}
}

func (m Multi) RowResult(o core.Outcome) {
	for _, t := range m {
		t.RowResult(o)
	}
}

func (m Multi) RunSummary(s core.Summary) {
	for _, t := range m {
		t.RunSummary(s)
	}
}

func result(o core.Outcome) string {
	if o.Committed {
		return "OK"
	}
	return "NOK"
}

var (
	_ core.Tracker = Multi(nil)
	_ core.Tracker = (*Plain)(nil)
	_ core.Tracker = (*Report)(nil)
	_ core.Tracker = (*Metrics)(nil)
)
