package tracker

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/JonMunkholm/uploaduser/internal/core"
)

var plainColumns = []string{"line", "result", "username", "firstname", "lastname", "id"}

// Plain writes one tab-separated line per row, its messages indented
// underneath, and the counts block at the end.
type Plain struct {
	mu sync.Mutex
	w  io.Writer
}

// NewPlain writes to w.
func NewPlain(w io.Writer) *Plain {
	return &Plain{w: w}
}

func (p *Plain) Start(string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, strings.Join(plainColumns, "\t"))
}

func (p *Plain) RowResult(o core.Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintln(p.w, strings.Join([]string{
		fmt.Sprint(o.Line),
		result(o),
		echo(o, "username"),
		echo(o, "firstname"),
		echo(o, "lastname"),
		echo(o, "id"),
	}, "\t"))
	for _, m := range o.Messages() {
		fmt.Fprintf(p.w, "  %s\n", m.Message)
	}
}

func (p *Plain) RunSummary(s core.Summary) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.w, "\nCreated: %d\nUpdated: %d\nDeleted: %d\nErrors: %d\n\nTotal: %d\n",
		s.Created, s.Updated, s.Deleted, s.Errors, s.Total)
	if s.Aborted {
		fmt.Fprintf(p.w, "Aborted: %s\n", s.AbortReason)
	}
}

func echo(o core.Outcome, field string) string {
	if v := o.Echo[field]; v != "" {
		return v
	}
	return "N/A"
}
