package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/uploaduser/internal/logging"
)

// Summary holds the aggregate counts of one run. It is reported even when
// the run aborts early.
type Summary struct {
	RunID       string    `json:"run_id"`
	Source      string    `json:"source"`
	Mode        string    `json:"mode"`
	Initiator   Initiator `json:"initiator"`
	Total       int       `json:"total"`
	Created     int       `json:"created"`
	Updated     int       `json:"updated"`
	Deleted     int       `json:"deleted"`
	Errors      int       `json:"errors"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Aborted     bool      `json:"aborted"`
	AbortReason string    `json:"abort_reason,omitempty"`
}

// Duration returns how long the run took.
func (s Summary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

func (s *Summary) count(o Outcome) {
	s.Total++
	if !o.Committed {
		s.Errors++
		return
	}
	switch o.Action {
	case ActionCreate:
		s.Created++
	case ActionUpdate:
		s.Updated++
	case ActionDelete:
		s.Deleted++
	}
}

// Runner drives an Engine over a row source, one row at a time.
type Runner struct {
	engine   *Engine
	tracker  Tracker
	recorder RunRecorder
	limiter  *RunLimiter
	now      func() time.Time
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithTracker sets the sink for row results and the run summary.
func WithTracker(t Tracker) RunnerOption {
	return func(r *Runner) { r.tracker = t }
}

// WithRecorder stores every finished run.
func WithRecorder(rec RunRecorder) RunnerOption {
	return func(r *Runner) { r.recorder = rec }
}

// WithLimiter gates runs through a shared RunLimiter.
func WithLimiter(l *RunLimiter) RunnerOption {
	return func(r *Runner) { r.limiter = l }
}

// NewRunner creates a runner for engine.
func NewRunner(engine *Engine, opts ...RunnerOption) *Runner {
	r := &Runner{engine: engine, now: engine.now}
	for _, opt := range opts {
		opt(r)
	}
	if r.tracker == nil {
		r.tracker = discardTracker{}
	}
	return r
}

// Run processes rows until the source is exhausted, ctx is cancelled or a
// collaborator fails. Row-level problems never stop the run. The summary
// is always returned, together with the error that aborted the run.
func (r *Runner) Run(ctx context.Context, source string, rows RowSource) (Summary, error) {
	s := Summary{
		Source:    source,
		Mode:      r.engine.policy.ImportMode.String(),
		Initiator: InitiatorFromContext(ctx),
		StartedAt: r.now(),
	}

	if r.limiter != nil {
		if err := r.limiter.Acquire(ctx); err != nil {
			// The run never started: it has no id and is not recorded.
			s.FinishedAt = r.now()
			s.Aborted = true
			s.AbortReason = err.Error()
			logging.WithFields(ctx, "source", source).Warn("upload run not started", "error", err)
			r.tracker.RunSummary(s)
			return s, err
		}
		defer r.limiter.Release()
	}

	s.RunID = uuid.New().String()
	log := logging.WithFields(ctx, "run_id", s.RunID, "source", source)
	log.Info("upload run started", "mode", s.Mode)

	r.tracker.Start(s.RunID)
	err := r.loop(ctx, rows, &s, log)
	s.FinishedAt = r.now()
	if err != nil {
		s.Aborted = true
		s.AbortReason = err.Error()
		log.Error("upload run aborted", "error", err, "rows", s.Total)
	}
	r.tracker.RunSummary(s)

	if r.recorder != nil {
		if rerr := r.recorder.RecordRun(context.WithoutCancel(ctx), s); rerr != nil {
			log.Warn("failed to record run", "error", rerr)
		}
	}

	log.Info("upload run finished",
		"total", s.Total,
		"created", s.Created,
		"updated", s.Updated,
		"deleted", s.Deleted,
		"errors", s.Errors,
		"duration", s.Duration(),
	)
	return s, err
}

func (r *Runner) loop(ctx context.Context, rows RowSource, s *Summary, log *slog.Logger) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, row, err := rows.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read row: %w", err)
		}

		plan, err := r.engine.Prepare(ctx, line, row)
		if err != nil {
			return err
		}

		outcome := plan.Outcome()
		if !plan.Rejected() {
			outcome, err = r.engine.Commit(ctx, plan)
			if err != nil {
				return err
			}
		}

		s.count(outcome)
		r.tracker.RowResult(outcome)
	}
}

type discardTracker struct{}

func (discardTracker) Start(string)       {}
func (discardTracker) RowResult(Outcome)  {}
func (discardTracker) RunSummary(Summary) {}
