package core

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"

	"github.com/JonMunkholm/uploaduser/internal/schema"
)

type planState int

const (
	planUnprepared planState = iota
	planPrepared
	planRejected
	planCommitted
	planCommitFailed
)

func (s planState) String() string {
	switch s {
	case planPrepared:
		return "prepared"
	case planRejected:
		return "rejected"
	case planCommitted:
		return "committed"
	case planCommitFailed:
		return "commit failed"
	default:
		return "unprepared"
	}
}

// Plan is one row after preparation. Only Engine.Prepare creates usable
// plans, and a plan moves forward through its states exactly once.
type Plan struct {
	line  int
	raw   RawRow
	state planState

	action     Action
	ident      identity
	opts       schema.Options
	existing   *Record
	final      *Record
	directives []schema.Directive

	statuses []Status
	errors   Messages

	forceChange      bool
	generatePassword bool
	logout           bool

	id int64
}

// Line returns the 1-based input line the plan was prepared from.
func (p *Plan) Line() int { return p.line }

// Action returns the classified action. It is ActionNone for rejected rows
// that failed before classification.
func (p *Plan) Action() Action { return p.action }

// Rejected reports whether the row carries fatal errors.
func (p *Plan) Rejected() bool { return p.state == planRejected || p.state == planCommitFailed }

// Committed reports whether the commit succeeded.
func (p *Plan) Committed() bool { return p.state == planCommitted }

// Errors returns the fatal errors recorded so far.
func (p *Plan) Errors() Messages { return slices.Clone(p.errors) }

// Statuses returns the advisory statuses recorded so far.
func (p *Plan) Statuses() []Status { return slices.Clone(p.statuses) }

// Final returns a copy of the record the plan intends to commit.
func (p *Plan) Final() *Record { return p.final.Clone() }

// ForcePasswordChange reports whether the user must change their password.
func (p *Plan) ForcePasswordChange() bool { return p.forceChange }

// Outcome returns the reportable result of the plan in its current state.
func (p *Plan) Outcome() Outcome {
	id := p.id
	if id == 0 && p.existing != nil {
		id = p.existing.ID
	}
	return Outcome{
		Line:      p.line,
		Action:    p.action,
		Committed: p.state == planCommitted,
		Record:    p.final.Clone(),
		ID:        id,
		Statuses:  slices.Clone(p.statuses),
		Errors:    slices.Clone(p.errors),
		Echo:      p.echo(id),
	}
}

// echo returns the fields a tracker shows next to the row result.
func (p *Plan) echo(id int64) map[string]string {
	echo := map[string]string{
		"username":  p.raw.Value("username"),
		"firstname": p.raw.Value("firstname"),
		"lastname":  p.raw.Value("lastname"),
		"email":     p.raw.Value("email"),
	}
	if p.final != nil {
		echo["username"] = p.final.Username
		for _, f := range []string{"firstname", "lastname", "email"} {
			if v := p.final.Field(f); v != "" {
				echo[f] = v
			}
		}
	}
	if id != 0 {
		echo["id"] = strconv.FormatInt(id, 10)
	}
	return echo
}

// Commit applies a prepared plan through the executor. Collaborator failures
// of the primary write become row errors; the returned error is reserved for
// misuse of the plan lifecycle.
func (e *Engine) Commit(ctx context.Context, p *Plan) (Outcome, error) {
	if p == nil {
		return Outcome{}, fmt.Errorf("%w: nil plan", ErrContractViolation)
	}
	if p.state != planPrepared {
		return Outcome{}, fmt.Errorf("%w: commit of %s plan for line %d", ErrContractViolation, p.state, p.line)
	}

	log := e.logger.With(slog.Int("line", p.line), slog.String("action", p.action.String()), slog.String("username", p.final.Username))

	switch p.action {
	case ActionDelete:
		if err := e.exec.Delete(ctx, p.final); err != nil {
			log.Warn("delete failed", slog.Any("error", err))
			return e.fail(p, CodeDeleteFailed.withDetail("%v", err)), nil
		}
		p.id = p.final.ID
		p.statuses = append(p.statuses, CodeUserDeleted.status())

	case ActionCreate:
		id, err := e.exec.Create(ctx, p.final)
		if err != nil {
			log.Warn("create failed", slog.Any("error", err))
			return e.fail(p, CodeCreateFailed.withDetail("%v", err)), nil
		}
		p.id = id
		p.final.ID = id
		e.writePreferences(ctx, p, log)
		p.statuses = append(p.statuses, CodeUserAdded.status())
		e.applyDirectives(ctx, p, log)

	case ActionUpdate:
		if err := e.exec.Update(ctx, p.final); err != nil {
			log.Warn("update failed", slog.Any("error", err))
			return e.fail(p, CodeUpdateFailed.withDetail("%v", err)), nil
		}
		p.id = p.final.ID
		if p.logout && e.sessions != nil {
			if err := e.sessions.InvalidateSessions(ctx, p.id); err != nil {
				log.Warn("session invalidation failed", slog.Any("error", err))
				p.statuses = append(p.statuses, CodeSessionsNotCleared.withDetail("%v", err))
			}
		}
		e.writePreferences(ctx, p, log)
		p.statuses = append(p.statuses, CodeAccountUpdated.status())
		e.applyDirectives(ctx, p, log)

	default:
		return Outcome{}, fmt.Errorf("%w: prepared plan for line %d has no action", ErrContractViolation, p.line)
	}

	p.state = planCommitted
	log.Debug("row committed", slog.Int64("user_id", p.id))
	return p.Outcome(), nil
}

func (e *Engine) fail(p *Plan, s Status) Outcome {
	p.errors.add(s)
	p.state = planCommitFailed
	return p.Outcome()
}

func (e *Engine) writePreferences(ctx context.Context, p *Plan, log *slog.Logger) {
	if p.forceChange {
		if err := e.exec.SetPreference(ctx, p.id, PrefForcePasswordChange, "1"); err != nil {
			log.Warn("preference write failed", slog.String("preference", PrefForcePasswordChange), slog.Any("error", err))
			p.statuses = append(p.statuses, CodePreferenceNotSet.withDetail("%s", PrefForcePasswordChange))
		} else {
			p.statuses = append(p.statuses, CodeForcePasswordChange.status())
		}
	}
	if p.generatePassword {
		if err := e.exec.SetPreference(ctx, p.id, PrefCreatePassword, "1"); err != nil {
			log.Warn("preference write failed", slog.String("preference", PrefCreatePassword), slog.Any("error", err))
			p.statuses = append(p.statuses, CodePreferenceNotSet.withDetail("%s", PrefCreatePassword))
		}
	}
}
