package core

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/JonMunkholm/uploaduser/internal/schema"
)

// applyDirectives runs the numbered cohort, role and course columns of a
// committed row. Every failure becomes an advisory status; the user record
// is already written at this point.
func (e *Engine) applyDirectives(ctx context.Context, p *Plan, log *slog.Logger) {
	if len(p.directives) == 0 {
		return
	}
	if e.directives == nil {
		log.Debug("directives ignored, no executor configured", slog.Int("count", len(p.directives)))
		return
	}

	for _, d := range p.directives {
		switch d.Kind {
		case schema.DirectiveCohort:
			created, err := e.directives.AddCohortMember(ctx, p.id, d.Target)
			if err != nil {
				log.Warn("cohort directive failed", slog.String("cohort", d.Target), slog.Any("error", err))
				p.statuses = append(p.statuses, CodeCohortError.withDetail("%s: %v", d.Target, err))
				continue
			}
			if created {
				p.statuses = append(p.statuses, CodeCohortCreated.withDetail("%s", d.Target))
			}

		case schema.DirectiveSystemRole:
			var err error
			if d.Unassign {
				err = e.directives.UnassignSystemRole(ctx, p.id, d.Target)
			} else {
				err = e.directives.AssignSystemRole(ctx, p.id, d.Target)
			}
			if err != nil {
				log.Warn("system role directive failed", slog.String("role", d.Target), slog.Any("error", err))
				p.statuses = append(p.statuses, CodeRoleError.withDetail("%s: %v", d.Target, err))
			}

		case schema.DirectiveEnrol:
			enrolment, problem, ok := e.enrolment(d)
			if !ok {
				p.statuses = append(p.statuses, problem)
				continue
			}
			if err := e.directives.Enrol(ctx, p.id, enrolment); err != nil {
				log.Warn("enrol directive failed", slog.String("course", d.Target), slog.Any("error", err))
				p.statuses = append(p.statuses, CodeEnrolError.withDetail("%s: %v", d.Target, err))
			}
		}
	}
}

// enrolment resolves a course directive. enrolperiod is a number of days;
// enrolstatus is 0 (active) or 1 (suspended).
func (e *Engine) enrolment(d schema.Directive) (Enrolment, Status, bool) {
	en := Enrolment{
		Course: d.Target,
		Role:   d.Role,
		Group:  d.Group,
		Start:  e.now(),
	}

	if d.EnrolPeriod != "" {
		days, err := strconv.Atoi(d.EnrolPeriod)
		if err != nil || days < 0 {
			return Enrolment{}, CodeInvalidEnrolPeriod.withDetail("%s: %s", d.Target, d.EnrolPeriod), false
		}
		en.Period = time.Duration(days) * 24 * time.Hour
	}

	switch d.EnrolStatus {
	case "", "0":
	case "1":
		en.Suspended = true
	default:
		return Enrolment{}, CodeUnknownEnrolStatus.withDetail("%s: %s", d.Target, d.EnrolStatus), false
	}

	return en, Status{}, true
}
