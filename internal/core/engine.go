package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/JonMunkholm/uploaduser/internal/auth"
	"github.com/JonMunkholm/uploaduser/internal/schema"
)

// Settings are site values the engine needs besides the run policy.
type Settings struct {
	LocalHostID int64  // Host id assumed when a row has no mnethostid
	DefaultAuth string // Auth method of created users when the row has none
	LogRecords  bool   // Log every prepared FinalRecord at debug level
}

// Deps are the collaborators an Engine calls out to. Directory, Executor,
// Auth and Hasher are required.
type Deps struct {
	Directory  Directory
	Executor   Executor
	Sessions   SessionInvalidator
	Directives DirectiveExecutor
	Auth       AuthResolver
	Hasher     PasswordHasher
	Passwords  PasswordChecker
	Languages  LanguageValidator
	Clock      func() time.Time
	Logger     *slog.Logger
}

// Engine reconciles rows against the directory under one Policy.
// An Engine is not safe for concurrent use; rows are processed in order.
type Engine struct {
	policy   Policy
	settings Settings

	dir        Directory
	exec       Executor
	sessions   SessionInvalidator
	directives DirectiveExecutor
	auth       AuthResolver
	hasher     PasswordHasher
	passwords  PasswordChecker
	languages  LanguageValidator
	now        func() time.Time
	logger     *slog.Logger
}

// NewEngine validates the policy and wires the collaborators.
func NewEngine(policy Policy, settings Settings, deps Deps) (*Engine, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}

	var missing []string
	if deps.Directory == nil {
		missing = append(missing, "directory")
	}
	if deps.Executor == nil {
		missing = append(missing, "executor")
	}
	if deps.Auth == nil {
		missing = append(missing, "auth resolver")
	}
	if deps.Hasher == nil {
		missing = append(missing, "password hasher")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("engine missing collaborators: %s", strings.Join(missing, ", "))
	}

	if settings.LocalHostID <= 0 {
		settings.LocalHostID = 1
	}
	if settings.DefaultAuth == "" {
		settings.DefaultAuth = auth.MethodManual
	}

	e := &Engine{
		policy:     policy.clone(),
		settings:   settings,
		dir:        deps.Directory,
		exec:       deps.Executor,
		sessions:   deps.Sessions,
		directives: deps.Directives,
		auth:       deps.Auth,
		hasher:     deps.Hasher,
		passwords:  deps.Passwords,
		languages:  deps.Languages,
		now:        deps.Clock,
		logger:     deps.Logger,
	}
	if e.passwords == nil {
		e.passwords = auth.DefaultPasswordPolicy
	}
	if e.languages == nil {
		e.languages = auth.NewLanguageSet([]string{"en"})
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e, nil
}

// Policy returns a copy of the run policy.
func (e *Engine) Policy() Policy { return e.policy.clone() }

// Prepare validates and classifies one row and builds its FinalRecord.
// The returned plan is either ready to commit or rejected. An error means a
// collaborator failed and the run should stop.
func (e *Engine) Prepare(ctx context.Context, line int, raw RawRow) (*Plan, error) {
	p := &Plan{line: line, raw: raw.clone()}
	if err := e.classify(ctx, p); err != nil {
		return nil, fmt.Errorf("prepare row %d: %w", line, err)
	}
	log := e.logger.With(slog.Int("line", line), slog.String("username", p.ident.username))
	if len(p.errors) > 0 {
		p.state = planRejected
		p.final = nil
		log.Debug("row rejected", slog.Any("codes", p.errors.Codes()))
		return p, nil
	}

	p.state = planPrepared
	log.Debug("row prepared", slog.String("action", p.action.String()))
	if e.settings.LogRecords && p.final != nil {
		log.Debug("final record",
			slog.Int64("id", p.final.ID),
			slog.Int64("mnethostid", p.final.HostID),
			slog.String("auth", p.final.Auth),
			slog.Bool("suspended", p.final.Suspended),
			slog.Any("fields", p.final.Fields),
			slog.Any("profile", p.final.Profile),
		)
	}
	return p, nil
}

func (e *Engine) lookup(ctx context.Context, username string, hostID int64) (*Record, error) {
	rec, err := e.dir.Lookup(ctx, username, hostID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %q: %w", username, err)
	}
	return rec, nil
}

// classify runs the decision sequence for one row. It stops at the first
// stage that records an error.
func (e *Engine) classify(ctx context.Context, p *Plan) error {
	p.ident = e.validateIdentity(p.raw, &p.errors)
	if len(p.errors) > 0 {
		return nil
	}

	p.opts = schema.ParseOptions(p.raw)
	if p.opts.OldUsername != "" && e.policy.Standardise {
		p.opts.OldUsername = schema.Standardise(p.opts.OldUsername)
	}

	existing, err := e.lookup(ctx, p.ident.username, p.ident.hostID)
	if err != nil {
		return err
	}

	if p.opts.Deleted {
		e.classifyDelete(p, existing)
		return nil
	}

	// Mandatory columns only matter for rows that end up creating a user.
	// Updates and renames keep the stored values of absent columns.
	if existing == nil && p.opts.OldUsername == "" {
		e.checkMandatory(p)
		if len(p.errors) > 0 {
			return nil
		}
	}

	if p.ident.username == schema.GuestUsername {
		p.errors.add(CodeGuestProtected.status())
		return nil
	}

	if existing != nil {
		if e.policy.ImportMode != CreateAll && (!e.policy.CanUpdate() || e.policy.UpdateMode == UpdateNothing) {
			p.errors.add(CodeUpdateDisallowed.withDetail("%s", p.ident.username))
			return nil
		}
	} else if e.policy.ImportMode == UpdateOnly && p.opts.OldUsername == "" {
		p.errors.add(CodeCreateDisallowed.withDetail("%s", p.ident.username))
		return nil
	}

	data := e.project(p.raw)
	data["username"] = p.ident.username

	if p.opts.OldUsername != "" {
		source, err := e.classifyRename(ctx, p, existing)
		if err != nil {
			return err
		}
		if len(p.errors) > 0 {
			return nil
		}
		existing = source
	}

	// CreateAll never modifies the stored user, so the protected account
	// guard only applies when the existing record is the merge target.
	if existing != nil && e.policy.ImportMode != CreateAll {
		switch {
		case existing.IsGuest():
			p.errors.add(CodeGuestProtected.status())
		case existing.IsAdmin():
			p.errors.add(CodeCannotModifyAdmin.withDetail("%s", existing.Username))
		}
		if len(p.errors) > 0 {
			return nil
		}
	}

	// New users are always written at the local host. A row naming another
	// host must not collide with a local user of the same name.
	if existing == nil && p.opts.OldUsername == "" && p.ident.hostID != e.settings.LocalHostID {
		local, err := e.lookup(ctx, p.ident.username, e.settings.LocalHostID)
		if err != nil {
			return err
		}
		p.ident.hostID = e.settings.LocalHostID
		if local != nil {
			if e.policy.ImportMode != CreateAll {
				p.errors.add(CodeUserAlreadyRegistered.withDetail("%s", p.ident.username))
				return nil
			}
			existing = local
		}
	}

	if e.policy.ImportMode == CreateAll && existing != nil {
		original := p.ident.username
		next, err := e.IncrementUsername(ctx, original, p.ident.hostID)
		if err != nil {
			return err
		}
		p.ident.username = next
		data["username"] = next
		existing = nil
		if next != original {
			p.statuses = append(p.statuses, renamed(original, next))
		}
	}

	switch e.policy.ImportMode {
	case CreateNew:
		if existing != nil {
			p.errors.add(CodeUserAlreadyRegistered.withDetail("%s", p.ident.username))
		}
	case CreateAll:
		if existing != nil {
			p.errors.add(CodeUserNotAdded.withDetail("%s", p.ident.username))
		}
	case UpdateOnly:
		if existing == nil {
			p.errors.add(CodeUserMissingUpdateOnly.withDetail("%s", p.ident.username))
		}
	case CreateOrUpdate:
		if existing != nil && e.policy.UpdateMode == UpdateNothing {
			p.errors.add(CodeUpdateModeNothing.status())
		}
	}
	if len(p.errors) > 0 {
		return nil
	}

	p.directives = schema.ParseDirectives(p.raw)

	if existing != nil {
		p.existing = existing
		p.action = ActionUpdate
		return e.mergeUpdate(ctx, p, data)
	}
	p.action = ActionCreate
	return e.createDefaults(ctx, p, data)
}

func (e *Engine) classifyDelete(p *Plan, existing *Record) {
	switch {
	case existing == nil:
		p.errors.add(CodeDeleteMissingTarget.withDetail("%s", p.ident.username))
	case p.ident.username == schema.GuestUsername || existing.IsGuest():
		p.errors.add(CodeGuestProtected.status())
	case existing.IsAdmin():
		p.errors.add(CodeDeleteProtected.withDetail("%s", existing.Username))
	case !e.policy.AllowDeletes:
		p.errors.add(CodeDeleteDisallowed.withDetail("%s", existing.Username))
	default:
		p.action = ActionDelete
		p.existing = existing
		p.final = existing.Clone()
	}
}

// checkMandatory records one MissingField error naming every mandatory
// column that is empty and has no default.
func (e *Engine) checkMandatory(p *Plan) {
	var missing []string
	for _, field := range schema.MandatoryFields() {
		if p.raw.Value(field) == "" && e.policy.Default(field) == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		p.errors.add(missingField(strings.Join(missing, ", ")))
	}
}

// project copies recognised columns into a working map, trimmed. Identity
// columns are overwritten by the caller with normalised values.
func (e *Engine) project(raw RawRow) map[string]string {
	data := make(map[string]string, len(raw))
	for col, v := range raw {
		if schema.IsValidField(col) || schema.IsProfileField(col) {
			data[col] = schema.CleanCell(v)
		}
	}
	return data
}

// classifyRename resolves the user a rename row applies to.
func (e *Engine) classifyRename(ctx context.Context, p *Plan, atTarget *Record) (*Record, error) {
	if atTarget != nil {
		p.errors.add(CodeRenameTargetExists.withDetail("%s", p.ident.username))
		return nil, nil
	}

	from := p.opts.OldUsername
	source, err := e.lookup(ctx, from, p.ident.hostID)
	if err != nil {
		return nil, err
	}

	switch {
	case !e.policy.CanUpdate():
		p.errors.add(CodeRenameRequiresUpdate.withDetail("%s", from))
	case source == nil:
		p.errors.add(CodeRenameSourceMissing.withDetail("%s", from))
	case !e.policy.AllowRenames:
		p.errors.add(CodeRenameDisallowed.withDetail("%s", from))
	}
	if len(p.errors) > 0 {
		return nil, nil
	}

	if p.ident.hasID && source.ID != p.ident.id {
		owner, err := e.dir.LookupByID(ctx, p.ident.id)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("lookup id %d: %w", p.ident.id, err)
		}
		if owner != nil {
			p.errors.add(CodeIDConflict.withDetail("%d", p.ident.id))
			return nil, nil
		}
	}

	p.statuses = append(p.statuses, renamed(from, p.ident.username))
	return source, nil
}
