package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/uploaduser/internal/auth"
	"github.com/JonMunkholm/uploaduser/internal/schema"
)

// mergeUpdate patches a copy of the existing record with row data according
// to the update mode. Empty row values never clear stored data.
func (e *Engine) mergeUpdate(ctx context.Context, p *Plan, data map[string]string) error {
	existing := p.existing
	rec := existing.Clone()
	rec.Username = p.ident.username
	rec.TimeModified = e.now()

	if method := strings.ToLower(data["auth"]); method != "" && existing.Auth != "" && method != strings.ToLower(existing.Auth) {
		if _, err := e.auth.Resolve(method); err != nil {
			if errors.Is(err, auth.ErrPluginUnavailable) {
				p.errors.add(CodeAuthPluginUnavailable.withDetail("%s", method))
				return nil
			}
			return err
		}
		if !e.auth.Supported(method) {
			p.statuses = append(p.statuses, CodeUnsupportedAuth.withDetail("%s", method))
		}
		rec.Auth = method
		if method == auth.MethodNoLogin {
			p.logout = true
		}
	}

	for _, field := range schema.ProfileFields() {
		value, ok := e.mergedValue(field, data[field], existing.Field(field))
		if !ok {
			continue
		}
		switch field {
		case "email":
			keep, err := e.checkEmail(ctx, p, value, existing.ID)
			if err != nil {
				return err
			}
			if !keep {
				continue
			}
		case "lang":
			if !e.languages.Valid(value) {
				p.statuses = append(p.statuses, CodeUnknownLocale.withDetail("%s", value))
				continue
			}
			value = auth.Canonical(value)
		}
		rec.Fields[field] = value
	}

	for col, raw := range data {
		if !schema.IsProfileField(col) {
			continue
		}
		short := schema.ProfileShortname(col)
		if value, ok := e.mergedValue(col, raw, existing.Profile[short]); ok {
			rec.Profile[short] = value
		}
	}

	if e.policy.AllowSuspends && p.opts.SuspendedSet {
		if p.opts.Suspended && !existing.Suspended {
			p.statuses = append(p.statuses, CodeUserSuspended.status())
			p.logout = true
		}
		rec.Suspended = p.opts.Suspended
	}

	if password := data["password"]; password != "" && e.policy.UpdatePassword {
		plugin, err := e.auth.Resolve(rec.Auth)
		if err != nil || !plugin.IsInternal() {
			p.statuses = append(p.statuses, CodePasswordUnchanged.status())
		} else if err := e.applyPassword(p, rec, password); err != nil {
			return err
		}
	}

	if len(p.errors) > 0 {
		return nil
	}
	p.final = rec
	return nil
}

// mergedValue decides the value a field takes under the update mode.
// ok is false when the stored value must be kept.
func (e *Engine) mergedValue(field, value, current string) (string, bool) {
	def := e.policy.Default(field)
	// An empty lang keeps the stored locale whatever the defaults say.
	if value == "" && field == "lang" {
		return "", false
	}
	if value == "" && e.policy.UpdateMode != UpdateDataOnly {
		value = def
	}
	if value == "" {
		return "", false
	}

	switch e.policy.UpdateMode {
	case UpdateMissingOnly:
		if current != "" {
			return "", false
		}
	case UpdateDataOnly:
		if def != "" && value == def {
			return "", false
		}
	}

	if field == "email" {
		if strings.EqualFold(value, current) {
			return "", false
		}
	} else if value == current {
		return "", false
	}
	return value, true
}

// checkEmail applies the duplicate and shape rules shared by create and
// update. keep is false when the address must not be stored.
func (e *Engine) checkEmail(ctx context.Context, p *Plan, email string, excludeID int64) (keep bool, err error) {
	owned, err := e.dir.EmailOwnedByOther(ctx, email, excludeID)
	if err != nil {
		return false, fmt.Errorf("check email %q: %w", email, err)
	}
	if owned {
		if e.policy.NoEmailDuplicates {
			p.errors.add(CodeEmailDuplicate.withDetail("%s", email))
			return false, nil
		}
		p.statuses = append(p.statuses, CodeEmailDuplicate.withDetail("%s", email))
	}
	if !ValidEmail(email) {
		p.statuses = append(p.statuses, CodeInvalidEmail.withDetail("%s", email))
	}
	return true, nil
}

// applyPassword hashes a supplied password and flags a forced change when the
// policy asks for one.
func (e *Engine) applyPassword(p *Plan, rec *Record, password string) error {
	weak := e.passwords.Check(password) != nil
	if e.policy.ForcePasswordChange == ForceAll || (weak && e.policy.ForcePasswordChange == ForceWeak) {
		p.forceChange = true
	}
	hash, err := e.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash password for %q: %w", rec.Username, err)
	}
	rec.Password = hash
	return nil
}
