package core

import (
	"context"
	"errors"
	"strings"

	"github.com/JonMunkholm/uploaduser/internal/auth"
	"github.com/JonMunkholm/uploaduser/internal/schema"
)

// createDefaults builds a fresh record for a user that does not exist yet.
// Empty row values fall back to the policy defaults.
func (e *Engine) createDefaults(ctx context.Context, p *Plan, data map[string]string) error {
	e.checkMandatory(p)
	if len(p.errors) > 0 {
		return nil
	}

	now := e.now()
	rec := newRecord()
	rec.Username = p.ident.username
	rec.HostID = e.settings.LocalHostID
	rec.Confirmed = true
	rec.Suspended = p.opts.Suspended
	rec.TimeCreated = now
	rec.TimeModified = now

	for _, field := range schema.ProfileFields() {
		value := e.valueOrDefault(field, data[field])
		if value == "" {
			continue
		}
		switch field {
		case "email":
			keep, err := e.checkEmail(ctx, p, value, 0)
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
		if value := e.valueOrDefault(col, raw); value != "" {
			rec.Profile[schema.ProfileShortname(col)] = value
		}
	}

	method := strings.ToLower(e.valueOrDefault("auth", data["auth"]))
	if method == "" {
		method = e.settings.DefaultAuth
	}
	plugin, err := e.auth.Resolve(method)
	if err != nil {
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

	if len(p.errors) > 0 {
		return nil
	}

	if !plugin.IsInternal() {
		rec.Password = PasswordNotCached
		p.final = rec
		return nil
	}

	password := data["password"]
	switch {
	case password != "":
		if err := e.applyPassword(p, rec, password); err != nil {
			return err
		}
	case e.policy.PasswordMode == PasswordGenerate:
		rec.Password = PasswordToBeGenerated
		p.generatePassword = true
		if e.policy.ForcePasswordChange == ForceAll {
			p.forceChange = true
		}
	default:
		p.errors.add(missingField("password"))
		return nil
	}

	p.final = rec
	return nil
}

func (e *Engine) valueOrDefault(field, value string) string {
	if value != "" {
		return value
	}
	return e.policy.Default(field)
}
