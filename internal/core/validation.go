package core

// validation.go checks the identity columns of a row and the shape of email
// addresses. Identity problems are fatal and stop processing of the row
// before any directory lookup.

import (
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/JonMunkholm/uploaduser/internal/schema"
)

// identity is the validated key of a row.
type identity struct {
	username string
	hostID   int64
	id       int64 // 0 when the row carries no id
	hasID    bool
}

// validateIdentity checks username, mnethostid and id, in that order, and
// stops at the first problem.
func (e *Engine) validateIdentity(raw RawRow, errs *Messages) identity {
	var ident identity

	username := raw.Value("username")
	if e.policy.Standardise {
		username = schema.Standardise(username)
	}
	ident.username = username
	if !schema.ValidUsername(username) {
		errs.add(CodeInvalidUsername.withDetail("%q", raw.Value("username")))
		return ident
	}

	ident.hostID = e.settings.LocalHostID
	if host := raw.Value("mnethostid"); host != "" {
		v, err := strconv.ParseInt(host, 10, 64)
		if err != nil {
			errs.add(CodeHostIDNotNumeric.withDetail("%s", host))
			return ident
		}
		ident.hostID = v
	}

	if id := raw.Value("id"); id != "" {
		v, err := strconv.ParseInt(id, 10, 64)
		if err != nil || v <= 0 {
			errs.add(CodeIDNotNumeric.withDetail("%s", id))
		} else {
			ident.id = v
			ident.hasID = true
		}
	}

	return ident
}

var (
	emailValidate     *validator.Validate
	emailValidateOnce sync.Once
)

// ValidEmail reports whether s is a syntactically valid email address.
func ValidEmail(s string) bool {
	emailValidateOnce.Do(func() {
		emailValidate = validator.New()
	})
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	return emailValidate.Var(s, "email") == nil
}
