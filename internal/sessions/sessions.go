// Package sessions ends the active login sessions of a user. The engine
// calls it after a suspend or a switch to the nologin auth method.
//
// Sessions live in the directory database (user_sessions) or, when the
// site runs a shared session cache, in Redis under
// <prefix>:<userID>:<sessionID>. Multi clears both.
package sessions

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/uploaduser/internal/core"
)

// Backend names accepted by configuration.
const (
	BackendDB    = "db"
	BackendRedis = "redis"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres deletes session rows from the directory database.
type Postgres struct {
	db execer
}

// NewPostgres wraps a pool or transaction.
func NewPostgres(db execer) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) InvalidateSessions(ctx context.Context, userID int64) error {
	if _, err := p.db.Exec(ctx, `DELETE FROM user_sessions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete sessions of user %d: %w", userID, err)
	}
	return nil
}

// Multi invalidates through every backend and reports all failures.
type Multi []core.SessionInvalidator

func (m Multi) InvalidateSessions(ctx context.Context, userID int64) error {
	var errs []error
	for _, inv := range m {
		if inv == nil {
			continue
		}
		if err := inv.InvalidateSessions(ctx, userID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ core.SessionInvalidator = (*Postgres)(nil)
	_ core.SessionInvalidator = (*Redis)(nil)
	_ core.SessionInvalidator = Multi(nil)
)
