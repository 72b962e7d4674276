package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/uploaduser/internal/core"
)

//go:embed schema.sql
var schemaSQL string

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// DefaultCourseRole is the role given to enrolments without a role column.
const DefaultCourseRole = "student"

// Postgres is the production directory.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an open pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Pool returns the underlying pool.
func (p *Postgres) Pool() *pgxpool.Pool { return p.pool }

// Migrate creates missing tables and reserved accounts.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

const userColumns = `id, username, mnethostid, auth, password, suspended, confirmed,
	siteadmin, fields, profile, timecreated, timemodified`

func scanUser(row pgx.Row) (*core.Record, error) {
	var (
		rec     core.Record
		fields  []byte
		profile []byte
	)
	err := row.Scan(
		&rec.ID, &rec.Username, &rec.HostID, &rec.Auth, &rec.Password,
		&rec.Suspended, &rec.Confirmed, &rec.SiteAdmin,
		&fields, &profile, &rec.TimeCreated, &rec.TimeModified,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(fields, &rec.Fields); err != nil {
		return nil, fmt.Errorf("decode fields of user %d: %w", rec.ID, err)
	}
	if err := json.Unmarshal(profile, &rec.Profile); err != nil {
		return nil, fmt.Errorf("decode profile of user %d: %w", rec.ID, err)
	}
	return rec.Clone(), nil
}

func encodeMaps(rec *core.Record) (fields, profile []byte, err error) {
	fields, err = json.Marshal(nonNil(rec.Fields))
	if err != nil {
		return nil, nil, fmt.Errorf("encode fields: %w", err)
	}
	profile, err = json.Marshal(nonNil(rec.Profile))
	if err != nil {
		return nil, nil, fmt.Errorf("encode profile: %w", err)
	}
	return fields, profile, nil
}

func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func wrapUnique(err error, username string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%q: %w", username, ErrDuplicate)
	}
	return err
}

// --- core.Directory ---

func (p *Postgres) Lookup(ctx context.Context, username string, hostID int64) (*core.Record, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1 AND mnethostid = $2 AND NOT deleted`,
		username, hostID)
	return scanUser(row)
}

func (p *Postgres) LookupByID(ctx context.Context, id int64) (*core.Record, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1 AND NOT deleted`, id)
	return scanUser(row)
}

func (p *Postgres) EmailOwnedByOther(ctx context.Context, email string, excludeID int64) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE lower(email) = lower($1) AND id <> $2 AND NOT deleted)`,
		email, excludeID).Scan(&exists)
	return exists, err
}

// --- core.Executor ---

func (p *Postgres) Create(ctx context.Context, rec *core.Record) (int64, error) {
	fields, profile, err := encodeMaps(rec)
	if err != nil {
		return 0, err
	}

	var id int64
	err = p.pool.QueryRow(ctx, `
		INSERT INTO users (username, mnethostid, auth, password, suspended, confirmed,
			siteadmin, email, fields, profile, timecreated, timemodified)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7, $8, $9, $10, $11)
		RETURNING id`,
		rec.Username, rec.HostID, rec.Auth, rec.Password, rec.Suspended, rec.Confirmed,
		rec.Email(), fields, profile, rec.TimeCreated, rec.TimeModified,
	).Scan(&id)
	if err != nil {
		return 0, wrapUnique(err, rec.Username)
	}
	return id, nil
}

func (p *Postgres) Update(ctx context.Context, rec *core.Record) error {
	fields, profile, err := encodeMaps(rec)
	if err != nil {
		return err
	}

	tag, err := p.pool.Exec(ctx, `
		UPDATE users SET username = $2, auth = $3, password = $4, suspended = $5,
			email = $6, fields = $7, profile = $8, timemodified = $9
		WHERE id = $1 AND NOT deleted`,
		rec.ID, rec.Username, rec.Auth, rec.Password, rec.Suspended,
		rec.Email(), fields, profile, rec.TimeModified,
	)
	if err != nil {
		return wrapUnique(err, rec.Username)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update user %d: %w", rec.ID, core.ErrNotFound)
	}
	return nil
}

// Delete soft deletes a user. The username is rewritten so the identity can
// be reused, and memberships, enrolments and sessions are removed.
func (p *Postgres) Delete(ctx context.Context, rec *core.Record) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE users SET deleted = TRUE,
			username = username || '.deleted.' || id::text,
			email = '', password = '', timemodified = now()
		WHERE id = $1 AND NOT deleted`, rec.ID)
	if err != nil {
		return fmt.Errorf("delete user %d: %w", rec.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete user %d: %w", rec.ID, core.ErrNotFound)
	}

	for _, q := range []string{
		`DELETE FROM user_sessions WHERE user_id = $1`,
		`DELETE FROM cohort_members WHERE user_id = $1`,
		`DELETE FROM role_assignments WHERE user_id = $1`,
		`DELETE FROM group_members WHERE user_id = $1`,
		`DELETE FROM enrolments WHERE user_id = $1`,
		`DELETE FROM user_preferences WHERE user_id = $1`,
	} {
		if _, err := tx.Exec(ctx, q, rec.ID); err != nil {
			return fmt.Errorf("delete user %d: %w", rec.ID, err)
		}
	}

	return tx.Commit(ctx)
}

func (p *Postgres) SetPreference(ctx context.Context, userID int64, name, value string) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO user_preferences (user_id, name, value) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, name) DO UPDATE SET value = EXCLUDED.value`,
		userID, name, value)
	return err
}

// --- core.DirectiveExecutor ---

func (p *Postgres) AddCohortMember(ctx context.Context, userID int64, cohort string) (bool, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	var (
		cohortID int64
		created  bool
	)
	err = tx.QueryRow(ctx, `
		INSERT INTO cohorts (idnumber, name) VALUES ($1, $1)
		ON CONFLICT (idnumber) DO NOTHING
		RETURNING id`, cohort).Scan(&cohortID)
	switch {
	case err == nil:
		created = true
	case errors.Is(err, pgx.ErrNoRows):
		if err := tx.QueryRow(ctx, `SELECT id FROM cohorts WHERE idnumber = $1`, cohort).Scan(&cohortID); err != nil {
			return false, err
		}
	default:
		return false, err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO cohort_members (cohort_id, user_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, cohortID, userID); err != nil {
		return false, err
	}
	return created, tx.Commit(ctx)
}

func (p *Postgres) systemRoleExists(ctx context.Context, role string) error {
	var ok bool
	if err := p.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM roles WHERE shortname = $1 AND system)`, role).Scan(&ok); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}
	return nil
}

func (p *Postgres) AssignSystemRole(ctx context.Context, userID int64, role string) error {
	if err := p.systemRoleExists(ctx, role); err != nil {
		return err
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO role_assignments (role, user_id, context) VALUES ($1, $2, 'system')
		ON CONFLICT DO NOTHING`, role, userID)
	return err
}

func (p *Postgres) UnassignSystemRole(ctx context.Context, userID int64, role string) error {
	if err := p.systemRoleExists(ctx, role); err != nil {
		return err
	}
	_, err := p.pool.Exec(ctx,
		`DELETE FROM role_assignments WHERE role = $1 AND user_id = $2 AND context = 'system'`,
		role, userID)
	return err
}

func (p *Postgres) Enrol(ctx context.Context, userID int64, e core.Enrolment) error {
	role := e.Role
	if role == "" {
		role = DefaultCourseRole
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var courseID int64
	err = tx.QueryRow(ctx, `SELECT id FROM courses WHERE shortname = $1`, e.Course).Scan(&courseID)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrUnknownCourse, e.Course)
	}
	if err != nil {
		return err
	}

	var roleOK bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE shortname = $1)`, role).Scan(&roleOK); err != nil {
		return err
	}
	if !roleOK {
		return fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}

	var end *time.Time
	if e.Period > 0 {
		t := e.Start.Add(e.Period)
		end = &t
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO enrolments (course_id, user_id, role, suspended, time_start, time_end)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (course_id, user_id) DO UPDATE
		SET role = EXCLUDED.role, suspended = EXCLUDED.suspended,
			time_start = EXCLUDED.time_start, time_end = EXCLUDED.time_end`,
		courseID, userID, role, e.Suspended, e.Start, end); err != nil {
		return err
	}

	if e.Group != "" {
		var groupID int64
		if err := tx.QueryRow(ctx, `
			INSERT INTO course_groups (course_id, name) VALUES ($1, $2)
			ON CONFLICT (course_id, name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id`, courseID, e.Group).Scan(&groupID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO group_members (group_id, user_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, groupID, userID); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// --- core.RunRecorder and RunHistory ---

func (p *Postgres) RecordRun(ctx context.Context, s core.Summary) error {
	initiator, err := json.Marshal(s.Initiator)
	if err != nil {
		return fmt.Errorf("encode initiator: %w", err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO upload_runs (id, source, mode, initiator, total, created, updated,
			deleted, errors, aborted, abort_reason, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		toPgUUID(s.RunID), s.Source, s.Mode, initiator, s.Total, s.Created, s.Updated,
		s.Deleted, s.Errors, s.Aborted, toPgText(s.AbortReason), s.StartedAt, s.FinishedAt,
	)
	return err
}

const runColumns = `id, source, mode, initiator, total, created, updated, deleted,
	errors, aborted, abort_reason, started_at, finished_at`

func (p *Postgres) ListRuns(ctx context.Context, f RunFilter) ([]core.Summary, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultRunLimit
	}

	wb := newWhereBuilder()
	wb.Add("mode", f.Mode)
	if f.Aborted != nil {
		wb.AddBool("aborted", *f.Aborted)
	}
	if !f.Since.IsZero() {
		wb.AddSince("started_at", f.Since)
	}
	where, args := wb.Build()

	query := `SELECT ` + runColumns + ` FROM upload_runs` + where +
		fmt.Sprintf(" ORDER BY started_at DESC LIMIT $%d OFFSET $%d", wb.NextArgIndex(), wb.NextArgIndex()+1)
	args = append(args, limit, f.Offset)

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]core.Summary, 0)
	for rows.Next() {
		s, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, s)
	}
	return runs, rows.Err()
}

func (p *Postgres) GetRun(ctx context.Context, runID string) (core.Summary, error) {
	id := toPgUUID(runID)
	if !id.Valid {
		return core.Summary{}, ErrRunNotFound
	}
	s, err := scanRun(p.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM upload_runs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Summary{}, ErrRunNotFound
	}
	return s, err
}

// PurgeRuns deletes run history that finished before cutoff.
func (p *Postgres) PurgeRuns(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM upload_runs WHERE finished_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanRun(row pgx.Row) (core.Summary, error) {
	var (
		s         core.Summary
		id        = toPgUUID("")
		initiator []byte
		reason    = toPgText("")
	)
	err := row.Scan(&id, &s.Source, &s.Mode, &initiator, &s.Total, &s.Created, &s.Updated,
		&s.Deleted, &s.Errors, &s.Aborted, &reason, &s.StartedAt, &s.FinishedAt)
	if err != nil {
		return core.Summary{}, err
	}
	s.RunID = uuidToString(id)
	if reason.Valid {
		s.AbortReason = reason.String
	}
	if len(initiator) > 0 {
		if err := json.Unmarshal(initiator, &s.Initiator); err != nil {
			return core.Summary{}, fmt.Errorf("decode initiator: %w", err)
		}
	}
	return s, nil
}

// CountUsers returns the number of live users.
func (p *Postgres) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE NOT deleted`).Scan(&n)
	return n, err
}
