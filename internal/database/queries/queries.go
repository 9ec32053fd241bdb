// Package queries is a hand-written, sqlc-shaped data access layer: one
// method per statement, `sql.Null*` types at the param/result boundary. It
// stands in for generated code because this exercise never invokes a code
// generator.
package queries

import (
	"context"
	"database/sql"
	"time"

	"github.com/coreagg/indexercore/internal/indexer/registry"
	"github.com/coreagg/indexercore/internal/indexer/types"
)

// Queries wraps a *sql.DB with the statements this repo needs against the
// indexer_health and cf_sessions tables.
type Queries struct {
	db *sql.DB
}

// New builds a Queries over an already-migrated connection.
func New(db *sql.DB) *Queries {
	return &Queries{db: db}
}

var _ registry.HealthStore = (*Queries)(nil)

const upsertHealthSQL = `
INSERT INTO indexer_health (
	id, last_checked_at, last_succeeded_at, total_checks, total_successes,
	total_failures, consecutive_failures, disabled_until, enabled,
	working_domain, last_error, requires_solver, avg_response_ms, is_public
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	last_checked_at = excluded.last_checked_at,
	last_succeeded_at = excluded.last_succeeded_at,
	total_checks = excluded.total_checks,
	total_successes = excluded.total_successes,
	total_failures = excluded.total_failures,
	consecutive_failures = excluded.consecutive_failures,
	disabled_until = excluded.disabled_until,
	enabled = excluded.enabled,
	working_domain = excluded.working_domain,
	last_error = excluded.last_error,
	requires_solver = excluded.requires_solver,
	avg_response_ms = excluded.avg_response_ms,
	is_public = excluded.is_public
`

// Upsert implements registry.HealthStore.
func (q *Queries) Upsert(ctx context.Context, row *types.IndexerHealthRow) error {
	_, err := q.db.ExecContext(ctx, upsertHealthSQL,
		row.ID,
		nullTime(row.LastCheckedAt),
		nullTime(row.LastSucceededAt),
		row.TotalChecks,
		row.TotalSuccesses,
		row.TotalFailures,
		row.ConsecutiveFailures,
		nullTimePtr(row.DisabledUntil),
		row.Enabled,
		row.WorkingDomain,
		row.LastError,
		string(row.RequiresSolver),
		row.AvgResponseMs,
		row.IsPublic,
	)
	return err
}

const selectHealthByIDSQL = `
SELECT id, last_checked_at, last_succeeded_at, total_checks, total_successes,
	total_failures, consecutive_failures, disabled_until, enabled,
	working_domain, last_error, requires_solver, avg_response_ms, is_public
FROM indexer_health WHERE id = ?
`

// Get implements registry.HealthStore. Returns (nil, nil) when the row doesn't exist.
func (q *Queries) Get(ctx context.Context, id string) (*types.IndexerHealthRow, error) {
	row := q.db.QueryRowContext(ctx, selectHealthByIDSQL, id)
	out, err := scanHealthRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return out, err
}

const selectHealthAllSQL = `
SELECT id, last_checked_at, last_succeeded_at, total_checks, total_successes,
	total_failures, consecutive_failures, disabled_until, enabled,
	working_domain, last_error, requires_solver, avg_response_ms, is_public
FROM indexer_health
`

// All implements registry.HealthStore.
func (q *Queries) All(ctx context.Context) ([]*types.IndexerHealthRow, error) {
	rows, err := q.db.QueryContext(ctx, selectHealthAllSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanHealthRows(rows)
}

// List implements registry.HealthStore. Filtering beyond the public/private
// split is done in Go rather than SQL, since the success-rate and priority
// computations live on the model, not the schema.
func (q *Queries) List(ctx context.Context, filter registry.HealthFilter) ([]*types.IndexerHealthRow, error) {
	query := selectHealthAllSQL
	var args []interface{}
	if filter.PublicOnly {
		query += " WHERE is_public = ?"
		args = append(args, true)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	all, err := scanHealthRows(rows)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	out := make([]*types.IndexerHealthRow, 0, len(all))
	for _, r := range all {
		if r.SuccessRate() < filter.MinSuccessRate {
			continue
		}
		if filter.ExcludeDisabled && r.DisabledUntil != nil && r.DisabledUntil.After(now) {
			continue
		}
		out = append(out, r)
	}

	if filter.OrderByPriorityDesc {
		sortHealthByPriorityDesc(out)
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func sortHealthByPriorityDesc(rows []*types.IndexerHealthRow) {
	for i := 1; i < len(rows); i++ {
		j := i
		for j > 0 && healthPriority(rows[j-1]) < healthPriority(rows[j]) {
			rows[j-1], rows[j] = rows[j], rows[j-1]
			j--
		}
	}
}

// healthPriority derives a row's ranking score from its actual last-check
// outcome instead of assuming success, matching internal/api/handlers.go's
// row.Priority(row.ConsecutiveFailures == 0) derivation.
func healthPriority(row *types.IndexerHealthRow) int {
	return row.Priority(row.ConsecutiveFailures == 0)
}

func scanHealthRows(rows *sql.Rows) ([]*types.IndexerHealthRow, error) {
	var out []*types.IndexerHealthRow
	for rows.Next() {
		r, err := scanHealthRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanHealthRow(s rowScanner) (*types.IndexerHealthRow, error) {
	var (
		r                types.IndexerHealthRow
		lastCheckedAt    sql.NullTime
		lastSucceededAt  sql.NullTime
		disabledUntil    sql.NullTime
		workingDomain    sql.NullString
		lastError        sql.NullString
		requiresSolver   string
	)

	if err := s.Scan(
		&r.ID,
		&lastCheckedAt,
		&lastSucceededAt,
		&r.TotalChecks,
		&r.TotalSuccesses,
		&r.TotalFailures,
		&r.ConsecutiveFailures,
		&disabledUntil,
		&r.Enabled,
		&workingDomain,
		&lastError,
		&requiresSolver,
		&r.AvgResponseMs,
		&r.IsPublic,
	); err != nil {
		return nil, err
	}

	r.LastCheckedAt = lastCheckedAt.Time
	r.LastSucceededAt = lastSucceededAt.Time
	r.WorkingDomain = workingDomain.String
	r.LastError = lastError.String
	r.RequiresSolver = types.SolverRequirement(requiresSolver)
	if disabledUntil.Valid {
		t := disabledUntil.Time
		r.DisabledUntil = &t
	}
	return &r, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

const upsertSessionSQL = `
INSERT INTO cf_sessions (host, cookies, user_agent, expires_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(host) DO UPDATE SET
	cookies = excluded.cookies,
	user_agent = excluded.user_agent,
	expires_at = excluded.expires_at
`

// PutSession persists a solved session so it survives process restarts.
func (q *Queries) PutSession(ctx context.Context, entry *types.SessionEntry) error {
	_, err := q.db.ExecContext(ctx, upsertSessionSQL, entry.Host, joinCookies(entry.Cookies), entry.UserAgent, entry.ExpiresAt)
	return err
}

const selectSessionSQL = `SELECT host, cookies, user_agent, expires_at FROM cf_sessions WHERE host = ?`

// GetSession returns the persisted session for host, or (nil, nil) if absent.
func (q *Queries) GetSession(ctx context.Context, host string) (*types.SessionEntry, error) {
	var (
		entry   types.SessionEntry
		cookies string
	)
	err := q.db.QueryRowContext(ctx, selectSessionSQL, host).Scan(&entry.Host, &cookies, &entry.UserAgent, &entry.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	entry.Cookies = splitCookies(cookies)
	return &entry, nil
}

// DeleteSession removes any persisted session for host.
func (q *Queries) DeleteSession(ctx context.Context, host string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM cf_sessions WHERE host = ?`, host)
	return err
}

func joinCookies(cookies []string) string {
	out := ""
	for i, c := range cookies {
		if i > 0 {
			out += "\n"
		}
		out += c
	}
	return out
}

func splitCookies(joined string) []string {
	if joined == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(joined); i++ {
		if i == len(joined) || joined[i] == '\n' {
			out = append(out, joined[start:i])
			start = i + 1
		}
	}
	return out
}
