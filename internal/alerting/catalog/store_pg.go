package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/qiniu/alert-policies/internal/alerting/database"
)

// Schema creates the catalog tables. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS alert_policies (
	name        TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	spec        JSONB NOT NULL,
	fingerprint TEXT NOT NULL,
	run_id      TEXT NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS alert_policy_change_logs (
	id              TEXT PRIMARY KEY,
	policy_name     TEXT NOT NULL,
	change_type     TEXT NOT NULL,
	run_id          TEXT NOT NULL,
	old_fingerprint TEXT,
	new_fingerprint TEXT NOT NULL,
	change_time     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS alert_policy_change_logs_policy_idx ON alert_policy_change_logs (policy_name, change_time);
`

// querier is satisfied by both *database.Database and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PgStore is the PostgreSQL-backed Store.
type PgStore struct {
	db *database.Database
	q  querier
}

func NewPgStore(db *database.Database) *PgStore { return &PgStore{db: db, q: db} }

// EnsureSchema creates the catalog tables if they do not exist.
func (s *PgStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.q.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure catalog schema: %w", err)
	}
	return nil
}

func (s *PgStore) WithTx(ctx context.Context, fn func(Store) error) error {
	if _, ok := s.q.(*sql.Tx); ok {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&PgStore{db: s.db, q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *PgStore) GetPolicy(ctx context.Context, name string) (*Entry, error) {
	const q = `SELECT name, kind, spec, fingerprint, run_id, updated_at FROM alert_policies WHERE name = $1`
	var e Entry
	err := s.q.QueryRowContext(ctx, q, name).Scan(&e.Name, &e.Kind, &e.Spec, &e.Fingerprint, &e.RunID, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("get policy: %w", err)
	}
	return &e, nil
}

func (s *PgStore) UpsertPolicy(ctx context.Context, e *Entry) error {
	const q = `
	INSERT INTO alert_policies(name, kind, spec, fingerprint, run_id, updated_at)
	VALUES ($1, $2, $3::jsonb, $4, $5, $6)
	ON CONFLICT (name) DO UPDATE SET
		kind = EXCLUDED.kind,
		spec = EXCLUDED.spec,
		fingerprint = EXCLUDED.fingerprint,
		run_id = EXCLUDED.run_id,
		updated_at = EXCLUDED.updated_at
	`
	if _, err := s.q.ExecContext(ctx, q, e.Name, e.Kind, string(e.Spec), e.Fingerprint, e.RunID, e.UpdatedAt); err != nil {
		return fmt.Errorf("upsert policy: %w", err)
	}
	return nil
}

func (s *PgStore) ListPolicies(ctx context.Context) ([]*Entry, error) {
	const q = `SELECT name, kind, spec, fingerprint, run_id, updated_at FROM alert_policies ORDER BY name`
	rows, err := s.q.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	defer rows.Close()

	var res []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Name, &e.Kind, &e.Spec, &e.Fingerprint, &e.RunID, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan policy: %w", err)
		}
		res = append(res, &e)
	}
	return res, rows.Err()
}

func (s *PgStore) InsertChangeLog(ctx context.Context, l *ChangeLog) error {
	const q = `
	INSERT INTO alert_policy_change_logs(id, policy_name, change_type, run_id, old_fingerprint, new_fingerprint, change_time)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	var old sql.NullString
	if l.OldFingerprint != "" {
		old = sql.NullString{String: l.OldFingerprint, Valid: true}
	}
	if _, err := s.q.ExecContext(ctx, q, l.ID, l.PolicyName, l.ChangeType, l.RunID, old, l.NewFingerprint, l.ChangeTime); err != nil {
		return fmt.Errorf("insert change log: %w", err)
	}
	return nil
}

func (s *PgStore) ListChangeLogs(ctx context.Context, limit int) ([]*ChangeLog, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
	SELECT id, policy_name, change_type, run_id, COALESCE(old_fingerprint, ''), new_fingerprint, change_time
	FROM alert_policy_change_logs
	ORDER BY change_time DESC, id
	LIMIT $1
	`
	rows, err := s.q.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list change logs: %w", err)
	}
	defer rows.Close()

	var res []*ChangeLog
	for rows.Next() {
		var l ChangeLog
		if err := rows.Scan(&l.ID, &l.PolicyName, &l.ChangeType, &l.RunID, &l.OldFingerprint, &l.NewFingerprint, &l.ChangeTime); err != nil {
			return nil, fmt.Errorf("scan change log: %w", err)
		}
		res = append(res, &l)
	}
	return res, rows.Err()
}
