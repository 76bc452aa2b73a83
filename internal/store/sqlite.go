package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/biolit/litmine/internal/condense"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS mining_runs (
	id            TEXT PRIMARY KEY,
	query         TEXT NOT NULL,
	profile       TEXT NOT NULL DEFAULT 'mine',
	model         TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT 'running',
	content       TEXT NOT NULL DEFAULT '',
	confidence    REAL NOT NULL DEFAULT 0,
	errors        TEXT,
	backend_calls INTEGER NOT NULL DEFAULT 0,
	levels        INTEGER NOT NULL DEFAULT 0,
	duration_ms   INTEGER NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_mining_runs_status ON mining_runs(status);
CREATE INDEX IF NOT EXISTS idx_mining_runs_profile ON mining_runs(profile);
CREATE INDEX IF NOT EXISTS idx_mining_runs_created_at ON mining_runs(created_at DESC);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, query, profile, model string) (*Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO mining_runs (id, query, profile, model, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, query, profile, model, RunStatusRunning, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &Run{
		ID:        id,
		Query:     query,
		Profile:   profile,
		Model:     model,
		Status:    RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, res *condense.Result) error {
	errorsJSON, err := json.Marshal(res.Errors)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal errors")
	}

	out, err := s.db.ExecContext(ctx,
		`UPDATE mining_runs SET status = ?, content = ?, confidence = ?, errors = ?, backend_calls = ?, levels = ?, duration_ms = ?, updated_at = ? WHERE id = ?`,
		string(res.Status), res.Content, res.Confidence, string(errorsJSON),
		res.Calls, res.Levels, res.DurationMS, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	n, err := out.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s", runID)
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, query, profile, model, status, content, confidence, errors, backend_calls, levels, duration_ms, created_at, updated_at FROM mining_runs WHERE id = ?`,
		runID,
	)
	r, err := scanSQLiteRun(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "%s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `SELECT id, query, profile, model, status, content, confidence, errors, backend_calls, levels, duration_ms, created_at, updated_at FROM mining_runs WHERE true`
	args := []any{}

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.Profile != "" {
		query += ` AND profile = ?`
		args = append(args, filter.Profile)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanSQLiteRun(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func scanSQLiteRun(scan func(dest ...any) error) (*Run, error) {
	var r Run
	var errorsJSON sql.NullString

	err := scan(&r.ID, &r.Query, &r.Profile, &r.Model, &r.Status,
		&r.Content, &r.Confidence, &errorsJSON,
		&r.Calls, &r.Levels, &r.DurationMS, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if errorsJSON.Valid && errorsJSON.String != "" && errorsJSON.String != "null" {
		if err := json.Unmarshal([]byte(errorsJSON.String), &r.Errors); err != nil {
			return nil, eris.Wrap(err, "unmarshal errors")
		}
	}
	return &r, nil
}
