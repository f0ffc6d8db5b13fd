// Package history keeps a SQLite ledger of verification runs so past
// batches can be listed and inspected after their terminal output is gone.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dshills/veridoc/internal/envsubst"
	"github.com/dshills/veridoc/internal/verify"
)

// ErrNotFound is returned by Get for an unknown run id.
var ErrNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	project      TEXT NOT NULL,
	discipline   TEXT NOT NULL,
	trigger_name TEXT NOT NULL DEFAULT '',
	provider     TEXT NOT NULL DEFAULT '',
	model        TEXT NOT NULL DEFAULT '',
	started_at   TEXT NOT NULL,
	finished_at  TEXT NOT NULL,
	total        INTEGER NOT NULL,
	succeeded    INTEGER NOT NULL,
	failed       INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS outcomes (
	run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	position    INTEGER NOT NULL,
	unit        TEXT NOT NULL,
	success     INTEGER NOT NULL,
	report_path TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT '',
	failed_at   TEXT NOT NULL DEFAULT '',
	cached      INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, position)
);
CREATE INDEX IF NOT EXISTS runs_started ON runs(started_at);
`

// Run is one recorded batch.
type Run struct {
	ID         string    `json:"id"`
	Project    string    `json:"project"`
	Discipline string    `json:"discipline"`
	Trigger    string    `json:"trigger,omitempty"`
	Provider   string    `json:"provider,omitempty"`
	Model      string    `json:"model,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Total      int       `json:"total"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
}

// Entry is a recorded unit outcome.
type Entry struct {
	Unit       string        `json:"unit"`
	Success    bool          `json:"success"`
	ReportPath string        `json:"report_path,omitempty"`
	Error      string        `json:"error,omitempty"`
	FailedAt   string        `json:"failed_at,omitempty"`
	Cached     bool          `json:"cached,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Store is the ledger. Safe for concurrent use.
type Store struct {
	db   *sql.DB
	path string
}

// DefaultPath is $XDG_DATA_HOME/veridoc/history.db, falling back to
// ~/.local/share. Both variables are read through lookup.
func DefaultPath(lookup envsubst.Lookup) (string, error) {
	if dir, _ := lookup("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "veridoc", "history.db"), nil
	}
	home, _ := lookup("HOME")
	if home == "" {
		h, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("locating home directory: %w", err)
		}
		home = h
	}
	return filepath.Join(home, ".local", "share", "veridoc", "history.db"), nil
}

// Open opens or creates the ledger at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history: %w", err)
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("configuring history: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating history schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Path is the database file.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Record appends a batch result. trigger names what started the run
// ("run", "cr", "watch", "hook").
func (s *Store) Record(ctx context.Context, res *verify.BatchResult, trigger string) error {
	if res == nil {
		return errors.New("history: nil result")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}
	defer tx.Rollback()

	var provider, model string
	if len(res.Outcomes) > 0 {
		provider, model = res.Outcomes[0].Provider, res.Outcomes[0].Model
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, project, discipline, trigger_name, provider, model, started_at, finished_at, total, succeeded, failed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.RunID, res.Project, string(res.Discipline), trigger, provider, model,
		formatTime(res.StartedAt), formatTime(res.FinishedAt),
		res.Total, res.Succeeded, res.Failed)
	if err != nil {
		return fmt.Errorf("history: recording run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO outcomes (run_id, position, unit, success, report_path, error, failed_at, cached, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}
	defer stmt.Close()
	for i, o := range res.Outcomes {
		if _, err := stmt.ExecContext(ctx, res.RunID, i, o.Unit, boolInt(o.Success), o.ReportPath,
			o.Error, string(o.FailedAt), boolInt(o.Cached), o.Duration.Milliseconds()); err != nil {
			return fmt.Errorf("history: recording %s: %w", o.Unit, err)
		}
	}
	return tx.Commit()
}

const runColumns = `id, project, discipline, trigger_name, provider, model, started_at, finished_at, total, succeeded, failed`

// Recent returns up to limit runs, newest first. limit <= 0 means 20.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Get returns one run and its outcomes in batch order. id may be a unique
// prefix of the run id.
func (s *Store) Get(ctx context.Context, id string) (Run, []Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id LIKE ? || '%' LIMIT 2`, id)
	if err != nil {
		return Run{}, nil, fmt.Errorf("history: %w", err)
	}
	var matches []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			rows.Close()
			return Run{}, nil, err
		}
		matches = append(matches, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Run{}, nil, fmt.Errorf("history: %w", err)
	}
	switch len(matches) {
	case 0:
		return Run{}, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	case 2:
		return Run{}, nil, fmt.Errorf("history: run id prefix %q is ambiguous", id)
	}
	run := matches[0]

	orows, err := s.db.QueryContext(ctx,
		`SELECT unit, success, report_path, error, failed_at, cached, duration_ms
		 FROM outcomes WHERE run_id = ? ORDER BY position`, run.ID)
	if err != nil {
		return Run{}, nil, fmt.Errorf("history: %w", err)
	}
	defer orows.Close()
	var entries []Entry
	for orows.Next() {
		var (
			e               Entry
			success, cached int
			ms              int64
		)
		if err := orows.Scan(&e.Unit, &success, &e.ReportPath, &e.Error, &e.FailedAt, &cached, &ms); err != nil {
			return Run{}, nil, fmt.Errorf("history: %w", err)
		}
		e.Success, e.Cached = success != 0, cached != 0
		e.Duration = time.Duration(ms) * time.Millisecond
		entries = append(entries, e)
	}
	return run, entries, orows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		r                 Run
		started, finished string
	)
	if err := sc.Scan(&r.ID, &r.Project, &r.Discipline, &r.Trigger, &r.Provider, &r.Model,
		&started, &finished, &r.Total, &r.Succeeded, &r.Failed); err != nil {
		return Run{}, fmt.Errorf("history: %w", err)
	}
	r.StartedAt = parseTime(started)
	r.FinishedAt = parseTime(finished)
	return r, nil
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
