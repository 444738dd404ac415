package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/cwygoda/linkbatch/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    chat_id     INTEGER NOT NULL,
    batch_name  TEXT NOT NULL DEFAULT '',
    start_index INTEGER NOT NULL DEFAULT 1,
    total       INTEGER NOT NULL DEFAULT 0,
    succeeded   INTEGER NOT NULL DEFAULT 0,
    failed      INTEGER NOT NULL DEFAULT 0,
    status      TEXT NOT NULL DEFAULT 'running',
    error       TEXT,
    created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);

CREATE TABLE IF NOT EXISTS link_results (
    run_id    TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    idx       INTEGER NOT NULL,
    label     TEXT NOT NULL DEFAULT '',
    url       TEXT NOT NULL,
    category  TEXT NOT NULL DEFAULT '',
    strategy  TEXT NOT NULL DEFAULT '',
    outcome   TEXT NOT NULL,
    attempts  INTEGER NOT NULL DEFAULT 0,
    error     TEXT,
    PRIMARY KEY (run_id, idx)
);

CREATE TABLE IF NOT EXISTS admins (
    user_id    INTEGER PRIMARY KEY,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

const keyLogChannel = "log_channel"

// Repository implements domain.RunRepository and domain.SettingsRepository
// using SQLite.
type Repository struct {
	db *sql.DB
}

// New creates a new SQLite repository, initializing the schema if needed.
func New(dbPath string) (*Repository, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return &Repository{db: db}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// CreateRun inserts a running batch. An empty run.ID is filled in.
func (r *Repository) CreateRun(ctx context.Context, run *domain.BatchRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = domain.RunRunning
	}
	now := time.Now()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO runs (id, chat_id, batch_name, start_index, total, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.ChatID, run.BatchName, run.StartIndex, run.Total, run.Status, now, now,
	)
	if err != nil {
		return err
	}
	run.CreatedAt = now
	run.UpdatedAt = now
	return nil
}

// RecordLink stores one link outcome. Recording the same index twice keeps
// the latest result.
func (r *Repository) RecordLink(ctx context.Context, runID string, res domain.LinkResult) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO link_results (run_id, idx, label, url, category, strategy, outcome, attempts, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, res.Index, res.Label, res.URL, res.Category, res.Strategy, res.Outcome, res.Attempts, res.Error,
	)
	return err
}

// FinishRun stores the final counters and status.
func (r *Repository) FinishRun(ctx context.Context, runID string, stats domain.BatchStats, status domain.RunStatus, reason string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE runs SET succeeded = ?, failed = ?, status = ?, error = ?, updated_at = ? WHERE id = ?`,
		stats.Succeeded, stats.Failed, status, reason, time.Now(), runID,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrRunNotFound
	}
	return nil
}

// GetRun retrieves a run by ID.
func (r *Repository) GetRun(ctx context.Context, id string) (*domain.BatchRun, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, chat_id, batch_name, start_index, total, succeeded, failed, status,
		        COALESCE(error, ''), created_at, updated_at
		 FROM runs WHERE id = ?`, id,
	)
	return scanRun(row)
}

// ListRuns returns the most recent runs first.
func (r *Repository) ListRuns(ctx context.Context, limit int) ([]domain.BatchRun, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, chat_id, batch_name, start_index, total, succeeded, failed, status,
		        COALESCE(error, ''), created_at, updated_at
		 FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.BatchRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// LinkResults returns the recorded links of a run in index order.
func (r *Repository) LinkResults(ctx context.Context, runID string) ([]domain.LinkResult, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT idx, label, url, category, strategy, outcome, attempts, COALESCE(error, '')
		 FROM link_results WHERE run_id = ? ORDER BY idx ASC`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.LinkResult
	for rows.Next() {
		var res domain.LinkResult
		var category, strategy, outcome string
		if err := rows.Scan(&res.Index, &res.Label, &res.URL, &category, &strategy, &outcome, &res.Attempts, &res.Error); err != nil {
			return nil, err
		}
		res.Category = domain.Category(category)
		res.Strategy = domain.Strategy(strategy)
		res.Outcome = domain.Outcome(outcome)
		results = append(results, res)
	}
	return results, rows.Err()
}

// RecoverStale marks runs left running by a previous process as aborted.
func (r *Repository) RecoverStale(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = 'interrupted by restart', updated_at = ?
		 WHERE status = ?`,
		domain.RunAborted, time.Now(), domain.RunRunning,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// AddAdmin grants admin rights to a user. Adding an existing admin is a no-op.
func (r *Repository) AddAdmin(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO admins (user_id, created_at) VALUES (?, ?)`,
		userID, time.Now(),
	)
	return err
}

// IsAdmin reports whether the user is a stored admin.
func (r *Repository) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM admins WHERE user_id = ?`, userID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetLogChannel stores the chat that receives batch summaries.
func (r *Repository) SetLogChannel(ctx context.Context, chatID int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		keyLogChannel, strconv.FormatInt(chatID, 10),
	)
	return err
}

// GetLogChannel returns the stored log channel, if any.
func (r *Repository) GetLogChannel(ctx context.Context) (int64, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, keyLogChannel).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*domain.BatchRun, error) {
	var run domain.BatchRun
	var status string
	err := row.Scan(&run.ID, &run.ChatID, &run.BatchName, &run.StartIndex, &run.Total,
		&run.Succeeded, &run.Failed, &status, &run.Error, &run.CreatedAt, &run.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	run.Status = domain.RunStatus(status)
	return &run, nil
}
