package tracking

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	job_id      TEXT NOT NULL DEFAULT '',
	engine      TEXT NOT NULL,
	state       TEXT NOT NULL,
	started_at  INTEGER NOT NULL,
	elapsed_ms  INTEGER NOT NULL DEFAULT 0,
	processed   INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0,
	errored     INTEGER NOT NULL DEFAULT 0,
	source      TEXT NOT NULL DEFAULT '',
	destination TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_runs_job ON runs(job_id, started_at);
`

// runRow stores StartedAt as unix milliseconds.
type runRow struct {
	RunRecord
	StartedAtMS int64 `db:"started_at"`
}

// SQLiteStorage keeps the run history in a SQLite database
type SQLiteStorage struct {
	path string
	db   *sqlx.DB
}

// NewSQLiteStorage uses run_history.db inside dir, or dir itself when it
// already names a .db file.
func NewSQLiteStorage(dir string) (*SQLiteStorage, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage path cannot be empty")
	}
	path := dir
	if !strings.HasSuffix(dir, ".db") {
		path = filepath.Join(dir, "run_history.db")
	}
	return &SQLiteStorage{path: path}, nil
}

func (s *SQLiteStorage) Initialize() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := sqlx.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("failed to open sqlite db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return fmt.Errorf("failed to create schema: %w", err)
	}

	s.db = db
	return nil
}

func (s *SQLiteStorage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStorage) AddRecord(ctx context.Context, record RunRecord) error {
	if s.db == nil {
		return ErrStorageNotInitialized
	}

	row := runRow{RunRecord: record, StartedAtMS: record.StartedAt.UnixMilli()}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT OR REPLACE INTO runs (
			run_id, job_id, engine, state, started_at, elapsed_ms,
			processed, skipped, errored, source, destination, error
		) VALUES (
			:run_id, :job_id, :engine, :state, :started_at, :elapsed_ms,
			:processed, :skipped, :errored, :source, :destination, :error
		)`, row)
	if err != nil {
		return fmt.Errorf("failed to insert run record: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) GetRecords(ctx context.Context, filter Filter) ([]RunRecord, error) {
	if s.db == nil {
		return nil, ErrStorageNotInitialized
	}

	var (
		where []string
		args  []any
	)
	if filter.JobID != "" {
		where = append(where, "job_id = ?")
		args = append(args, filter.JobID)
	}
	if filter.Engine != "" {
		where = append(where, "engine = ?")
		args = append(args, filter.Engine)
	}
	if filter.State != "" {
		where = append(where, "state = ?")
		args = append(args, filter.State)
	}

	query := "SELECT * FROM runs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	var rows []runRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query run records: %w", err)
	}

	records := make([]RunRecord, 0, len(rows))
	for _, r := range rows {
		rec := r.RunRecord
		rec.StartedAt = time.UnixMilli(r.StartedAtMS).UTC()
		records = append(records, rec)
	}
	return records, nil
}

func (s *SQLiteStorage) CleanupOldRecords(ctx context.Context, retentionDays int) error {
	if s.db == nil {
		return ErrStorageNotInitialized
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays).UnixMilli()
	if _, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE started_at < ?", cutoff); err != nil {
		return fmt.Errorf("failed to delete old run records: %w", err)
	}
	return nil
}
