// Package history keeps an audit log of sync runs in SQLite. It is written
// after each run and read by the history command; nothing consults it to
// decide what to upload.
package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Run statuses.
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusAborted = "aborted"
	StatusDryRun  = "dry_run"
)

const (
	sqlInsertRun = `INSERT INTO runs
		(id, started_at, finished_at, local_dir, target, dry_run,
		 uploaded, failed, bytes, folders_created, ignored, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlInsertFile = `INSERT INTO run_files
		(run_id, seq, path, remote_path, size, outcome, error_kind, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	sqlRecentRuns = `SELECT id, started_at, finished_at, local_dir, target, dry_run,
		uploaded, failed, bytes, folders_created, ignored, status, error
		FROM runs ORDER BY started_at DESC, id LIMIT ?`

	sqlRunFiles = `SELECT path, remote_path, size, outcome, error_kind, message
		FROM run_files WHERE run_id = ? ORDER BY seq`
)

// RunRecord is one row of the runs table.
type RunRecord struct {
	ID             string
	StartedAt      time.Time
	FinishedAt     time.Time
	LocalDir       string
	Target         string
	DryRun         bool
	Uploaded       int
	Failed         int
	Bytes          int64
	FoldersCreated int
	Ignored        int
	Status         string
	Error          string
}

// FileRecord is one attempted file of a run.
type FileRecord struct {
	Path       string
	RemotePath string
	Size       int64
	Outcome    string
	ErrorKind  string
	Message    string
}

// Store is the history database. Safe for concurrent use; writes are
// serialized by a single connection.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the database at path and applies
// pending migrations.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("history: creating directory for %s: %w", path, err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)",
		path,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: opening database %s: %w", path, err)
	}

	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("history database ready", slog.String("path", path))

	return &Store{db: db, logger: logger}, nil
}

func migrate(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("history: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("history: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("history: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun stores a run and its files in one transaction.
func (s *Store) RecordRun(ctx context.Context, run RunRecord, files []FileRecord) (err error) {
	if run.ID == "" {
		return errors.New("history: run ID is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: beginning transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, sqlInsertRun,
		run.ID, run.StartedAt.UnixNano(), run.FinishedAt.UnixNano(), run.LocalDir, run.Target,
		boolToInt(run.DryRun), run.Uploaded, run.Failed, run.Bytes, run.FoldersCreated,
		run.Ignored, run.Status, run.Error,
	); err != nil {
		return fmt.Errorf("history: inserting run %s: %w", run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, sqlInsertFile)
	if err != nil {
		return fmt.Errorf("history: preparing file insert: %w", err)
	}
	defer stmt.Close()

	for i, f := range files {
		if _, err = stmt.ExecContext(ctx,
			run.ID, i, f.Path, f.RemotePath, f.Size, f.Outcome, f.ErrorKind, f.Message,
		); err != nil {
			return fmt.Errorf("history: inserting file %s: %w", f.Path, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("history: committing run %s: %w", run.ID, err)
	}

	s.logger.Debug("run recorded", slog.String("run_id", run.ID), slog.Int("files", len(files)))

	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, sqlRecentRuns, limit)
	if err != nil {
		return nil, fmt.Errorf("history: querying runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord

	for rows.Next() {
		var (
			r                 RunRecord
			started, finished int64
			dryRun            int
		)

		if err := rows.Scan(&r.ID, &started, &finished, &r.LocalDir, &r.Target, &dryRun,
			&r.Uploaded, &r.Failed, &r.Bytes, &r.FoldersCreated, &r.Ignored, &r.Status, &r.Error,
		); err != nil {
			return nil, fmt.Errorf("history: scanning run: %w", err)
		}

		r.StartedAt = time.Unix(0, started)
		r.FinishedAt = time.Unix(0, finished)
		r.DryRun = dryRun != 0
		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterating runs: %w", err)
	}

	return runs, nil
}

// RunFiles returns the files of one run in the order they were attempted.
func (s *Store) RunFiles(ctx context.Context, runID string) ([]FileRecord, error) {
	rows, err := s.db.QueryContext(ctx, sqlRunFiles, runID)
	if err != nil {
		return nil, fmt.Errorf("history: querying files of run %s: %w", runID, err)
	}
	defer rows.Close()

	var files []FileRecord

	for rows.Next() {
		var f FileRecord
		if err := rows.Scan(&f.Path, &f.RemotePath, &f.Size, &f.Outcome, &f.ErrorKind, &f.Message); err != nil {
			return nil, fmt.Errorf("history: scanning file: %w", err)
		}

		files = append(files, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterating files: %w", err)
	}

	return files, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}
