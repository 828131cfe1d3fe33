// Package journal records run history for operators in a SQLite database.
// The mirror engine only ever writes to it; nothing it stores feeds back
// into which files are processed.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"

	"github.com/tonimelisma/sharepoint-mirror/internal/mirror"
)

// Run statuses.
const (
	StatusRunning  = "running"
	StatusOK       = "ok"
	StatusFailed   = "failed"
	StatusCanceled = "canceled"
)

const dirPerms = 0o700

const (
	sqlBeginRun = `INSERT INTO runs (id, started_at, status) VALUES (?, ?, 'running')`

	sqlRecordOutcome = `INSERT INTO files
		(run_id, remote_path, local_path, outcome, cause, bytes, digest,
		 disposition, disposition_to, disposition_error, duration_ms, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlFinishRun = `UPDATE runs SET
		 finished_at = ?, duration_ms = ?, status = ?, error = ?,
		 folders = ?, folders_excluded = ?, files_skipped = ?, files = ?,
		 succeeded = ?, mismatched = ?, failed = ?, moved = ?, deleted = ?,
		 disposition_failures = ?, bytes = ?
		WHERE id = ?`
)

// ErrUnknownRun is returned when a run ID does not exist.
var ErrUnknownRun = errors.New("journal: unknown run")

// Journal is the sole writer to the journal database. It implements
// mirror.Recorder.
type Journal struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time
}

var _ mirror.Recorder = (*Journal)(nil)

// Open opens (creating if needed) the journal at dbPath and applies pending
// migrations.
func Open(dbPath string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), dirPerms); err != nil {
		return nil, fmt.Errorf("journal: creating directory for %s: %w", dbPath, err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"+
			"&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: opening database %s: %w", dbPath, err)
	}

	// A second process (status, verify) may read while the daemon writes;
	// within this process there is one writer.
	db.SetMaxOpenConns(1)

	if err := runMigrations(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("journal opened", slog.String("path", dbPath))

	return &Journal{db: db, logger: logger, nowFunc: time.Now}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// BeginRun inserts a running entry and returns its ID.
func (j *Journal) BeginRun(ctx context.Context, report *mirror.RunReport) (string, error) {
	id := uuid.NewString()

	started := report.StartedAt
	if started.IsZero() {
		started = j.nowFunc()
	}

	if _, err := j.db.ExecContext(ctx, sqlBeginRun, id, started.UnixNano()); err != nil {
		return "", fmt.Errorf("journal: beginning run: %w", err)
	}

	return id, nil
}

// RecordOutcome appends one file outcome to a run.
func (j *Journal) RecordOutcome(ctx context.Context, runID string, o *mirror.Outcome) error {
	_, err := j.db.ExecContext(ctx, sqlRecordOutcome,
		runID,
		o.File.Path,
		nullString(o.LocalPath),
		o.Kind.String(),
		errString(o.Cause),
		o.Bytes,
		nullString(o.Digest),
		o.Disposition.String(),
		nullString(o.DispositionTo),
		errString(o.DispositionErr),
		o.Duration.Milliseconds(),
		j.nowFunc().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("journal: recording outcome for %s: %w", o.File.Path, err)
	}

	return nil
}

// FinishRun stores the final counters and status of a run.
func (j *Journal) FinishRun(ctx context.Context, runID string, report *mirror.RunReport, runErr error) error {
	res, err := j.db.ExecContext(ctx, sqlFinishRun,
		j.nowFunc().UnixNano(),
		report.Duration.Milliseconds(),
		runStatus(runErr),
		errString(runErr),
		report.Folders,
		report.FoldersExcluded,
		report.FilesSkipped,
		report.Files,
		report.Succeeded,
		report.Mismatched,
		report.Failed,
		report.Moved,
		report.Deleted,
		report.DispositionFailures,
		report.Bytes,
		runID,
	)
	if err != nil {
		return fmt.Errorf("journal: finishing run %s: %w", runID, err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}

	return nil
}

func runStatus(runErr error) string {
	switch {
	case runErr == nil:
		return StatusOK
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		return StatusCanceled
	default:
		return StatusFailed
	}
}

// Empty strings and nil errors are stored as NULL.

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}

	return sql.NullString{String: s, Valid: true}
}

func errString(err error) sql.NullString {
	if err == nil {
		return sql.NullString{}
	}

	return sql.NullString{String: err.Error(), Valid: true}
}
