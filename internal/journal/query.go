package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tonimelisma/sharepoint-mirror/internal/mirror"
)

const (
	sqlRunColumns = `id, started_at, finished_at, duration_ms, status, error,
		folders, folders_excluded, files_skipped, files, succeeded, mismatched,
		failed, moved, deleted, disposition_failures, bytes`

	sqlRecentRuns = `SELECT ` + sqlRunColumns + ` FROM runs ORDER BY started_at DESC LIMIT ?`

	sqlRunFiles = `SELECT remote_path, local_path, outcome, cause, bytes, digest,
		disposition, disposition_to, disposition_error, duration_ms, recorded_at
		FROM files WHERE run_id = ? ORDER BY id`

	// Later rows win when loaded in id order.
	sqlLatestDigests = `SELECT local_path, digest, recorded_at FROM files
		WHERE local_path IS NOT NULL AND digest IS NOT NULL AND outcome != 'failed'
		ORDER BY id`

	sqlPrune = `DELETE FROM runs WHERE started_at < ? AND status != 'running'`
)

// Run is one journaled run.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running or if the process died mid-run
	Status     string
	Error      string
	Report     mirror.RunReport
}

// FileRecord is one journaled file outcome.
type FileRecord struct {
	RemotePath       string
	LocalPath        string
	Outcome          string
	Cause            string
	Bytes            int64
	Digest           string
	Disposition      string
	DispositionTo    string
	DispositionError string
	Duration         time.Duration
	RecordedAt       time.Time
}

// DigestRecord is the most recent known content hash of a mirrored file.
type DigestRecord struct {
	Digest     string
	RecordedAt time.Time
}

// RecentRuns returns up to limit runs, newest first.
func (j *Journal) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := j.db.QueryContext(ctx, sqlRecentRuns, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run

	for rows.Next() {
		var (
			r                 Run
			started, duration int64
			finished          sql.NullInt64
			runErr            sql.NullString
			rep               = &r.Report
		)

		if err := rows.Scan(&r.ID, &started, &finished, &duration, &r.Status, &runErr,
			&rep.Folders, &rep.FoldersExcluded, &rep.FilesSkipped, &rep.Files, &rep.Succeeded,
			&rep.Mismatched, &rep.Failed, &rep.Moved, &rep.Deleted, &rep.DispositionFailures,
			&rep.Bytes); err != nil {
			return nil, fmt.Errorf("journal: scanning run: %w", err)
		}

		r.StartedAt = time.Unix(0, started)
		rep.StartedAt = r.StartedAt
		rep.Duration = time.Duration(duration) * time.Millisecond
		r.Error = runErr.String

		if finished.Valid {
			r.FinishedAt = time.Unix(0, finished.Int64)
		}

		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterating runs: %w", err)
	}

	return runs, nil
}

// RunFiles returns the file outcomes of one run in the order they were
// recorded.
func (j *Journal) RunFiles(ctx context.Context, runID string) ([]FileRecord, error) {
	rows, err := j.db.QueryContext(ctx, sqlRunFiles, runID)
	if err != nil {
		return nil, fmt.Errorf("journal: querying files of run %s: %w", runID, err)
	}
	defer rows.Close()

	var files []FileRecord

	for rows.Next() {
		var (
			f                                     FileRecord
			local, cause, digest, dispTo, dispErr      sql.NullString
			durationMS, recorded                  int64
		)

		if err := rows.Scan(&f.RemotePath, &local, &f.Outcome, &cause, &f.Bytes, &digest,
			&f.Disposition, &dispTo, &dispErr, &durationMS, &recorded); err != nil {
			return nil, fmt.Errorf("journal: scanning file record: %w", err)
		}

		f.LocalPath = local.String
		f.Cause = cause.String
		f.Digest = digest.String
		f.DispositionTo = dispTo.String
		f.DispositionError = dispErr.String
		f.Duration = time.Duration(durationMS) * time.Millisecond
		f.RecordedAt = time.Unix(0, recorded)

		files = append(files, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterating file records: %w", err)
	}

	return files, nil
}

// LatestDigests returns, per local path, the digest of the most recent
// successful download.
func (j *Journal) LatestDigests(ctx context.Context) (map[string]DigestRecord, error) {
	rows, err := j.db.QueryContext(ctx, sqlLatestDigests)
	if err != nil {
		return nil, fmt.Errorf("journal: querying digests: %w", err)
	}
	defer rows.Close()

	out := make(map[string]DigestRecord)

	for rows.Next() {
		var (
			path, digest string
			recorded     int64
		)

		if err := rows.Scan(&path, &digest, &recorded); err != nil {
			return nil, fmt.Errorf("journal: scanning digest: %w", err)
		}

		out[path] = DigestRecord{Digest: digest, RecordedAt: time.Unix(0, recorded)}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterating digests: %w", err)
	}

	return out, nil
}

// Prune deletes finished runs (and their file records) that started before
// olderThan. It returns the number of runs removed.
func (j *Journal) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx, sqlPrune, olderThan.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("journal: pruning runs: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("journal: counting pruned runs: %w", err)
	}

	if n > 0 {
		j.logger.Info("pruned journal runs", "count", n, "older_than", olderThan.Format(time.RFC3339))
	}

	return n, nil
}
