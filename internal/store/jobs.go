package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const jobColumns = "asset_id, run_id, job_handle, status, attempts, status_message, started_at, updated_at, last_polled_at"

var terminalJobArgs = []any{JobSucceeded, JobFailed, JobTimedOut}

func scanJob(row scanner) (*LabelJob, error) {
	var (
		job        LabelJob
		handle     sql.NullString
		status     string
		message    sql.NullString
		startedRaw sql.NullString
		updatedRaw sql.NullString
		polledRaw  sql.NullString
	)
	if err := row.Scan(
		&job.AssetID,
		&job.RunID,
		&handle,
		&status,
		&job.Attempts,
		&message,
		&startedRaw,
		&updatedRaw,
		&polledRaw,
	); err != nil {
		return nil, err
	}
	job.Handle = handle.String
	job.Status = JobStatus(status)
	job.StatusMessage = message.String
	job.StartedAt = parseTime(startedRaw)
	job.UpdatedAt = parseTime(updatedRaw)
	job.LastPolledAt = parseOptionalTime(polledRaw)
	return &job, nil
}

// CreateLabelJob persists a newly dispatched job. A FAILED job for the same
// asset is replaced (and its finalization skip cleared); any other existing
// job yields ErrJobExists.
func (s *Store) CreateLabelJob(ctx context.Context, job *LabelJob) error {
	if job == nil || job.AssetID == "" {
		return errors.New("label job requires asset id")
	}
	now := time.Now().UTC()
	if job.StartedAt.IsZero() {
		job.StartedAt = now
	}
	job.UpdatedAt = now
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var existing string
		err := tx.QueryRowContext(ctx, `SELECT status FROM label_jobs WHERE asset_id = ?`, job.AssetID).Scan(&existing)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			_, err = tx.ExecContext(ctx,
				`INSERT INTO label_jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
				job.AssetID,
				job.RunID,
				nullableString(job.Handle),
				job.Status,
				job.Attempts,
				nullableString(job.StatusMessage),
				formatTime(job.StartedAt),
				formatTime(job.UpdatedAt),
			)
			if err != nil {
				return fmt.Errorf("insert label job: %w", err)
			}
			return nil
		case err != nil:
			return fmt.Errorf("lookup label job: %w", err)
		case JobStatus(existing) != JobFailed:
			return fmt.Errorf("%s: %w", job.AssetID, ErrJobExists)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE label_jobs
             SET run_id = ?, job_handle = ?, status = ?, attempts = ?, status_message = ?,
                 started_at = ?, updated_at = ?, last_polled_at = NULL
             WHERE asset_id = ?`,
			job.RunID,
			nullableString(job.Handle),
			job.Status,
			job.Attempts,
			nullableString(job.StatusMessage),
			formatTime(job.StartedAt),
			formatTime(job.UpdatedAt),
			job.AssetID,
		); err != nil {
			return fmt.Errorf("replace failed label job: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM finalization_skips WHERE asset_id = ?`, job.AssetID); err != nil {
			return fmt.Errorf("clear finalization skip: %w", err)
		}
		return nil
	})
}

// GetLabelJob fetches the job for an asset. A missing job returns nil, nil.
func (s *Store) GetLabelJob(ctx context.Context, assetID string) (*LabelJob, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM label_jobs WHERE asset_id = ?`, assetID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get label job: %w", err)
	}
	return job, nil
}

// LabelJobsForRun lists a run's jobs, optionally filtered by status.
func (s *Store) LabelJobsForRun(ctx context.Context, runID string, statuses ...JobStatus) ([]*LabelJob, error) {
	query := `SELECT ` + jobColumns + ` FROM label_jobs WHERE run_id = ?`
	args := []any{runID}
	if len(statuses) > 0 {
		query += ` AND status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY started_at, asset_id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list label jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*LabelJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// UpdateLabelJob persists a status check. Jobs already in a terminal status
// are never modified; the returned bool reports whether a row changed.
func (s *Store) UpdateLabelJob(ctx context.Context, job *LabelJob) (bool, error) {
	if job == nil {
		return false, errors.New("label job is nil")
	}
	job.UpdatedAt = time.Now().UTC()
	args := []any{
		job.Status,
		job.Attempts,
		nullableString(job.StatusMessage),
		formatTime(job.UpdatedAt),
		nullableTime(job.LastPolledAt),
		job.AssetID,
	}
	args = append(args, terminalJobArgs...)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE label_jobs
         SET status = ?, attempts = ?, status_message = ?, updated_at = ?, last_polled_at = ?
         WHERE asset_id = ? AND status NOT IN (?, ?, ?)`,
		args...,
	)
	if err != nil {
		return false, fmt.Errorf("update label job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update label job: %w", err)
	}
	return affected > 0, nil
}

// TimeOutLabelJobs marks every non-terminal job of a run as TIMED_OUT.
func (s *Store) TimeOutLabelJobs(ctx context.Context, runID, message string) (int64, error) {
	now := formatTime(time.Now())
	args := []any{JobTimedOut, nullableString(message), now, runID}
	args = append(args, terminalJobArgs...)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE label_jobs SET status = ?, status_message = ?, updated_at = ?
         WHERE run_id = ? AND status NOT IN (?, ?, ?)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("time out label jobs: %w", err)
	}
	return res.RowsAffected()
}
