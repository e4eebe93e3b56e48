package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const runColumns = "id, campaign, batch_size, sources, status, poll_round, error_message, resume_status, created_at, updated_at, last_heartbeat"

func scanRun(row scanner) (*Run, error) {
	var (
		run          Run
		sources      string
		status       string
		errorMessage sql.NullString
		resumeStatus sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
		heartbeatRaw sql.NullString
	)
	if err := row.Scan(
		&run.ID,
		&run.Campaign,
		&run.BatchSize,
		&sources,
		&status,
		&run.PollRound,
		&errorMessage,
		&resumeStatus,
		&createdRaw,
		&updatedRaw,
		&heartbeatRaw,
	); err != nil {
		return nil, err
	}
	run.Sources = splitList(sources)
	run.Status = RunStatus(status)
	run.ErrorMessage = errorMessage.String
	run.ResumeStatus = RunStatus(resumeStatus.String)
	run.CreatedAt = parseTime(createdRaw)
	run.UpdatedAt = parseTime(updatedRaw)
	run.LastHeartbeat = parseOptionalTime(heartbeatRaw)
	return &run, nil
}

// CreateRun persists a pending run and assigns its execution identifier.
func (s *Store) CreateRun(ctx context.Context, campaign string, batchSize int, sources []string) (*Run, error) {
	campaign = strings.TrimSpace(campaign)
	if campaign == "" {
		return nil, errors.New("campaign is required")
	}
	now := time.Now().UTC()
	run := &Run{
		ID:        uuid.NewString(),
		Campaign:  campaign,
		BatchSize: batchSize,
		Sources:   append([]string(nil), sources...),
		Status:    RunPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO runs (id, campaign, batch_size, sources, status, poll_round, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
		run.ID,
		run.Campaign,
		run.BatchSize,
		joinList(run.Sources),
		run.Status,
		formatTime(now),
		formatTime(now),
	); err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// GetRun fetches a run by execution identifier. A missing run returns nil, nil.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// UpdateRun persists status, poll round, error, resume point and heartbeat
// changes.
func (s *Store) UpdateRun(ctx context.Context, run *Run) error {
	if run == nil {
		return errors.New("run is nil")
	}
	run.UpdatedAt = time.Now().UTC()
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE runs
         SET status = ?, poll_round = ?, error_message = ?, resume_status = ?, updated_at = ?, last_heartbeat = ?
         WHERE id = ?`,
		run.Status,
		run.PollRound,
		nullableString(run.ErrorMessage),
		nullableString(string(run.ResumeStatus)),
		formatTime(run.UpdatedAt),
		nullableTime(run.LastHeartbeat),
		run.ID,
	); err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

// SetPollRound records the number of completed poll rounds for a run.
func (s *Store) SetPollRound(ctx context.Context, id string, round int) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE runs SET poll_round = ?, updated_at = ? WHERE id = ?`,
		round,
		formatTime(time.Now()),
		id,
	); err != nil {
		return fmt.Errorf("set poll round: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs first, optionally filtered by status.
func (s *Store) ListRuns(ctx context.Context, limit int, statuses ...RunStatus) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	args := make([]any, 0, len(statuses)+1)
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// NextRunForStatuses returns the oldest run matching any of the provided statuses.
func (s *Store) NextRunForStatuses(ctx context.Context, statuses ...RunStatus) (*Run, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}
	query := `SELECT ` + runColumns + ` FROM runs WHERE status IN (` + makePlaceholders(len(statuses)) + `) ORDER BY created_at LIMIT 1`
	run, err := scanRun(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// RunStats returns a count of runs grouped by status.
func (s *Store) RunStats(ctx context.Context) (map[RunStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM runs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("run stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[RunStatus]int)
	for rows.Next() {
		var status RunStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

func rollbackCase() (string, []any) {
	var b strings.Builder
	args := make([]any, 0, len(stageRollbackTransitions)*2)
	b.WriteString("CASE status")
	for _, tr := range stageRollbackTransitions {
		b.WriteString(" WHEN ? THEN ?")
		args = append(args, tr.from, tr.to)
	}
	b.WriteString(" ELSE status END")
	return b.String(), args
}

func processingArgs() []any {
	args := make([]any, 0, len(stageRollbackTransitions))
	for _, tr := range stageRollbackTransitions {
		args = append(args, tr.from)
	}
	return args
}

// ResetStuckRuns resets runs in processing states back to the start of their current stage.
func (s *Store) ResetStuckRuns(ctx context.Context) (int64, error) {
	caseExpr, args := rollbackCase()
	args = append(args, formatTime(time.Now()))
	args = append(args, processingArgs()...)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE runs SET status = `+caseExpr+`, last_heartbeat = NULL, updated_at = ?
         WHERE status IN (`+makePlaceholders(len(stageRollbackTransitions))+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck runs: %w", err)
	}
	return res.RowsAffected()
}

// UpdateHeartbeat updates the last heartbeat timestamp for an in-flight run.
func (s *Store) UpdateHeartbeat(ctx context.Context, id string) error {
	now := formatTime(time.Now())
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE runs SET last_heartbeat = ?, updated_at = ? WHERE id = ?`,
		now,
		now,
		id,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStaleRuns returns runs stuck in processing back to the start of their
// current stage when heartbeats expire.
func (s *Store) ReclaimStaleRuns(ctx context.Context, cutoff time.Time) (int64, error) {
	caseExpr, args := rollbackCase()
	args = append(args, formatTime(time.Now()))
	args = append(args, processingArgs()...)
	args = append(args, formatTime(cutoff))
	res, err := s.execWithRetry(
		ctx,
		`UPDATE runs SET status = `+caseExpr+`, last_heartbeat = NULL, updated_at = ?
         WHERE status IN (`+makePlaceholders(len(stageRollbackTransitions))+`)
           AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale runs: %w", err)
	}
	return res.RowsAffected()
}

// RearmStalledRuns moves stalled runs untouched since cutoff back to the
// start status recorded when they stalled.
func (s *Store) RearmStalledRuns(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE runs SET status = resume_status, resume_status = NULL, updated_at = ?
         WHERE status = ? AND resume_status IS NOT NULL AND updated_at < ?`,
		formatTime(time.Now()),
		RunStalled,
		formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("rearm stalled runs: %w", err)
	}
	return res.RowsAffected()
}
