package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const summaryColumns = "asset_id, run_id, processed_path, labels_json, moderation_json, duration_ms, finalized_at"

func scanSummary(row scanner) (*ProcessedSummary, error) {
	var (
		summary       ProcessedSummary
		labelsRaw     string
		moderationRaw string
		finalizedRaw  sql.NullString
	)
	if err := row.Scan(
		&summary.AssetID,
		&summary.RunID,
		&summary.ProcessedPath,
		&labelsRaw,
		&moderationRaw,
		&summary.DurationMS,
		&finalizedRaw,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(labelsRaw), &summary.Labels); err != nil {
		return nil, fmt.Errorf("decode labels for %s: %w", summary.AssetID, err)
	}
	if summary.Labels == nil {
		summary.Labels = []LabelSummary{}
	}
	summary.ModerationFlags = decodeStrings(moderationRaw)
	summary.FinalizedAt = parseTime(finalizedRaw)
	return &summary, nil
}

// SaveSummary stores a processed summary once. The returned bool is false
// when a summary for the asset already existed.
func (s *Store) SaveSummary(ctx context.Context, summary *ProcessedSummary) (bool, error) {
	if summary == nil || summary.AssetID == "" {
		return false, errors.New("summary requires asset id")
	}
	if summary.FinalizedAt.IsZero() {
		summary.FinalizedAt = time.Now().UTC()
	}
	labels := summary.Labels
	if labels == nil {
		labels = []LabelSummary{}
	}
	labelsJSON, err := json.Marshal(labels)
	if err != nil {
		return false, fmt.Errorf("encode labels: %w", err)
	}
	moderationJSON, err := encodeStrings(summary.ModerationFlags)
	if err != nil {
		return false, fmt.Errorf("encode moderation flags: %w", err)
	}
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO processed_summaries (`+summaryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(asset_id) DO NOTHING`,
		summary.AssetID,
		summary.RunID,
		summary.ProcessedPath,
		string(labelsJSON),
		moderationJSON,
		summary.DurationMS,
		formatTime(summary.FinalizedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert summary: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert summary: %w", err)
	}
	return affected > 0, nil
}

// GetSummary fetches the processed summary for an asset. Missing returns nil, nil.
func (s *Store) GetSummary(ctx context.Context, assetID string) (*ProcessedSummary, error) {
	summary, err := scanSummary(s.db.QueryRowContext(ctx,
		`SELECT `+summaryColumns+` FROM processed_summaries WHERE asset_id = ?`, assetID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get summary: %w", err)
	}
	return summary, nil
}

// SummariesForRun lists the processed summaries a run produced.
func (s *Store) SummariesForRun(ctx context.Context, runID string) ([]*ProcessedSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+summaryColumns+` FROM processed_summaries WHERE run_id = ? ORDER BY asset_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	defer rows.Close()

	var summaries []*ProcessedSummary
	for rows.Next() {
		summary, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

// SaveSkip records why an asset has no processed summary. Existing skips are
// left untouched.
func (s *Store) SaveSkip(ctx context.Context, skip *FinalizationSkip) (bool, error) {
	if skip == nil || skip.AssetID == "" {
		return false, errors.New("finalization skip requires asset id")
	}
	if skip.SkippedAt.IsZero() {
		skip.SkippedAt = time.Now().UTC()
	}
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO finalization_skips (asset_id, run_id, reason, detail, skipped_at) VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(asset_id) DO NOTHING`,
		skip.AssetID,
		skip.RunID,
		skip.Reason,
		nullableString(skip.Detail),
		formatTime(skip.SkippedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert finalization skip: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert finalization skip: %w", err)
	}
	return affected > 0, nil
}

// SkipsForRun lists the finalization skips a run recorded.
func (s *Store) SkipsForRun(ctx context.Context, runID string) ([]*FinalizationSkip, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT asset_id, run_id, reason, detail, skipped_at FROM finalization_skips WHERE run_id = ? ORDER BY asset_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list finalization skips: %w", err)
	}
	defer rows.Close()

	var skips []*FinalizationSkip
	for rows.Next() {
		var (
			skip       FinalizationSkip
			reason     string
			detail     sql.NullString
			skippedRaw sql.NullString
		)
		if err := rows.Scan(&skip.AssetID, &skip.RunID, &reason, &detail, &skippedRaw); err != nil {
			return nil, err
		}
		skip.Reason = SkipReason(reason)
		skip.Detail = detail.String
		skip.SkippedAt = parseTime(skippedRaw)
		skips = append(skips, &skip)
	}
	return skips, rows.Err()
}

// PendingFinalization lists a run's terminal jobs that have neither a summary
// nor a skip recorded yet.
func (s *Store) PendingFinalization(ctx context.Context, runID string) ([]*LabelJob, error) {
	args := []any{runID}
	args = append(args, terminalJobArgs...)
	rows, err := s.db.QueryContext(ctx,
		`SELECT j.asset_id, j.run_id, j.job_handle, j.status, j.attempts, j.status_message,
                j.started_at, j.updated_at, j.last_polled_at
         FROM label_jobs j
         LEFT JOIN processed_summaries p ON p.asset_id = j.asset_id
         LEFT JOIN finalization_skips f ON f.asset_id = j.asset_id
         WHERE j.run_id = ? AND j.status IN (?, ?, ?)
           AND p.asset_id IS NULL AND f.asset_id IS NULL
         ORDER BY j.started_at, j.asset_id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending finalization: %w", err)
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
