package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const indexColumns = "asset_id, source, campaign, raw_path, processed_path, label_count, top_labels_json, status, updated_at"

func scanIndexEntry(row scanner) (*IndexEntry, error) {
	var (
		entry      IndexEntry
		processed  sql.NullString
		topLabels  string
		updatedRaw sql.NullString
	)
	if err := row.Scan(
		&entry.AssetID,
		&entry.Source,
		&entry.Campaign,
		&entry.RawPath,
		&processed,
		&entry.LabelCount,
		&topLabels,
		&entry.Status,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	entry.ProcessedPath = processed.String
	entry.TopLabels = decodeStrings(topLabels)
	entry.UpdatedAt = parseTime(updatedRaw)
	return &entry, nil
}

// UpsertIndexEntry writes the entry keyed by asset_id. Existing rows are only
// rewritten when a projected field differs, so repeated upserts of the same
// entry leave the table untouched. The returned bool reports whether a row
// was inserted or changed.
func (s *Store) UpsertIndexEntry(ctx context.Context, entry *IndexEntry) (bool, error) {
	if entry == nil || entry.AssetID == "" {
		return false, errors.New("index entry requires asset id")
	}
	topLabels, err := encodeStrings(entry.TopLabels)
	if err != nil {
		return false, fmt.Errorf("encode top labels: %w", err)
	}
	updatedAt := time.Now().UTC()
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO metadata_index (`+indexColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(asset_id) DO UPDATE SET
             source = excluded.source,
             campaign = excluded.campaign,
             raw_path = excluded.raw_path,
             processed_path = excluded.processed_path,
             label_count = excluded.label_count,
             top_labels_json = excluded.top_labels_json,
             status = excluded.status,
             updated_at = excluded.updated_at
         WHERE metadata_index.source IS NOT excluded.source
            OR metadata_index.campaign IS NOT excluded.campaign
            OR metadata_index.raw_path IS NOT excluded.raw_path
            OR metadata_index.processed_path IS NOT excluded.processed_path
            OR metadata_index.label_count IS NOT excluded.label_count
            OR metadata_index.top_labels_json IS NOT excluded.top_labels_json
            OR metadata_index.status IS NOT excluded.status`,
		entry.AssetID,
		entry.Source,
		entry.Campaign,
		entry.RawPath,
		nullableString(entry.ProcessedPath),
		entry.LabelCount,
		topLabels,
		entry.Status,
		formatTime(updatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("upsert index entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("upsert index entry: %w", err)
	}
	if affected > 0 {
		entry.UpdatedAt = updatedAt
	}
	return affected > 0, nil
}

// GetIndexEntry fetches an entry by asset id. Missing returns nil, nil.
func (s *Store) GetIndexEntry(ctx context.Context, assetID string) (*IndexEntry, error) {
	entry, err := scanIndexEntry(s.db.QueryRowContext(ctx,
		`SELECT `+indexColumns+` FROM metadata_index WHERE asset_id = ?`, assetID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get index entry: %w", err)
	}
	return entry, nil
}

// QueryIndex returns entries matching the filter ordered by asset id.
func (s *Store) QueryIndex(ctx context.Context, filter IndexFilter) ([]*IndexEntry, error) {
	query := `SELECT ` + indexColumns + ` FROM metadata_index WHERE 1 = 1`
	var args []any
	if filter.Campaign != "" {
		query += ` AND campaign = ?`
		args = append(args, filter.Campaign)
	}
	if filter.Source != "" {
		query += ` AND source = ?`
		args = append(args, filter.Source)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY asset_id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	defer rows.Close()

	var entries []*IndexEntry
	for rows.Next() {
		entry, err := scanIndexEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// CountRun aggregates ingestion, job, finalization, and index progress for a run.
func (s *Store) CountRun(ctx context.Context, runID string) (RunCounts, error) {
	counts := RunCounts{Jobs: make(map[JobStatus]int)}
	scalar := func(query string, dest *int) error {
		return s.db.QueryRowContext(ctx, query, runID).Scan(dest)
	}
	if err := scalar(`SELECT COUNT(1) FROM ingestion_records WHERE run_id = ?`, &counts.Ingested); err != nil {
		return counts, fmt.Errorf("count ingested: %w", err)
	}
	if err := scalar(`SELECT COUNT(1) FROM ingestion_failures WHERE run_id = ?`, &counts.Failed); err != nil {
		return counts, fmt.Errorf("count ingestion failures: %w", err)
	}
	if err := scalar(`SELECT COUNT(1) FROM processed_summaries WHERE run_id = ?`, &counts.Processed); err != nil {
		return counts, fmt.Errorf("count summaries: %w", err)
	}
	if err := scalar(`SELECT COUNT(1) FROM finalization_skips WHERE run_id = ?`, &counts.Skipped); err != nil {
		return counts, fmt.Errorf("count skips: %w", err)
	}
	if err := scalar(`SELECT COUNT(1) FROM metadata_index m JOIN ingestion_records r ON r.asset_id = m.asset_id WHERE r.run_id = ?`, &counts.Indexed); err != nil {
		return counts, fmt.Errorf("count indexed: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM label_jobs WHERE run_id = ? GROUP BY status`, runID)
	if err != nil {
		return counts, fmt.Errorf("count label jobs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return counts, err
		}
		counts.Jobs[JobStatus(status)] = count
	}
	return counts, rows.Err()
}
