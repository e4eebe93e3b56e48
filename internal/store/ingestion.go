package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const ingestionColumns = "asset_id, source, external_id, campaign, run_id, title, license, download_url, raw_path, content_type, size_bytes, sha256, status, ingested_at"

func scanIngestion(row scanner) (*IngestionRecord, error) {
	var (
		rec         IngestionRecord
		title       sql.NullString
		license     sql.NullString
		contentType sql.NullString
		sha         sql.NullString
		ingestedRaw sql.NullString
	)
	if err := row.Scan(
		&rec.AssetID,
		&rec.Source,
		&rec.ExternalID,
		&rec.Campaign,
		&rec.RunID,
		&title,
		&license,
		&rec.DownloadURL,
		&rec.RawPath,
		&contentType,
		&rec.SizeBytes,
		&sha,
		&rec.Status,
		&ingestedRaw,
	); err != nil {
		return nil, err
	}
	rec.Title = title.String
	rec.License = license.String
	rec.ContentType = contentType.String
	rec.SHA256 = sha.String
	rec.IngestedAt = parseTime(ingestedRaw)
	return &rec, nil
}

// InsertIngestion records a downloaded asset. The first writer for an
// asset_id wins; later writers receive ErrAlreadyIngested.
func (s *Store) InsertIngestion(ctx context.Context, rec *IngestionRecord) error {
	if rec == nil || strings.TrimSpace(rec.AssetID) == "" {
		return errors.New("ingestion record requires asset id")
	}
	if rec.RawPath == "" {
		return errors.New("ingestion record requires raw path")
	}
	if rec.IngestedAt.IsZero() {
		rec.IngestedAt = time.Now().UTC()
	}
	rec.Status = IngestionStatusRaw
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO ingestion_records (`+ingestionColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(asset_id) DO NOTHING`,
		rec.AssetID,
		rec.Source,
		rec.ExternalID,
		rec.Campaign,
		rec.RunID,
		nullableString(rec.Title),
		nullableString(rec.License),
		rec.DownloadURL,
		rec.RawPath,
		nullableString(rec.ContentType),
		rec.SizeBytes,
		nullableString(rec.SHA256),
		rec.Status,
		formatTime(rec.IngestedAt),
	)
	if err != nil {
		return fmt.Errorf("insert ingestion record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert ingestion record: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", rec.AssetID, ErrAlreadyIngested)
	}
	return nil
}

// ExistingAssetIDs reports which of the provided asset ids already have an
// ingestion record.
func (s *Store) ExistingAssetIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	existing := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return existing, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT asset_id FROM ingestion_records WHERE asset_id IN (`+makePlaceholders(len(ids))+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query existing assets: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		existing[id] = true
	}
	return existing, rows.Err()
}

// GetIngestion fetches an ingestion record. A missing record returns nil, nil.
func (s *Store) GetIngestion(ctx context.Context, assetID string) (*IngestionRecord, error) {
	rec, err := scanIngestion(s.db.QueryRowContext(ctx,
		`SELECT `+ingestionColumns+` FROM ingestion_records WHERE asset_id = ?`, assetID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ingestion record: %w", err)
	}
	return rec, nil
}

// IngestionsForRun lists the records a run ingested, oldest first.
func (s *Store) IngestionsForRun(ctx context.Context, runID string) ([]*IngestionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ingestionColumns+` FROM ingestion_records WHERE run_id = ? ORDER BY ingested_at, asset_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list run ingestions: %w", err)
	}
	defer rows.Close()

	var records []*IngestionRecord
	for rows.Next() {
		rec, err := scanIngestion(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// IngestedCountsBySource returns how many assets a run ingested per source.
func (s *Store) IngestedCountsBySource(ctx context.Context, runID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source, COUNT(1) FROM ingestion_records WHERE run_id = ? GROUP BY source`, runID)
	if err != nil {
		return nil, fmt.Errorf("count run ingestions: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var source string
		var count int
		if err := rows.Scan(&source, &count); err != nil {
			return nil, err
		}
		counts[source] = count
	}
	return counts, rows.Err()
}

// RecordIngestionFailure stores a candidate that could not be ingested.
func (s *Store) RecordIngestionFailure(ctx context.Context, failure *IngestionFailure) error {
	if failure == nil {
		return errors.New("ingestion failure is nil")
	}
	if failure.CreatedAt.IsZero() {
		failure.CreatedAt = time.Now().UTC()
	}
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO ingestion_failures (run_id, asset_id, source, kind, reason, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		failure.RunID,
		failure.AssetID,
		failure.Source,
		failure.Kind,
		failure.Reason,
		formatTime(failure.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("record ingestion failure: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		failure.ID = id
	}
	return nil
}

// IngestionFailuresForRun lists failures recorded by a run.
func (s *Store) IngestionFailuresForRun(ctx context.Context, runID string) ([]*IngestionFailure, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, asset_id, source, kind, reason, created_at
         FROM ingestion_failures WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list ingestion failures: %w", err)
	}
	defer rows.Close()

	var failures []*IngestionFailure
	for rows.Next() {
		var (
			f          IngestionFailure
			createdRaw sql.NullString
		)
		if err := rows.Scan(&f.ID, &f.RunID, &f.AssetID, &f.Source, &f.Kind, &f.Reason, &createdRaw); err != nil {
			return nil, err
		}
		f.CreatedAt = parseTime(createdRaw)
		failures = append(failures, &f)
	}
	return failures, rows.Err()
}
