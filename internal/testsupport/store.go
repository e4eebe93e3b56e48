package testsupport

import (
	"context"
	"testing"

	"clipwise/internal/config"
	"clipwise/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewRun creates a pending run for tests using the provided store.
func NewRun(t testing.TB, st *store.Store, campaign string, batchSize int, sources ...string) *store.Run {
	t.Helper()

	run, err := st.CreateRun(context.Background(), campaign, batchSize, sources)
	if err != nil {
		t.Fatalf("store.CreateRun: %v", err)
	}
	return run
}

// NewIngestion records a RAW ingestion for externalID under run.
func NewIngestion(t testing.TB, st *store.Store, run *store.Run, source, externalID string) *store.IngestionRecord {
	t.Helper()

	rec := &store.IngestionRecord{
		AssetID:     source + ":" + externalID,
		Source:      source,
		ExternalID:  externalID,
		Campaign:    run.Campaign,
		RunID:       run.ID,
		Title:       "Clip " + externalID,
		DownloadURL: "https://catalog.test/" + externalID,
		RawPath:     "media-raw/video/" + source + "/" + run.Campaign + "/20250101T000000Z/clip_" + externalID + "-000000000000.webm",
		ContentType: "video/webm",
		SizeBytes:   4,
	}
	if err := st.InsertIngestion(context.Background(), rec); err != nil {
		t.Fatalf("store.InsertIngestion: %v", err)
	}
	return rec
}

// NewLabelJob records a job for rec with the given handle and status.
func NewLabelJob(t testing.TB, st *store.Store, rec *store.IngestionRecord, handle string, status store.JobStatus) *store.LabelJob {
	t.Helper()

	job := &store.LabelJob{
		AssetID: rec.AssetID,
		RunID:   rec.RunID,
		Handle:  handle,
		Status:  status,
	}
	if err := st.CreateLabelJob(context.Background(), job); err != nil {
		t.Fatalf("store.CreateLabelJob: %v", err)
	}
	return job
}
