package ingest_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"clipwise/internal/catalog"
	"clipwise/internal/ingest"
	"clipwise/internal/services"
	"clipwise/internal/storage"
	"clipwise/internal/store"
	"clipwise/internal/testsupport"
)

func newExecutor(t *testing.T, maxBytes int64) (*ingest.Executor, *store.Store, *storage.Filesystem, *store.Run) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	objects, err := storage.NewFilesystem(cfg.Storage.Root)
	if err != nil {
		t.Fatalf("NewFilesystem: %v", err)
	}
	exec := ingest.NewExecutor(st, objects, ingest.Options{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		Timeout:        5 * time.Second,
		MaxBytes:       maxBytes,
	}, nil)
	run := testsupport.NewRun(t, st, "nature", 2, "wikimedia")
	return exec, st, objects, run
}

func TestIngestStoresObjectBeforeRecord(t *testing.T) {
	exec, st, objects, run := newExecutor(t, 1024)
	media := testsupport.NewMediaServer(t)
	candidate := media.Candidate("wikimedia", "42", "File:Forest Walk.webm")

	rec, err := exec.Ingest(context.Background(), run.ID, run.Campaign, candidate)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if rec.AssetID != "wikimedia:42" || rec.Status != store.IngestionStatusRaw {
		t.Fatalf("unexpected record %+v", rec)
	}
	if !strings.HasPrefix(rec.RawPath, "media-raw/video/wikimedia/nature/") || !strings.HasSuffix(rec.RawPath, ".webm") {
		t.Fatalf("unexpected raw key %q", rec.RawPath)
	}
	if !strings.Contains(rec.RawPath, "/forest_walk-"+rec.SHA256[:12]) {
		t.Fatalf("raw key not content addressed: %q", rec.RawPath)
	}
	data, err := objects.Get(context.Background(), rec.RawPath)
	if err != nil {
		t.Fatalf("raw object missing: %v", err)
	}
	if string(data) != "webm:wikimedia:42" || rec.SizeBytes != int64(len(data)) {
		t.Fatalf("unexpected object contents %q", data)
	}
	stored, err := st.GetIngestion(context.Background(), rec.AssetID)
	if err != nil || stored == nil {
		t.Fatalf("record missing: %v", err)
	}
	if stored.IngestedAt.IsZero() || stored.ContentType != "video/webm" {
		t.Fatalf("unexpected stored record %+v", stored)
	}
}

func TestIngestRetriesTransientDownloads(t *testing.T) {
	exec, _, _, run := newExecutor(t, 1024)
	media := testsupport.NewMediaServer(t)
	url := media.Add("/flaky.mp4", testsupport.MediaFile{Body: []byte("mp4"), ContentType: "video/mp4", FailFirst: 2})

	rec, err := exec.Ingest(context.Background(), run.ID, run.Campaign, catalog.CandidateAsset{
		Source: "wikimedia", ExternalID: "7", DownloadURL: url, Title: "Flaky",
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if media.Hits("/flaky.mp4") != 3 {
		t.Fatalf("expected 3 attempts, got %d", media.Hits("/flaky.mp4"))
	}
	if !strings.HasSuffix(rec.RawPath, ".mp4") {
		t.Fatalf("unexpected extension in %q", rec.RawPath)
	}
}

func TestIngestClassifiesFailures(t *testing.T) {
	tests := []struct {
		name     string
		file     testsupport.MediaFile
		marker   error
		wantHits int
	}{
		{name: "gone", file: testsupport.MediaFile{Status: http.StatusGone}, marker: services.ErrPermanentInput, wantHits: 1},
		{name: "not video", file: testsupport.MediaFile{Body: []byte("<html>"), ContentType: "text/html"}, marker: services.ErrPermanentInput, wantHits: 1},
		{name: "empty", file: testsupport.MediaFile{Body: nil, ContentType: "video/webm"}, marker: services.ErrPermanentInput, wantHits: 1},
		{name: "oversized", file: testsupport.MediaFile{Body: make([]byte, 64), ContentType: "video/webm"}, marker: services.ErrPermanentInput, wantHits: 1},
		{name: "always unavailable", file: testsupport.MediaFile{Body: []byte("x"), ContentType: "video/webm", FailFirst: 10}, marker: services.ErrTransientIO, wantHits: 3},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			exec, st, _, run := newExecutor(t, 32)
			media := testsupport.NewMediaServer(t)
			url := media.Add("/clip", tc.file)
			_, err := exec.Ingest(context.Background(), run.ID, run.Campaign, catalog.CandidateAsset{
				Source: "archive", ExternalID: "c", DownloadURL: url, Title: "Clip",
			})
			if !errors.Is(err, tc.marker) {
				t.Fatalf("expected %v, got %v", tc.marker, err)
			}
			if media.Hits("/clip") != tc.wantHits {
				t.Fatalf("expected %d hits, got %d", tc.wantHits, media.Hits("/clip"))
			}
			rec, _ := st.GetIngestion(context.Background(), "archive:c")
			if rec != nil {
				t.Fatalf("no record may be written on failure, got %+v", rec)
			}
		})
	}
}

func TestIngestAcceptsAnySuccessStatus(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusNonAuthoritativeInfo, http.StatusPartialContent} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			exec, st, _, run := newExecutor(t, 1024)
			media := testsupport.NewMediaServer(t)
			url := media.Add("/mirror.webm", testsupport.MediaFile{Body: []byte("webm"), ContentType: "video/webm", Status: status})
			rec, err := exec.Ingest(context.Background(), run.ID, run.Campaign, catalog.CandidateAsset{
				Source: "archive", ExternalID: "m", DownloadURL: url, Title: "Mirror",
			})
			if err != nil {
				t.Fatalf("Ingest with %d: %v", status, err)
			}
			if media.Hits("/mirror.webm") != 1 {
				t.Fatalf("expected a single request, got %d", media.Hits("/mirror.webm"))
			}
			if stored, _ := st.GetIngestion(context.Background(), rec.AssetID); stored == nil {
				t.Fatal("record missing")
			}
		})
	}
}

func TestIngestUsesCatalogMimeForGenericContentType(t *testing.T) {
	exec, _, _, run := newExecutor(t, 1024)
	media := testsupport.NewMediaServer(t)
	url := media.Add("/file.ogv", testsupport.MediaFile{Body: []byte("ogg"), ContentType: "application/octet-stream"})
	rec, err := exec.Ingest(context.Background(), run.ID, run.Campaign, catalog.CandidateAsset{
		Source: "archive", ExternalID: "o", DownloadURL: url, Title: "Ogg", MIMEType: "video/ogg",
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if rec.ContentType != "video/ogg" || !strings.HasSuffix(rec.RawPath, ".ogv") {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestIngestLosesRaceToEarlierRun(t *testing.T) {
	exec, st, _, run := newExecutor(t, 1024)
	other := testsupport.NewRun(t, st, "nature", 2, "wikimedia")
	media := testsupport.NewMediaServer(t)
	candidate := media.Candidate("wikimedia", "9", "Race")

	if _, err := exec.Ingest(context.Background(), other.ID, other.Campaign, candidate); err != nil {
		t.Fatalf("first Ingest: %v", err)
	}
	_, err := exec.Ingest(context.Background(), run.ID, run.Campaign, candidate)
	if !errors.Is(err, store.ErrAlreadyIngested) {
		t.Fatalf("expected ErrAlreadyIngested, got %v", err)
	}
	rec, _ := st.GetIngestion(context.Background(), candidate.AssetID())
	if rec.RunID != other.ID {
		t.Fatalf("record owner changed to %s", rec.RunID)
	}
}
