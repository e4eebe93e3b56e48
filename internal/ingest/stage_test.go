package ingest_test

import (
	"context"
	"errors"
	"testing"

	"clipwise/internal/catalog"
	"clipwise/internal/ingest"
	"clipwise/internal/services"
	"clipwise/internal/storage"
	"clipwise/internal/store"
	"clipwise/internal/testsupport"
)

type stageFixture struct {
	stage *ingest.Stage
	store *store.Store
}

func newStageFixture(t *testing.T, sources ...*testsupport.FakeSource) stageFixture {
	t.Helper()
	names := make([]string, 0, len(sources))
	adapters := make(map[string]catalog.Source, len(sources))
	for _, src := range sources {
		names = append(names, src.SourceName)
		adapters[src.SourceName] = src
	}
	cfg := testsupport.NewConfig(t, testsupport.WithSources(names...))
	st := testsupport.MustOpenStore(t, cfg)
	objects, err := storage.NewFilesystem(cfg.Storage.Root)
	if err != nil {
		t.Fatalf("NewFilesystem: %v", err)
	}
	return stageFixture{
		stage: ingest.NewStageWithDependencies(cfg, st, objects, adapters, nil),
		store: st,
	}
}

func candidates(media *testsupport.MediaServer, source string, ids ...string) []catalog.CandidateAsset {
	out := make([]catalog.CandidateAsset, 0, len(ids))
	for _, id := range ids {
		out = append(out, media.Candidate(source, id, "Clip "+id))
	}
	return out
}

func TestStageAllocatesAcrossSources(t *testing.T) {
	media := testsupport.NewMediaServer(t)
	wiki := &testsupport.FakeSource{SourceName: "wikimedia", Pages: [][]catalog.CandidateAsset{
		candidates(media, "wikimedia", "a", "b", "c"),
	}}
	archive := &testsupport.FakeSource{SourceName: "archive", Pages: [][]catalog.CandidateAsset{
		candidates(media, "archive", "x"),
		candidates(media, "archive", "y"),
	}}
	fx := newStageFixture(t, wiki, archive)
	run := testsupport.NewRun(t, fx.store, "nature", 4, "wikimedia", "archive")

	ctx := context.Background()
	if err := fx.stage.Prepare(ctx, run); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := fx.stage.Execute(ctx, run); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	counts, err := fx.store.IngestedCountsBySource(ctx, run.ID)
	if err != nil {
		t.Fatalf("IngestedCountsBySource: %v", err)
	}
	if counts["wikimedia"] != 2 || counts["archive"] != 2 {
		t.Fatalf("unexpected allocation %v", counts)
	}
	if got := wiki.Queries()[0]; got.Keyword != "nature" || got.Page != 0 {
		t.Fatalf("unexpected query %+v", got)
	}
	if len(archive.Queries()) != 2 {
		t.Fatalf("expected archive to be paged twice, got %d", len(archive.Queries()))
	}
}

func TestStageResumeOnlyFetchesShortfall(t *testing.T) {
	media := testsupport.NewMediaServer(t)
	wiki := &testsupport.FakeSource{SourceName: "wikimedia", Pages: [][]catalog.CandidateAsset{
		candidates(media, "wikimedia", "a", "b", "c"),
	}}
	fx := newStageFixture(t, wiki)
	run := testsupport.NewRun(t, fx.store, "nature", 2, "wikimedia")
	testsupport.NewIngestion(t, fx.store, run, "wikimedia", "a")

	if err := fx.stage.Execute(context.Background(), run); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	records, err := fx.store.IngestionsForRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("IngestionsForRun: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records after resume, got %d", len(records))
	}
	if media.Hits("/wikimedia/a.webm") != 0 {
		t.Fatal("already ingested asset was downloaded again")
	}
	if media.Hits("/wikimedia/b.webm") != 1 || media.Hits("/wikimedia/c.webm") != 0 {
		t.Fatal("expected only the next fresh candidate to be downloaded")
	}
}

func TestStageSkipsAssetsOwnedByEarlierRuns(t *testing.T) {
	media := testsupport.NewMediaServer(t)
	wiki := &testsupport.FakeSource{SourceName: "wikimedia", Pages: [][]catalog.CandidateAsset{
		candidates(media, "wikimedia", "a", "b"),
	}}
	fx := newStageFixture(t, wiki)
	earlier := testsupport.NewRun(t, fx.store, "nature", 1, "wikimedia")
	testsupport.NewIngestion(t, fx.store, earlier, "wikimedia", "a")
	run := testsupport.NewRun(t, fx.store, "nature", 2, "wikimedia")

	if err := fx.stage.Execute(context.Background(), run); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	records, _ := fx.store.IngestionsForRun(context.Background(), run.ID)
	if len(records) != 1 || records[0].AssetID != "wikimedia:b" {
		t.Fatalf("expected only wikimedia:b, got %+v", records)
	}
}

func TestStageRecordsPerAssetFailures(t *testing.T) {
	media := testsupport.NewMediaServer(t)
	broken := catalog.CandidateAsset{
		Source:      "wikimedia",
		ExternalID:  "gone",
		DownloadURL: media.URL + "/missing.webm",
		Title:       "Gone",
	}
	wiki := &testsupport.FakeSource{SourceName: "wikimedia", Pages: [][]catalog.CandidateAsset{
		append([]catalog.CandidateAsset{broken}, candidates(media, "wikimedia", "ok")...),
	}}
	fx := newStageFixture(t, wiki)
	run := testsupport.NewRun(t, fx.store, "nature", 2, "wikimedia")

	if err := fx.stage.Execute(context.Background(), run); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	failures, err := fx.store.IngestionFailuresForRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("IngestionFailuresForRun: %v", err)
	}
	if len(failures) != 1 || failures[0].AssetID != "wikimedia:gone" || failures[0].Kind != "permanent_input" {
		t.Fatalf("unexpected failures %+v", failures)
	}
	records, _ := fx.store.IngestionsForRun(context.Background(), run.ID)
	if len(records) != 1 {
		t.Fatalf("expected the healthy asset to be ingested, got %d", len(records))
	}
}

func TestStageFailsWhenEveryCatalogIsDown(t *testing.T) {
	down := errors.New("connection refused")
	fx := newStageFixture(t,
		&testsupport.FakeSource{SourceName: "wikimedia", Err: down},
		&testsupport.FakeSource{SourceName: "archive", Err: down},
	)
	run := testsupport.NewRun(t, fx.store, "nature", 2, "wikimedia", "archive")

	err := fx.stage.Execute(context.Background(), run)
	if !errors.Is(err, services.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestStagePrepareRejectsUnknownSource(t *testing.T) {
	fx := newStageFixture(t, &testsupport.FakeSource{SourceName: "wikimedia"})
	run := testsupport.NewRun(t, fx.store, "nature", 2, "wikimedia", "vimeo")
	if err := fx.stage.Prepare(context.Background(), run); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}
