package store_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"clipwise/internal/store"
	"clipwise/internal/testsupport"
)

func TestOpenCreatesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	if err := st.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if st.Path() != filepath.Join(cfg.Paths.DataDir, "clipwise.db") {
		t.Fatalf("unexpected path %q", st.Path())
	}

	// Reopening an existing database keeps the schema version.
	st.Close()
	reopened, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	reopened.Close()
}

func TestRunLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	run := testsupport.NewRun(t, st, "nature", 4, "wikimedia", "archive")
	if run.ID == "" || run.Status != store.RunPending {
		t.Fatalf("unexpected run: %+v", run)
	}

	loaded, err := st.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if loaded.Campaign != "nature" || loaded.BatchSize != 4 || len(loaded.Sources) != 2 || loaded.Sources[1] != "archive" {
		t.Fatalf("unexpected loaded run: %+v", loaded)
	}

	loaded.Status = store.RunPolling
	if err := st.UpdateRun(ctx, loaded); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}
	if err := st.SetPollRound(ctx, run.ID, 3); err != nil {
		t.Fatalf("SetPollRound: %v", err)
	}

	reset, err := st.ResetStuckRuns(ctx)
	if err != nil {
		t.Fatalf("ResetStuckRuns: %v", err)
	}
	if reset != 1 {
		t.Fatalf("expected 1 reset run, got %d", reset)
	}
	after, err := st.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if after.Status != store.RunDispatched {
		t.Fatalf("expected polling to roll back to dispatched, got %s", after.Status)
	}
	if after.PollRound != 3 {
		t.Fatalf("poll round lost on reset: %d", after.PollRound)
	}

	missing, err := st.GetRun(ctx, "does-not-exist")
	if err != nil || missing != nil {
		t.Fatalf("expected nil, nil for missing run; got %v, %v", missing, err)
	}
}

func TestReclaimStaleRuns(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	stale := testsupport.NewRun(t, st, "tech", 2, "archive")
	fresh := testsupport.NewRun(t, st, "tech", 2, "archive")
	for _, run := range []*store.Run{stale, fresh} {
		run.Status = store.RunFinalizing
		if err := st.UpdateRun(ctx, run); err != nil {
			t.Fatalf("UpdateRun: %v", err)
		}
	}
	old := time.Now().Add(-time.Hour)
	stale.LastHeartbeat = &old
	if err := st.UpdateRun(ctx, stale); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}
	if err := st.UpdateHeartbeat(ctx, fresh.ID); err != nil {
		t.Fatalf("UpdateHeartbeat: %v", err)
	}

	reclaimed, err := st.ReclaimStaleRuns(ctx, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("ReclaimStaleRuns: %v", err)
	}
	if reclaimed != 1 {
		t.Fatalf("expected 1 reclaimed run, got %d", reclaimed)
	}
	got, _ := st.GetRun(ctx, stale.ID)
	if got.Status != store.RunPolled {
		t.Fatalf("expected stale run back at polled, got %s", got.Status)
	}
	got, _ = st.GetRun(ctx, fresh.ID)
	if got.Status != store.RunFinalizing {
		t.Fatalf("fresh run should be untouched, got %s", got.Status)
	}
}

func TestRearmStalledRuns(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	stalled := testsupport.NewRun(t, st, "tech", 2, "archive")
	stalled.Status = store.RunStalled
	stalled.ResumeStatus = store.RunDispatched
	stalled.ErrorMessage = "vision unreachable"
	if err := st.UpdateRun(ctx, stalled); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}
	failed := testsupport.NewRun(t, st, "tech", 2, "archive")
	failed.Status = store.RunFailed
	if err := st.UpdateRun(ctx, failed); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}

	loaded, _ := st.GetRun(ctx, stalled.ID)
	if loaded.ResumeStatus != store.RunDispatched {
		t.Fatalf("resume status not persisted: %+v", loaded)
	}

	n, err := st.RearmStalledRuns(ctx, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("RearmStalledRuns: %v", err)
	}
	if n != 0 {
		t.Fatalf("a run that just stalled must rest first, rearmed %d", n)
	}

	n, err = st.RearmStalledRuns(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("RearmStalledRuns: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 rearmed run, got %d", n)
	}
	got, _ := st.GetRun(ctx, stalled.ID)
	if got.Status != store.RunDispatched || got.ResumeStatus != "" {
		t.Fatalf("expected run back at dispatched, got %+v", got)
	}
	got, _ = st.GetRun(ctx, failed.ID)
	if got.Status != store.RunFailed {
		t.Fatalf("failed run must stay failed, got %s", got.Status)
	}
}

func TestOpenUpgradesVersionOneDatabase(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	run := testsupport.NewRun(t, st, "nature", 4, "wikimedia")
	path := st.Path()
	st.Close()

	// Rewind the file to the layout shipped before stalled runs existed.
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	for _, stmt := range []string{
		`ALTER TABLE runs DROP COLUMN resume_status`,
		`UPDATE schema_version SET version = 1`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("%s: %v", stmt, err)
		}
	}
	db.Close()

	upgraded, err := store.OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	defer upgraded.Close()
	ctx := context.Background()
	loaded, err := upgraded.GetRun(ctx, run.ID)
	if err != nil || loaded == nil {
		t.Fatalf("existing run lost in upgrade: %v, %v", loaded, err)
	}
	loaded.Status = store.RunStalled
	loaded.ResumeStatus = store.RunIngested
	if err := upgraded.UpdateRun(ctx, loaded); err != nil {
		t.Fatalf("UpdateRun after upgrade: %v", err)
	}
}

func TestOpenRejectsNewerSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	path := st.Path()
	st.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec(`UPDATE schema_version SET version = 99`); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	db.Close()

	if _, err := store.OpenPath(path); !errors.Is(err, store.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestListRunsAndNextRun(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first := testsupport.NewRun(t, st, "nature", 1, "wikimedia")
	time.Sleep(2 * time.Millisecond)
	second := testsupport.NewRun(t, st, "travel", 1, "wikimedia")
	second.Status = store.RunCompleted
	if err := st.UpdateRun(ctx, second); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}

	runs, err := st.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != second.ID {
		t.Fatalf("expected newest first, got %+v", runs)
	}
	pending, err := st.ListRuns(ctx, 0, store.RunPending)
	if err != nil {
		t.Fatalf("ListRuns pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != first.ID {
		t.Fatalf("unexpected pending runs %+v", pending)
	}
	next, err := st.NextRunForStatuses(ctx, store.RunPending, store.RunIngested)
	if err != nil {
		t.Fatalf("NextRunForStatuses: %v", err)
	}
	if next == nil || next.ID != first.ID {
		t.Fatalf("unexpected next run %+v", next)
	}
	stats, err := st.RunStats(ctx)
	if err != nil {
		t.Fatalf("RunStats: %v", err)
	}
	if stats[store.RunPending] != 1 || stats[store.RunCompleted] != 1 {
		t.Fatalf("unexpected stats %v", stats)
	}
}

func TestInsertIngestionFirstWriterWins(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	runA := testsupport.NewRun(t, st, "nature", 2, "wikimedia")
	runB := testsupport.NewRun(t, st, "nature", 2, "wikimedia")
	rec := testsupport.NewIngestion(t, st, runA, "wikimedia", "77")

	dup := *rec
	dup.RunID = runB.ID
	dup.RawPath = "media-raw/video/other.webm"
	err := st.InsertIngestion(ctx, &dup)
	if !errors.Is(err, store.ErrAlreadyIngested) {
		t.Fatalf("expected ErrAlreadyIngested, got %v", err)
	}

	stored, err := st.GetIngestion(ctx, rec.AssetID)
	if err != nil {
		t.Fatalf("GetIngestion: %v", err)
	}
	if stored.RunID != runA.ID || stored.RawPath != rec.RawPath || stored.Status != store.IngestionStatusRaw {
		t.Fatalf("record overwritten: %+v", stored)
	}

	existing, err := st.ExistingAssetIDs(ctx, []string{rec.AssetID, "wikimedia:nope"})
	if err != nil {
		t.Fatalf("ExistingAssetIDs: %v", err)
	}
	if !existing[rec.AssetID] || existing["wikimedia:nope"] {
		t.Fatalf("unexpected existing set %v", existing)
	}

	counts, err := st.IngestedCountsBySource(ctx, runA.ID)
	if err != nil {
		t.Fatalf("IngestedCountsBySource: %v", err)
	}
	if counts["wikimedia"] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}

	if err := st.RecordIngestionFailure(ctx, &store.IngestionFailure{
		RunID: runB.ID, AssetID: rec.AssetID, Source: "wikimedia", Kind: "duplicate", Reason: "ingested by another run",
	}); err != nil {
		t.Fatalf("RecordIngestionFailure: %v", err)
	}
	failures, err := st.IngestionFailuresForRun(ctx, runB.ID)
	if err != nil {
		t.Fatalf("IngestionFailuresForRun: %v", err)
	}
	if len(failures) != 1 || failures[0].Kind != "duplicate" {
		t.Fatalf("unexpected failures %+v", failures)
	}
}

func TestLabelJobTerminalStatusIsImmutable(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	run := testsupport.NewRun(t, st, "nature", 1, "wikimedia")
	rec := testsupport.NewIngestion(t, st, run, "wikimedia", "1")
	job := testsupport.NewLabelJob(t, st, rec, "h-1", store.JobStarted)

	job.Status = store.JobSucceeded
	job.Attempts = 1
	changed, err := st.UpdateLabelJob(ctx, job)
	if err != nil || !changed {
		t.Fatalf("UpdateLabelJob: changed=%v err=%v", changed, err)
	}

	job.Status = store.JobInProgress
	job.Attempts = 2
	changed, err = st.UpdateLabelJob(ctx, job)
	if err != nil {
		t.Fatalf("UpdateLabelJob: %v", err)
	}
	if changed {
		t.Fatal("terminal job must not change")
	}
	stored, err := st.GetLabelJob(ctx, rec.AssetID)
	if err != nil {
		t.Fatalf("GetLabelJob: %v", err)
	}
	if stored.Status != store.JobSucceeded || stored.Attempts != 1 {
		t.Fatalf("terminal job modified: %+v", stored)
	}

	err = st.CreateLabelJob(ctx, &store.LabelJob{AssetID: rec.AssetID, RunID: run.ID, Handle: "h-2", Status: store.JobStarted})
	if !errors.Is(err, store.ErrJobExists) {
		t.Fatalf("expected ErrJobExists, got %v", err)
	}
}

func TestCreateLabelJobReplacesFailedJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	run := testsupport.NewRun(t, st, "nature", 1, "wikimedia")
	rec := testsupport.NewIngestion(t, st, run, "wikimedia", "1")
	testsupport.NewLabelJob(t, st, rec, "", store.JobFailed)
	if _, err := st.SaveSkip(ctx, &store.FinalizationSkip{AssetID: rec.AssetID, RunID: run.ID, Reason: store.SkipFailed}); err != nil {
		t.Fatalf("SaveSkip: %v", err)
	}

	replacement := &store.LabelJob{AssetID: rec.AssetID, RunID: run.ID, Handle: "h-new", Status: store.JobStarted}
	if err := st.CreateLabelJob(ctx, replacement); err != nil {
		t.Fatalf("CreateLabelJob: %v", err)
	}
	stored, _ := st.GetLabelJob(ctx, rec.AssetID)
	if stored.Status != store.JobStarted || stored.Handle != "h-new" {
		t.Fatalf("failed job not replaced: %+v", stored)
	}
	skips, err := st.SkipsForRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("SkipsForRun: %v", err)
	}
	if len(skips) != 0 {
		t.Fatalf("expected skip cleared, got %+v", skips)
	}
}

func TestTimeOutLabelJobsSparesTerminalJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	run := testsupport.NewRun(t, st, "nature", 3, "wikimedia")
	done := testsupport.NewIngestion(t, st, run, "wikimedia", "1")
	slow := testsupport.NewIngestion(t, st, run, "wikimedia", "2")
	started := testsupport.NewIngestion(t, st, run, "wikimedia", "3")
	testsupport.NewLabelJob(t, st, done, "h1", store.JobSucceeded)
	testsupport.NewLabelJob(t, st, slow, "h2", store.JobInProgress)
	testsupport.NewLabelJob(t, st, started, "h3", store.JobStarted)

	n, err := st.TimeOutLabelJobs(ctx, run.ID, "poll rounds exhausted")
	if err != nil {
		t.Fatalf("TimeOutLabelJobs: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 timed out jobs, got %d", n)
	}
	timedOut, err := st.LabelJobsForRun(ctx, run.ID, store.JobTimedOut)
	if err != nil {
		t.Fatalf("LabelJobsForRun: %v", err)
	}
	if len(timedOut) != 2 || timedOut[0].StatusMessage != "poll rounds exhausted" {
		t.Fatalf("unexpected timed out jobs %+v", timedOut)
	}
	stored, _ := st.GetLabelJob(ctx, done.AssetID)
	if stored.Status != store.JobSucceeded {
		t.Fatalf("succeeded job changed to %s", stored.Status)
	}
}

func TestSummariesAndPendingFinalization(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	run := testsupport.NewRun(t, st, "nature", 3, "wikimedia")
	ok := testsupport.NewIngestion(t, st, run, "wikimedia", "1")
	bad := testsupport.NewIngestion(t, st, run, "wikimedia", "2")
	open := testsupport.NewIngestion(t, st, run, "wikimedia", "3")
	testsupport.NewLabelJob(t, st, ok, "h1", store.JobSucceeded)
	testsupport.NewLabelJob(t, st, bad, "h2", store.JobTimedOut)
	testsupport.NewLabelJob(t, st, open, "h3", store.JobInProgress)

	pending, err := st.PendingFinalization(ctx, run.ID)
	if err != nil {
		t.Fatalf("PendingFinalization: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending jobs, got %d", len(pending))
	}

	summary := &store.ProcessedSummary{
		AssetID:         ok.AssetID,
		RunID:           run.ID,
		ProcessedPath:   "media-processed/video/x_labels.json",
		Labels:          []store.LabelSummary{{Name: "Tree", Confidence: 93, FirstSeenMS: 0, LastSeenMS: 4000}},
		ModerationFlags: []string{"Violence"},
		DurationMS:      12000,
	}
	inserted, err := st.SaveSummary(ctx, summary)
	if err != nil || !inserted {
		t.Fatalf("SaveSummary: inserted=%v err=%v", inserted, err)
	}
	again := *summary
	again.DurationMS = 1
	inserted, err = st.SaveSummary(ctx, &again)
	if err != nil || inserted {
		t.Fatalf("second SaveSummary should be a no-op: inserted=%v err=%v", inserted, err)
	}
	stored, err := st.GetSummary(ctx, ok.AssetID)
	if err != nil {
		t.Fatalf("GetSummary: %v", err)
	}
	if stored.DurationMS != 12000 || len(stored.Labels) != 1 || stored.Labels[0].LastSeenMS != 4000 || stored.ModerationFlags[0] != "Violence" {
		t.Fatalf("unexpected stored summary %+v", stored)
	}

	if _, err := st.SaveSkip(ctx, &store.FinalizationSkip{AssetID: bad.AssetID, RunID: run.ID, Reason: store.SkipTimedOut}); err != nil {
		t.Fatalf("SaveSkip: %v", err)
	}
	pending, err = st.PendingFinalization(ctx, run.ID)
	if err != nil {
		t.Fatalf("PendingFinalization: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected nothing pending, got %+v", pending)
	}

	counts, err := st.CountRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("CountRun: %v", err)
	}
	if counts.Ingested != 3 || counts.Processed != 1 || counts.Skipped != 1 || counts.Jobs[store.JobInProgress] != 1 {
		t.Fatalf("unexpected counts %+v", counts)
	}
}

func TestUpsertIndexEntryIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	entry := &store.IndexEntry{
		AssetID:       "wikimedia:1",
		Source:        "wikimedia",
		Campaign:      "nature",
		RawPath:       "media-raw/video/a.webm",
		ProcessedPath: "media-processed/video/a_labels.json",
		LabelCount:    2,
		TopLabels:     []string{"Tree", "Sky"},
		Status:        store.IndexStatusProcessed,
	}
	changed, err := st.UpsertIndexEntry(ctx, entry)
	if err != nil || !changed {
		t.Fatalf("first upsert: changed=%v err=%v", changed, err)
	}
	first, _ := st.GetIndexEntry(ctx, entry.AssetID)

	same := *entry
	changed, err = st.UpsertIndexEntry(ctx, &same)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if changed {
		t.Fatal("identical upsert must not change the row")
	}
	second, _ := st.GetIndexEntry(ctx, entry.AssetID)
	if !second.UpdatedAt.Equal(first.UpdatedAt) {
		t.Fatalf("updated_at moved on identical upsert: %v -> %v", first.UpdatedAt, second.UpdatedAt)
	}

	different := *entry
	different.TopLabels = []string{"Sky", "Tree"}
	changed, err = st.UpsertIndexEntry(ctx, &different)
	if err != nil || !changed {
		t.Fatalf("changed upsert: changed=%v err=%v", changed, err)
	}

	if _, err := st.UpsertIndexEntry(ctx, &store.IndexEntry{
		AssetID: "archive:x", Source: "archive", Campaign: "tech", RawPath: "media-raw/video/x.mp4", Status: string(store.SkipTimedOut),
	}); err != nil {
		t.Fatalf("upsert skip entry: %v", err)
	}
	tests := []struct {
		filter store.IndexFilter
		want   int
	}{
		{filter: store.IndexFilter{}, want: 2},
		{filter: store.IndexFilter{Campaign: "nature"}, want: 1},
		{filter: store.IndexFilter{Source: "archive"}, want: 1},
		{filter: store.IndexFilter{Status: store.IndexStatusProcessed}, want: 1},
		{filter: store.IndexFilter{Limit: 1}, want: 1},
		{filter: store.IndexFilter{Campaign: "travel"}, want: 0},
	}
	for _, tc := range tests {
		entries, err := st.QueryIndex(ctx, tc.filter)
		if err != nil {
			t.Fatalf("QueryIndex(%+v): %v", tc.filter, err)
		}
		if len(entries) != tc.want {
			t.Fatalf("QueryIndex(%+v) returned %d entries, want %d", tc.filter, len(entries), tc.want)
		}
	}
}
