package dispatch_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"clipwise/internal/config"
	"clipwise/internal/dispatch"
	"clipwise/internal/services"
	"clipwise/internal/store"
	"clipwise/internal/testsupport"
)

func setup(t *testing.T, fake *testsupport.FakeVision) (*config.Config, *store.Store, *dispatch.Stage) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	return cfg, st, dispatch.NewStage(cfg, st, fake, nil)
}

func TestDispatchPersistsStartedJob(t *testing.T) {
	fake := testsupport.NewFakeVision()
	_, st, stg := setup(t, fake)
	run := testsupport.NewRun(t, st, "nature", 1, "wikimedia")
	rec := testsupport.NewIngestion(t, st, run, "wikimedia", "1")

	job, err := stg.Dispatcher().Dispatch(context.Background(), rec)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if job.Status != store.JobStarted || job.Handle == "" || job.RunID != run.ID {
		t.Fatalf("unexpected job %+v", job)
	}
	stored, err := st.GetLabelJob(context.Background(), rec.AssetID)
	if err != nil || stored == nil {
		t.Fatalf("job not persisted: %v", err)
	}
	if stored.StartedAt.Before(rec.IngestedAt) {
		t.Fatalf("started_at %v precedes ingested_at %v", stored.StartedAt, rec.IngestedAt)
	}
}

func TestDispatchStartedAtNeverPrecedesIngestion(t *testing.T) {
	fake := testsupport.NewFakeVision()
	_, st, stg := setup(t, fake)
	run := testsupport.NewRun(t, st, "nature", 1, "wikimedia")
	rec := testsupport.NewIngestion(t, st, run, "wikimedia", "1")
	rec.IngestedAt = time.Now().Add(time.Hour).UTC()

	job, err := stg.Dispatcher().Dispatch(context.Background(), rec)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if job.StartedAt.Before(rec.IngestedAt) {
		t.Fatalf("started_at %v precedes ingested_at %v", job.StartedAt, rec.IngestedAt)
	}
}

func TestDispatchIsIdempotent(t *testing.T) {
	fake := testsupport.NewFakeVision()
	_, st, stg := setup(t, fake)
	run := testsupport.NewRun(t, st, "nature", 1, "wikimedia")
	rec := testsupport.NewIngestion(t, st, run, "wikimedia", "1")

	first, err := stg.Dispatcher().Dispatch(context.Background(), rec)
	if err != nil {
		t.Fatalf("first Dispatch: %v", err)
	}
	second, err := stg.Dispatcher().Dispatch(context.Background(), rec)
	if err != nil {
		t.Fatalf("second Dispatch: %v", err)
	}
	if first.Handle != second.Handle {
		t.Fatalf("expected existing job, got handles %q and %q", first.Handle, second.Handle)
	}
	if fake.StartCount("clip_1") != 1 {
		t.Fatalf("expected one StartJob call, got %d", fake.StartCount("clip_1"))
	}
}

func TestDispatchReplacesFailedJob(t *testing.T) {
	fake := testsupport.NewFakeVision()
	_, st, stg := setup(t, fake)
	run := testsupport.NewRun(t, st, "nature", 1, "wikimedia")
	rec := testsupport.NewIngestion(t, st, run, "wikimedia", "1")
	testsupport.NewLabelJob(t, st, rec, "", store.JobFailed)

	job, err := stg.Dispatcher().Dispatch(context.Background(), rec)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if job.Status != store.JobStarted || job.Handle == "" {
		t.Fatalf("expected a fresh job, got %+v", job)
	}
}

func TestDispatchClassifiesErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		marker error
	}{
		{name: "rejected", err: services.Wrap(services.ErrDispatch, "fake", "start", "unsupported codec", nil), marker: services.ErrDispatch},
		{name: "unavailable", err: errors.New("connection reset"), marker: services.ErrUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fake := testsupport.NewFakeVision().Default(testsupport.VisionScript{StartErr: tc.err})
			_, st, stg := setup(t, fake)
			run := testsupport.NewRun(t, st, "nature", 1, "wikimedia")
			rec := testsupport.NewIngestion(t, st, run, "wikimedia", "1")

			_, err := stg.Dispatcher().Dispatch(context.Background(), rec)
			if !errors.Is(err, tc.marker) {
				t.Fatalf("expected %v, got %v", tc.marker, err)
			}
			if job, _ := st.GetLabelJob(context.Background(), rec.AssetID); job != nil {
				t.Fatalf("Dispatch must not persist failures, got %+v", job)
			}
		})
	}
}

func TestStagePersistsRejectionsAsFailedJobs(t *testing.T) {
	rejected := services.Wrap(services.ErrDispatch, "fake", "start", "unsupported codec", nil)
	fake := testsupport.NewFakeVision().Script("clip_bad", testsupport.VisionScript{StartErr: rejected})
	_, st, stg := setup(t, fake)
	run := testsupport.NewRun(t, st, "nature", 3, "wikimedia")
	testsupport.NewIngestion(t, st, run, "wikimedia", "a")
	testsupport.NewIngestion(t, st, run, "wikimedia", "bad")
	testsupport.NewIngestion(t, st, run, "wikimedia", "c")

	ctx := context.Background()
	if err := stg.Prepare(ctx, run); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := stg.Execute(ctx, run); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	jobs, err := st.LabelJobsForRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("LabelJobsForRun: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(jobs))
	}
	for _, job := range jobs {
		want := store.JobStarted
		if job.AssetID == "wikimedia:bad" {
			want = store.JobFailed
			if job.Handle != "" || job.StatusMessage == "" {
				t.Fatalf("rejection should carry a reason and no handle: %+v", job)
			}
		}
		if job.Status != want {
			t.Fatalf("%s: expected %s, got %s", job.AssetID, want, job.Status)
		}
	}

	// A second pass leaves every existing job alone.
	if err := stg.Execute(ctx, run); err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if fake.StartCount("clip_") != 2 {
		t.Fatalf("expected 2 successful starts overall, got %d", fake.StartCount("clip_"))
	}
}

func TestStageFailsRunWhenServiceUnavailable(t *testing.T) {
	fake := testsupport.NewFakeVision().Default(testsupport.VisionScript{StartErr: errors.New("503 service unavailable")})
	_, st, stg := setup(t, fake)
	run := testsupport.NewRun(t, st, "nature", 2, "wikimedia")
	testsupport.NewIngestion(t, st, run, "wikimedia", "a")
	testsupport.NewIngestion(t, st, run, "wikimedia", "b")

	err := stg.Execute(context.Background(), run)
	if !errors.Is(err, services.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	jobs, _ := st.LabelJobsForRun(context.Background(), run.ID)
	if len(jobs) != 0 {
		t.Fatalf("expected no persisted jobs, got %d", len(jobs))
	}
}

func TestStagePartialUnavailabilityRecordsFailures(t *testing.T) {
	fake := testsupport.NewFakeVision().Script("clip_b", testsupport.VisionScript{StartErr: errors.New("timeout")})
	_, st, stg := setup(t, fake)
	run := testsupport.NewRun(t, st, "nature", 2, "wikimedia")
	testsupport.NewIngestion(t, st, run, "wikimedia", "a")
	testsupport.NewIngestion(t, st, run, "wikimedia", "b")

	if err := stg.Execute(context.Background(), run); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	job, _ := st.GetLabelJob(context.Background(), "wikimedia:b")
	if job == nil || job.Status != store.JobFailed {
		t.Fatalf("expected FAILED job for unavailable asset, got %+v", job)
	}
}
