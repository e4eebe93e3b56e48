package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"clipwise/internal/config"
	"clipwise/internal/logging"
	"clipwise/internal/services"
	"clipwise/internal/stage"
	"clipwise/internal/store"
	"clipwise/internal/vision"
)

const stageName = "dispatch"

// Stage dispatches every ingested asset of a run that has no job yet.
type Stage struct {
	store      *store.Store
	service    vision.Service
	dispatcher *Dispatcher
	cfg        *config.Config
	logger     *slog.Logger
}

// NewStage constructs the dispatch handler around service.
func NewStage(cfg *config.Config, st *store.Store, service vision.Service, logger *slog.Logger) *Stage {
	return &Stage{
		store:   st,
		service: service,
		dispatcher: NewDispatcher(service, st, cfg.Storage, Options{
			MaxAttempts:    cfg.Vision.MaxAttempts,
			InitialBackoff: time.Duration(cfg.Vision.InitialBackoffMS) * time.Millisecond,
		}, logger),
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, stageName),
	}
}

// Dispatcher exposes the single-asset dispatcher.
func (s *Stage) Dispatcher() *Dispatcher { return s.dispatcher }

func (s *Stage) Prepare(ctx context.Context, run *store.Run) error {
	if err := stage.RequireRun(stageName, run.ID); err != nil {
		return err
	}
	if s.service == nil {
		return services.Wrap(services.ErrConfiguration, stageName, "prepare", "No vision service configured", nil)
	}
	return nil
}

type failure struct {
	rec   *store.IngestionRecord
	cause error
}

func (s *Stage) Execute(ctx context.Context, run *store.Run) error {
	logger := logging.WithContext(ctx, s.logger)
	records, err := s.store.IngestionsForRun(ctx, run.ID)
	if err != nil {
		return services.Wrap(services.ErrTransientIO, stageName, "load ingestions", "Could not read ingestion records", err)
	}
	jobs, err := s.store.LabelJobsForRun(ctx, run.ID)
	if err != nil {
		return services.Wrap(services.ErrTransientIO, stageName, "load jobs", "Could not read label jobs", err)
	}
	hasJob := make(map[string]bool, len(jobs))
	for _, job := range jobs {
		hasJob[job.AssetID] = true
	}

	var (
		mu       sync.Mutex
		started  int
		failures []failure
	)
	var group errgroup.Group
	group.SetLimit(stage.Limit(s.cfg.Vision.Concurrency))
	for _, rec := range records {
		if hasJob[rec.AssetID] {
			continue
		}
		group.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			_, err := s.dispatcher.Dispatch(ctx, rec)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, failure{rec: rec, cause: err})
				return nil
			}
			started++
			return nil
		})
	}
	_ = group.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}

	unavailable := 0
	for _, f := range failures {
		if errors.Is(f.cause, services.ErrUnavailable) {
			unavailable++
		}
	}
	if started == 0 && len(failures) > 0 && unavailable == len(failures) {
		return services.Wrap(services.ErrUnavailable, stageName, "start jobs",
			"Vision service unavailable for every asset", failures[0].cause)
	}

	for _, f := range failures {
		fctx := services.WithAssetID(ctx, f.rec.AssetID)
		logging.WarnWithContext(logging.WithContext(fctx, s.logger), "label job dispatch failed", "label_job_dispatch_failed",
			logging.String("kind", services.Kind(f.cause)),
			logging.Error(f.cause),
			logging.String(logging.FieldImpact, "asset will be finalized as skipped"),
		)
		if _, err := s.dispatcher.RecordFailure(fctx, f.rec, f.cause); err != nil {
			return services.Wrap(services.ErrTransientIO, stageName, "record failure", "Could not persist failed job", err)
		}
	}
	logger.Info("dispatch stage summary",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Int("started", started),
		logging.Int("failed", len(failures)),
		logging.Int("already_dispatched", len(hasJob)),
	)
	return nil
}

func (s *Stage) HealthCheck(context.Context) stage.Health {
	if s.service == nil {
		return stage.Unhealthy(stageName, "vision service not configured")
	}
	return stage.Healthy(stageName)
}
