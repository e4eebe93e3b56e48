package finalize

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"clipwise/internal/config"
	"clipwise/internal/logging"
	"clipwise/internal/services"
	"clipwise/internal/stage"
	"clipwise/internal/storage"
	"clipwise/internal/store"
	"clipwise/internal/vision"
)

const stageName = "finalize"

// Stage finalizes every terminal job of a run that has no outcome yet.
type Stage struct {
	store     *store.Store
	finalizer *Finalizer
	cfg       *config.Config
	logger    *slog.Logger
}

// NewStage constructs the finalize handler.
func NewStage(cfg *config.Config, st *store.Store, objects storage.ObjectStore, service vision.Service, logger *slog.Logger) *Stage {
	return &Stage{
		store: st,
		finalizer: NewFinalizer(service, objects, st, Options{
			ModerationFloor: cfg.Finalize.ModerationFloor,
			MaxAttempts:     cfg.Vision.MaxAttempts,
			InitialBackoff:  time.Duration(cfg.Vision.InitialBackoffMS) * time.Millisecond,
		}, logger),
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, stageName),
	}
}

// Finalizer exposes the single-asset finalizer.
func (s *Stage) Finalizer() *Finalizer { return s.finalizer }

func (s *Stage) Prepare(_ context.Context, run *store.Run) error {
	return stage.RequireRun(stageName, run.ID)
}

func (s *Stage) Execute(ctx context.Context, run *store.Run) error {
	jobs, err := s.store.PendingFinalization(ctx, run.ID)
	if err != nil {
		return services.Wrap(services.ErrTransientIO, stageName, "load jobs", "Could not list pending jobs", err)
	}

	var (
		mu       sync.Mutex
		counts   = map[string]int{}
		firstErr error
	)
	var group errgroup.Group
	group.SetLimit(stage.Limit(s.cfg.Finalize.Concurrency))
	for _, job := range jobs {
		group.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			rec, err := s.store.GetIngestion(ctx, job.AssetID)
			if err == nil && rec == nil {
				err = services.Wrap(services.ErrNotFound, stageName, "load ingestion", "No ingestion record for "+job.AssetID, nil)
			}
			var outcome Outcome
			if err == nil {
				outcome, err = s.finalizer.Finalize(ctx, job, rec)
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return nil
			}
			if outcome.Summary != nil {
				counts["processed"]++
			} else {
				counts[string(outcome.Skip.Reason)]++
			}
			return nil
		})
	}
	_ = group.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if firstErr != nil {
		return services.Wrap(services.ErrTransientIO, stageName, "finalize", "Could not record every outcome", firstErr)
	}
	logging.WithContext(ctx, s.logger).Info("finalize stage summary",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Int("processed", counts["processed"]),
		logging.Int("failed", counts[string(store.SkipFailed)]),
		logging.Int("timed_out", counts[string(store.SkipTimedOut)]),
		logging.Int("finalization_failed", counts[string(store.SkipFinalizationFailed)]),
	)
	return nil
}

func (s *Stage) HealthCheck(context.Context) stage.Health {
	return stage.Healthy(stageName)
}
