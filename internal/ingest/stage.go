package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"clipwise/internal/batch"
	"clipwise/internal/catalog"
	"clipwise/internal/config"
	"clipwise/internal/dedup"
	"clipwise/internal/logging"
	"clipwise/internal/services"
	"clipwise/internal/stage"
	"clipwise/internal/storage"
	"clipwise/internal/store"
)

const stageName = "ingest"

// Stage ingests a run's batch.
type Stage struct {
	store    *store.Store
	sources  map[string]catalog.Source
	filter   *dedup.Filter
	executor *Executor
	cfg      *config.Config
	logger   *slog.Logger
}

// NewStage constructs the ingest handler with the catalog adapters named in cfg.
func NewStage(cfg *config.Config, st *store.Store, objects storage.ObjectStore, logger *slog.Logger) (*Stage, error) {
	sources, err := catalog.NewSources(cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewStageWithDependencies(cfg, st, objects, sources, logger), nil
}

// NewStageWithDependencies allows injecting catalog sources (used in tests).
func NewStageWithDependencies(cfg *config.Config, st *store.Store, objects storage.ObjectStore, sources map[string]catalog.Source, logger *slog.Logger) *Stage {
	executor := NewExecutor(st, objects, Options{
		MaxAttempts:    cfg.Ingest.MaxAttempts,
		InitialBackoff: time.Duration(cfg.Ingest.InitialBackoffMS) * time.Millisecond,
		Timeout:        time.Duration(cfg.Ingest.DownloadTimeout) * time.Second,
		MaxBytes:       cfg.Ingest.MaxBytes,
		UserAgent:      cfg.Catalog.UserAgent,
	}, logger)
	return &Stage{
		store:    st,
		sources:  sources,
		filter:   dedup.New(st),
		executor: executor,
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, stageName),
	}
}

// Executor exposes the single-asset executor.
func (s *Stage) Executor() *Executor { return s.executor }

func (s *Stage) Prepare(ctx context.Context, run *store.Run) error {
	if err := stage.RequireRun(stageName, run.ID); err != nil {
		return err
	}
	for _, name := range run.Sources {
		if _, ok := s.sources[name]; !ok {
			return services.Wrap(services.ErrConfiguration, stageName, "resolve source",
				fmt.Sprintf("No catalog adapter for source %q", name), nil)
		}
	}
	return nil
}

// Execute ingests whatever part of the run's allocation is still missing.
func (s *Stage) Execute(ctx context.Context, run *store.Run) error {
	logger := logging.WithContext(ctx, s.logger)
	shares, err := batch.Allocation(run.BatchSize, run.Sources)
	if err != nil {
		return err
	}
	done, err := s.store.IngestedCountsBySource(ctx, run.ID)
	if err != nil {
		return services.Wrap(services.ErrTransientIO, stageName, "load progress", "Could not read ingestion progress", err)
	}

	var (
		searched   int
		searchErrs int
		selected   []catalog.CandidateAsset
	)
	for _, share := range shares {
		need := share.Count - done[share.Source]
		if need <= 0 {
			continue
		}
		searched++
		picked, err := s.collect(ctx, run, share.Source, need)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			searchErrs++
			logging.WarnWithContext(logger, "catalog search failed", "catalog_search_failed",
				logging.String("source", share.Source),
				logging.Error(err),
				logging.String(logging.FieldImpact, "source contributes fewer assets to this run"),
			)
		}
		if len(picked) < need {
			logger.Info("source allocation not met",
				logging.String("source", share.Source),
				logging.Int("allocated", need),
				logging.Int("found", len(picked)),
			)
		}
		selected = append(selected, picked...)
	}
	if searched > 0 && searchErrs == searched && len(selected) == 0 {
		return services.Wrap(services.ErrUnavailable, stageName, "search", "Every catalog search failed", nil)
	}

	ingested := s.ingestAll(ctx, run, selected)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	logger.Info("ingest stage summary",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Int("selected", len(selected)),
		logging.Int("ingested", ingested),
		logging.Int("failed", len(selected)-ingested),
	)
	return nil
}

// collect pages through one source until need fresh candidates are found.
func (s *Stage) collect(ctx context.Context, run *store.Run, name string, need int) ([]catalog.CandidateAsset, error) {
	source := s.sources[name]
	seen := make(map[string]struct{})
	var picked []catalog.CandidateAsset
	for page := 0; page < s.cfg.Catalog.MaxPages && len(picked) < need; page++ {
		results, err := source.Search(ctx, catalog.Query{Keyword: run.Campaign, Page: page, Limit: s.cfg.Catalog.PageSize})
		if err != nil {
			return picked, err
		}
		if len(results) == 0 {
			break
		}
		admitted, err := s.filter.Admit(ctx, results)
		if err != nil {
			return picked, err
		}
		for _, candidate := range admitted {
			if _, dup := seen[candidate.AssetID()]; dup {
				continue
			}
			seen[candidate.AssetID()] = struct{}{}
			picked = append(picked, candidate)
			if len(picked) == need {
				break
			}
		}
	}
	return picked, nil
}

func (s *Stage) ingestAll(ctx context.Context, run *store.Run, candidates []catalog.CandidateAsset) int {
	var (
		mu       sync.Mutex
		ingested int
	)
	var group errgroup.Group
	group.SetLimit(stage.Limit(s.cfg.Ingest.Concurrency))
	for _, candidate := range candidates {
		group.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if _, err := s.executor.Ingest(ctx, run.ID, run.Campaign, candidate); err != nil {
				s.recordFailure(ctx, run, candidate, err)
				return nil
			}
			mu.Lock()
			ingested++
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()
	return ingested
}

func (s *Stage) recordFailure(ctx context.Context, run *store.Run, candidate catalog.CandidateAsset, cause error) {
	if errors.Is(cause, context.Canceled) {
		return
	}
	kind := services.Kind(cause)
	if errors.Is(cause, store.ErrAlreadyIngested) {
		kind = "duplicate"
	}
	logger := logging.WithContext(services.WithAssetID(ctx, candidate.AssetID()), s.logger)
	logging.WarnWithContext(logger, "asset ingestion failed", "asset_ingest_failed",
		logging.String("kind", kind),
		logging.Error(cause),
		logging.String(logging.FieldImpact, "asset skipped for this run"),
	)
	if err := s.store.RecordIngestionFailure(ctx, &store.IngestionFailure{
		RunID:   run.ID,
		AssetID: candidate.AssetID(),
		Source:  candidate.Source,
		Kind:    kind,
		Reason:  cause.Error(),
	}); err != nil {
		logger.Error("record ingestion failure", logging.Error(err))
	}
}

func (s *Stage) HealthCheck(context.Context) stage.Health {
	if len(s.sources) == 0 {
		return stage.Unhealthy(stageName, "no catalog sources configured")
	}
	return stage.Healthy(stageName)
}
