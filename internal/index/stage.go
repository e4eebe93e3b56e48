package index

import (
	"context"
	"log/slog"

	"clipwise/internal/config"
	"clipwise/internal/finalize"
	"clipwise/internal/logging"
	"clipwise/internal/services"
	"clipwise/internal/stage"
	"clipwise/internal/store"
)

const stageName = "index"

// Stage indexes every finalized asset of a run.
type Stage struct {
	store   *store.Store
	indexer *Indexer
	logger  *slog.Logger
}

// NewStage constructs the index handler.
func NewStage(cfg *config.Config, st *store.Store, logger *slog.Logger) *Stage {
	return &Stage{
		store:   st,
		indexer: NewIndexer(st, cfg.Finalize.TopLabels, logger),
		logger:  logging.NewComponentLogger(logger, stageName),
	}
}

// Indexer exposes the single-outcome indexer.
func (s *Stage) Indexer() *Indexer { return s.indexer }

func (s *Stage) Prepare(_ context.Context, run *store.Run) error {
	return stage.RequireRun(stageName, run.ID)
}

// Outcomes rebuilds a run's finalization outcomes from the store.
func Outcomes(ctx context.Context, st *store.Store, runID string) ([]finalize.Outcome, error) {
	records, err := st.IngestionsForRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	summaries, err := st.SummariesForRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	skips, err := st.SkipsForRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	bySummary := make(map[string]*store.ProcessedSummary, len(summaries))
	for _, summary := range summaries {
		bySummary[summary.AssetID] = summary
	}
	bySkip := make(map[string]*store.FinalizationSkip, len(skips))
	for _, skip := range skips {
		bySkip[skip.AssetID] = skip
	}
	outcomes := make([]finalize.Outcome, 0, len(records))
	for _, rec := range records {
		outcome := finalize.Outcome{Record: rec, Summary: bySummary[rec.AssetID], Skip: bySkip[rec.AssetID]}
		if outcome.Summary == nil && outcome.Skip == nil {
			continue
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

func (s *Stage) Execute(ctx context.Context, run *store.Run) error {
	outcomes, err := Outcomes(ctx, s.store, run.ID)
	if err != nil {
		return services.Wrap(services.ErrTransientIO, stageName, "load outcomes", "Could not read finalization outcomes", err)
	}
	changed := 0
	for _, outcome := range outcomes {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		ok, err := s.indexer.Index(ctx, outcome)
		if err != nil {
			return err
		}
		if ok {
			changed++
		}
	}
	logging.WithContext(ctx, s.logger).Info("index stage summary",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Int("entries", len(outcomes)),
		logging.Int("changed", changed),
	)
	return nil
}

func (s *Stage) HealthCheck(ctx context.Context) stage.Health {
	return stage.Check(stageName, s.store.Ping(ctx))
}
