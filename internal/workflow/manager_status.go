package workflow

import (
	"context"
	"fmt"
	"time"

	"clipwise/internal/logging"
	"clipwise/internal/services"
	"clipwise/internal/stage"
	"clipwise/internal/store"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running     bool
	LastError   string
	LastRun     *store.Run
	RunStats    map[store.RunStatus]int
	StageHealth map[string]stage.Health
}

// AssetProgress is one asset's position in a run.
type AssetProgress struct {
	AssetID       string
	Source        string
	Title         string
	RawPath       string
	IngestedAt    time.Time
	JobStatus     store.JobStatus
	JobAttempts   int
	JobMessage    string
	ProcessedPath string
	LabelCount    int
	SkipReason    store.SkipReason
	IndexStatus   string
}

// RunReport is the status view of one run.
type RunReport struct {
	Run      *store.Run
	Counts   store.RunCounts
	Assets   []AssetProgress
	Failures []*store.IngestionFailure
	LogPath  string
}

// Summary returns the latest workflow information.
func (m *Manager) Summary(ctx context.Context) StatusSummary {
	m.mu.RLock()
	running := m.running
	lastErr := m.lastErr
	lastRun := m.lastRun
	var stages []pipelineStage
	if m.pipeline != nil {
		stages = append(stages, m.pipeline.stages...)
	}
	m.mu.RUnlock()

	stats, err := m.store.RunStats(ctx)
	if err != nil {
		m.logger.Warn("failed to read run stats", logging.Error(err))
	}

	health := make(map[string]stage.Health, len(stages))
	for _, stg := range stages {
		health[stg.name] = stg.handler.HealthCheck(ctx)
	}

	summary := StatusSummary{Running: running, RunStats: stats, StageHealth: health}
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}
	if lastRun != nil {
		copy := *lastRun
		summary.LastRun = &copy
	}
	return summary
}

// Status reports a run's state with per-asset progress and ingestion failures.
func (m *Manager) Status(ctx context.Context, id string) (*RunReport, error) {
	run, err := m.store.GetRun(ctx, id)
	if err != nil {
		return nil, services.Wrap(services.ErrTransientIO, "workflow", "load run", "Could not read run", err)
	}
	if run == nil {
		return nil, services.Wrap(services.ErrNotFound, "workflow", "load run", fmt.Sprintf("Run %s not found", id), nil)
	}
	counts, err := m.store.CountRun(ctx, id)
	if err != nil {
		return nil, services.Wrap(services.ErrTransientIO, "workflow", "count run", "Could not aggregate run progress", err)
	}
	records, err := m.store.IngestionsForRun(ctx, id)
	if err != nil {
		return nil, services.Wrap(services.ErrTransientIO, "workflow", "load ingestions", "Could not read ingestion records", err)
	}
	jobs, err := m.store.LabelJobsForRun(ctx, id)
	if err != nil {
		return nil, services.Wrap(services.ErrTransientIO, "workflow", "load jobs", "Could not read label jobs", err)
	}
	summaries, err := m.store.SummariesForRun(ctx, id)
	if err != nil {
		return nil, services.Wrap(services.ErrTransientIO, "workflow", "load summaries", "Could not read summaries", err)
	}
	skips, err := m.store.SkipsForRun(ctx, id)
	if err != nil {
		return nil, services.Wrap(services.ErrTransientIO, "workflow", "load skips", "Could not read skips", err)
	}
	failures, err := m.store.IngestionFailuresForRun(ctx, id)
	if err != nil {
		return nil, services.Wrap(services.ErrTransientIO, "workflow", "load failures", "Could not read ingestion failures", err)
	}

	jobByAsset := make(map[string]*store.LabelJob, len(jobs))
	for _, job := range jobs {
		jobByAsset[job.AssetID] = job
	}
	summaryByAsset := make(map[string]*store.ProcessedSummary, len(summaries))
	for _, summary := range summaries {
		summaryByAsset[summary.AssetID] = summary
	}
	skipByAsset := make(map[string]*store.FinalizationSkip, len(skips))
	for _, skip := range skips {
		skipByAsset[skip.AssetID] = skip
	}

	assets := make([]AssetProgress, 0, len(records))
	for _, rec := range records {
		progress := AssetProgress{
			AssetID:    rec.AssetID,
			Source:     rec.Source,
			Title:      rec.Title,
			RawPath:    rec.RawPath,
			IngestedAt: rec.IngestedAt,
		}
		if job := jobByAsset[rec.AssetID]; job != nil {
			progress.JobStatus = job.Status
			progress.JobAttempts = job.Attempts
			progress.JobMessage = job.StatusMessage
		}
		if summary := summaryByAsset[rec.AssetID]; summary != nil {
			progress.ProcessedPath = summary.ProcessedPath
			progress.LabelCount = len(summary.Labels)
		}
		if skip := skipByAsset[rec.AssetID]; skip != nil {
			progress.SkipReason = skip.Reason
		}
		entry, err := m.store.GetIndexEntry(ctx, rec.AssetID)
		if err != nil {
			return nil, services.Wrap(services.ErrTransientIO, "workflow", "load index entry", "Could not read index entry", err)
		}
		if entry != nil {
			progress.IndexStatus = entry.Status
		}
		assets = append(assets, progress)
	}

	return &RunReport{
		Run:      run,
		Counts:   counts,
		Assets:   assets,
		Failures: failures,
		LogPath:  m.runLogs.Path(run),
	}, nil
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastRun(run *store.Run) {
	m.mu.Lock()
	if run != nil {
		copy := *run
		m.lastRun = &copy
	} else {
		m.lastRun = nil
	}
	m.mu.Unlock()
}
