package api

import (
	"slices"
	"time"

	"clipwise/internal/config"
	"clipwise/internal/stage"
	"clipwise/internal/store"
	"clipwise/internal/workflow"
)

// FromRun converts a run record to its API representation.
func FromRun(run *store.Run) Run {
	if run == nil {
		return Run{}
	}
	dto := Run{
		ID:           run.ID,
		Campaign:     run.Campaign,
		BatchSize:    run.BatchSize,
		Sources:      append([]string{}, run.Sources...),
		Status:       string(run.Status),
		PollRound:    run.PollRound,
		ErrorMessage: run.ErrorMessage,
		ResumeStatus: string(run.ResumeStatus),
		CreatedAt:    FormatTime(run.CreatedAt),
		UpdatedAt:    FormatTime(run.UpdatedAt),
	}
	if run.LastHeartbeat != nil {
		dto.LastHeartbeat = FormatTime(*run.LastHeartbeat)
	}
	return dto
}

// FromRuns converts a slice of run records into API DTOs.
func FromRuns(runs []*store.Run) []Run {
	out := make([]Run, 0, len(runs))
	for _, run := range runs {
		out = append(out, FromRun(run))
	}
	return out
}

// FromRunCounts converts aggregated run progress.
func FromRunCounts(counts store.RunCounts) RunCounts {
	jobs := make(map[string]int, len(counts.Jobs))
	for status, count := range counts.Jobs {
		jobs[string(status)] = count
	}
	return RunCounts{
		Ingested:        counts.Ingested,
		IngestionFailed: counts.Failed,
		Jobs:            jobs,
		Processed:       counts.Processed,
		Skipped:         counts.Skipped,
		Indexed:         counts.Indexed,
	}
}

// FromRunReport converts a workflow run report.
func FromRunReport(report *workflow.RunReport) RunReport {
	if report == nil {
		return RunReport{}
	}
	assets := make([]AssetProgress, 0, len(report.Assets))
	for _, asset := range report.Assets {
		assets = append(assets, AssetProgress{
			AssetID:       asset.AssetID,
			Source:        asset.Source,
			Title:         asset.Title,
			RawPath:       asset.RawPath,
			IngestedAt:    FormatTime(asset.IngestedAt),
			JobStatus:     string(asset.JobStatus),
			JobAttempts:   asset.JobAttempts,
			JobMessage:    asset.JobMessage,
			ProcessedPath: asset.ProcessedPath,
			LabelCount:    asset.LabelCount,
			SkipReason:    string(asset.SkipReason),
			IndexStatus:   asset.IndexStatus,
		})
	}
	failures := make([]IngestionFailure, 0, len(report.Failures))
	for _, failure := range report.Failures {
		if failure == nil {
			continue
		}
		failures = append(failures, IngestionFailure{
			AssetID:   failure.AssetID,
			Source:    failure.Source,
			Kind:      failure.Kind,
			Reason:    failure.Reason,
			CreatedAt: FormatTime(failure.CreatedAt),
		})
	}
	return RunReport{
		Run:      FromRun(report.Run),
		Counts:   FromRunCounts(report.Counts),
		Assets:   assets,
		Failures: failures,
		LogPath:  report.LogPath,
	}
}

// FromIndexEntry converts a metadata index entry.
func FromIndexEntry(entry *store.IndexEntry) Asset {
	if entry == nil {
		return Asset{}
	}
	return Asset{
		AssetID:       entry.AssetID,
		Source:        entry.Source,
		Campaign:      entry.Campaign,
		RawPath:       entry.RawPath,
		ProcessedPath: entry.ProcessedPath,
		LabelCount:    entry.LabelCount,
		TopLabels:     append([]string{}, entry.TopLabels...),
		Status:        entry.Status,
		UpdatedAt:     FormatTime(entry.UpdatedAt),
	}
}

// FromIndexEntries converts a slice of index entries.
func FromIndexEntries(entries []*store.IndexEntry) []Asset {
	out := make([]Asset, 0, len(entries))
	for _, entry := range entries {
		out = append(out, FromIndexEntry(entry))
	}
	return out
}

// FromStatusSummary converts a workflow status summary to API payload.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	wf := WorkflowStatus{
		Running:     summary.Running,
		RunStats:    MergeRunStats(summary.RunStats),
		StageHealth: StageHealthSlice(summary.StageHealth),
		LastError:   summary.LastError,
	}
	if summary.LastRun != nil {
		last := FromRun(summary.LastRun)
		wf.LastRun = &last
	}
	return wf
}

// FromState converts the persisted campaign state.
func FromState(state config.State) CampaignState {
	return CampaignState{
		Campaign:  state.Campaign,
		BatchSize: state.BatchSize,
		UpdatedAt: FormatTime(state.UpdatedAt),
	}
}

// MergeRunStats produces a string-keyed representation of run stats. Every
// known status is present so consumers can render stable columns.
func MergeRunStats(stats map[store.RunStatus]int) map[string]int {
	out := make(map[string]int, len(stats))
	for _, status := range store.AllRunStatuses() {
		out[string(status)] = 0
	}
	for status, count := range stats {
		out[string(status)] = count
	}
	return out
}

// StageHealthSlice converts a stage health map into a deterministic slice.
func StageHealthSlice(health map[string]stage.Health) []StageHealth {
	names := make([]string, 0, len(health))
	for name := range health {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make([]StageHealth, 0, len(names))
	for _, name := range names {
		h := health[name]
		out = append(out, StageHealth{Name: name, Ready: h.Ready, Detail: h.Detail})
	}
	return out
}

// FormatTime converts a time to RFC3339 or returns empty string.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
