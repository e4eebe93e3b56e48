// Package api defines wire-format types and converters for the HTTP API and
// the CLI. It translates internal store and workflow models into
// transport-friendly DTOs that dashboards and scripts can render without
// coupling to internal types.
//
// # Key Types
//
// Run: transport representation of a workflow run.
//
// RunReport: a run plus per-asset progress (ingestion, label job, finalization,
// index status) and ingestion failures.
//
// Asset: one metadata index entry, the projection monitoring consumers read.
//
// WorkflowStatus: manager running state, run counts by status, stage health.
//
// # Converters
//
// FromRun, FromRunReport, FromIndexEntry, FromStatusSummary, FromState.
//
// StageHealthSlice: deterministic ordering of the stage health map.
//
// # Design Notes
//
// DTOs use camelCase JSON tags for JavaScript/TypeScript consumers. Internal
// enums (store.RunStatus, store.JobStatus) are exposed as their string values.
// Timestamps use RFC3339 with milliseconds.
package api
