package store

import (
	"errors"
	"time"
)

// RunStatus represents the lifecycle of a workflow run.
type RunStatus string

const (
	RunPending     RunStatus = "pending"
	RunIngesting   RunStatus = "ingesting"
	RunIngested    RunStatus = "ingested"
	RunDispatching RunStatus = "dispatching"
	RunDispatched  RunStatus = "dispatched"
	RunPolling     RunStatus = "polling"
	RunPolled      RunStatus = "polled"
	RunFinalizing  RunStatus = "finalizing"
	RunFinalized   RunStatus = "finalized"
	RunIndexing    RunStatus = "indexing"
	RunCompleted   RunStatus = "completed"
	RunFailed      RunStatus = "failed"
	// RunStalled parks a run whose stage lost a dependent service. The run
	// re-enters at ResumeStatus once the service is back.
	RunStalled RunStatus = "stalled"
)

var allRunStatuses = []RunStatus{
	RunPending,
	RunIngesting,
	RunIngested,
	RunDispatching,
	RunDispatched,
	RunPolling,
	RunPolled,
	RunFinalizing,
	RunFinalized,
	RunIndexing,
	RunStalled,
	RunCompleted,
	RunFailed,
}

type statusTransition struct {
	from RunStatus
	to   RunStatus
}

// stageRollbackTransitions maps each processing status back to the start
// status of its stage.
var stageRollbackTransitions = []statusTransition{
	{from: RunIngesting, to: RunPending},
	{from: RunDispatching, to: RunIngested},
	{from: RunPolling, to: RunDispatched},
	{from: RunFinalizing, to: RunPolled},
	{from: RunIndexing, to: RunFinalized},
}

// AllRunStatuses returns the ordered list of known run statuses.
func AllRunStatuses() []RunStatus {
	out := make([]RunStatus, len(allRunStatuses))
	copy(out, allRunStatuses)
	return out
}

// ParseRunStatus converts a raw string into a RunStatus.
func ParseRunStatus(value string) (RunStatus, bool) {
	for _, status := range allRunStatuses {
		if string(status) == value {
			return status, true
		}
	}
	return "", false
}

// IsProcessing reports whether a stage is actively working the run.
func (s RunStatus) IsProcessing() bool {
	for _, tr := range stageRollbackTransitions {
		if tr.from == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the run will not advance further.
func (s RunStatus) IsTerminal() bool {
	return s == RunCompleted || s == RunFailed
}

// Run is one cohort execution started by the trigger entrypoint.
type Run struct {
	ID            string
	Campaign      string
	BatchSize     int
	Sources       []string
	Status        RunStatus
	PollRound     int
	ErrorMessage  string
	ResumeStatus  RunStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastHeartbeat *time.Time
}

// IngestionStatusRaw is the only status an ingestion record carries.
const IngestionStatusRaw = "RAW"

// IngestionRecord is the write-once record of a downloaded asset.
type IngestionRecord struct {
	AssetID     string
	Source      string
	ExternalID  string
	Campaign    string
	RunID       string
	Title       string
	License     string
	DownloadURL string
	RawPath     string
	ContentType string
	SizeBytes   int64
	SHA256      string
	Status      string
	IngestedAt  time.Time
}

// IngestionFailure records a candidate that could not be ingested.
type IngestionFailure struct {
	ID        int64
	RunID     string
	AssetID   string
	Source    string
	Kind      string
	Reason    string
	CreatedAt time.Time
}

// JobStatus is the lifecycle of a label-detection job.
type JobStatus string

const (
	JobStarted    JobStatus = "STARTED"
	JobInProgress JobStatus = "IN_PROGRESS"
	JobSucceeded  JobStatus = "SUCCEEDED"
	JobFailed     JobStatus = "FAILED"
	JobTimedOut   JobStatus = "TIMED_OUT"
)

// IsTerminal reports whether the job will never be polled again.
func (s JobStatus) IsTerminal() bool {
	return s == JobSucceeded || s == JobFailed || s == JobTimedOut
}

// LabelJob tracks one asynchronous label-detection job per ingested asset.
type LabelJob struct {
	AssetID       string
	RunID         string
	Handle        string
	Status        JobStatus
	Attempts      int
	StatusMessage string
	StartedAt     time.Time
	UpdatedAt     time.Time
	LastPolledAt  *time.Time
}

// LabelSummary is one normalized label in a processed summary. The JSON field
// names are part of the labels.json contract.
type LabelSummary struct {
	Name        string  `json:"name"`
	Confidence  float64 `json:"confidence"`
	FirstSeenMS int64   `json:"first_seen_ms"`
	LastSeenMS  int64   `json:"last_seen_ms"`
}

// ProcessedSummary is the write-once normalized result for a succeeded job.
type ProcessedSummary struct {
	AssetID         string
	RunID           string
	ProcessedPath   string
	Labels          []LabelSummary
	ModerationFlags []string
	DurationMS      int64
	FinalizedAt     time.Time
}

// SkipReason explains why an asset has no processed summary.
type SkipReason string

const (
	SkipFailed             SkipReason = "FAILED"
	SkipTimedOut           SkipReason = "TIMED_OUT"
	SkipFinalizationFailed SkipReason = "FINALIZATION_FAILED"
)

// FinalizationSkip is recorded instead of a summary for jobs that did not succeed.
type FinalizationSkip struct {
	AssetID   string
	RunID     string
	Reason    SkipReason
	Detail    string
	SkippedAt time.Time
}

// IndexStatusProcessed marks index entries backed by a processed summary.
const IndexStatusProcessed = "PROCESSED"

// IndexEntry is the projection read by the monitoring surface.
type IndexEntry struct {
	AssetID       string
	Source        string
	Campaign      string
	RawPath       string
	ProcessedPath string
	LabelCount    int
	TopLabels     []string
	Status        string
	UpdatedAt     time.Time
}

// IndexFilter narrows index queries. Empty fields match everything.
type IndexFilter struct {
	Campaign string
	Source   string
	Status   string
	Limit    int
}

// RunCounts aggregates per-run progress for status reporting.
type RunCounts struct {
	Ingested  int
	Failed    int
	Jobs      map[JobStatus]int
	Processed int
	Skipped   int
	Indexed   int
}

var (
	// ErrAlreadyIngested reports that another run recorded the asset first.
	ErrAlreadyIngested = errors.New("asset already ingested")
	// ErrJobExists reports that a non-failed label job already exists for the asset.
	ErrJobExists = errors.New("label job already exists")
)
