package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Run describes a workflow run in a transport-friendly format.
type Run struct {
	ID            string   `json:"id"`
	Campaign      string   `json:"campaign"`
	BatchSize     int      `json:"batchSize"`
	Sources       []string `json:"sources"`
	Status        string   `json:"status"`
	PollRound     int      `json:"pollRound"`
	ErrorMessage  string   `json:"errorMessage,omitempty"`
	ResumeStatus  string   `json:"resumeStatus,omitempty"`
	CreatedAt     string   `json:"createdAt,omitempty"`
	UpdatedAt     string   `json:"updatedAt,omitempty"`
	LastHeartbeat string   `json:"lastHeartbeat,omitempty"`
}

// RunCounts aggregates a run's progress.
type RunCounts struct {
	Ingested        int            `json:"ingested"`
	IngestionFailed int            `json:"ingestionFailed"`
	Jobs            map[string]int `json:"jobs"`
	Processed       int            `json:"processed"`
	Skipped         int            `json:"skipped"`
	Indexed         int            `json:"indexed"`
}

// AssetProgress is one asset's position within a run.
type AssetProgress struct {
	AssetID       string `json:"assetId"`
	Source        string `json:"source"`
	Title         string `json:"title,omitempty"`
	RawPath       string `json:"rawPath"`
	IngestedAt    string `json:"ingestedAt,omitempty"`
	JobStatus     string `json:"jobStatus,omitempty"`
	JobAttempts   int    `json:"jobAttempts"`
	JobMessage    string `json:"jobMessage,omitempty"`
	ProcessedPath string `json:"processedPath,omitempty"`
	LabelCount    int    `json:"labelCount"`
	SkipReason    string `json:"skipReason,omitempty"`
	IndexStatus   string `json:"indexStatus,omitempty"`
}

// IngestionFailure is a candidate that could not be ingested.
type IngestionFailure struct {
	AssetID   string `json:"assetId"`
	Source    string `json:"source"`
	Kind      string `json:"kind"`
	Reason    string `json:"reason"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// RunReport is the status view of a single run.
type RunReport struct {
	Run      Run                `json:"run"`
	Counts   RunCounts          `json:"counts"`
	Assets   []AssetProgress    `json:"assets"`
	Failures []IngestionFailure `json:"failures"`
	LogPath  string             `json:"logPath,omitempty"`
}

// Asset is a metadata index entry.
type Asset struct {
	AssetID       string   `json:"assetId"`
	Source        string   `json:"source"`
	Campaign      string   `json:"campaign"`
	RawPath       string   `json:"rawPath"`
	ProcessedPath string   `json:"processedPath,omitempty"`
	LabelCount    int      `json:"labelCount"`
	TopLabels     []string `json:"topLabels"`
	Status        string   `json:"status"`
	UpdatedAt     string   `json:"updatedAt,omitempty"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running     bool           `json:"running"`
	RunStats    map[string]int `json:"runStats"`
	LastError   string         `json:"lastError,omitempty"`
	LastRun     *Run           `json:"lastRun,omitempty"`
	StageHealth []StageHealth  `json:"stageHealth"`
}

// StageHealth mirrors readiness reporting for workflow stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	DatabasePath string         `json:"databasePath"`
	LockFilePath string         `json:"lockFilePath"`
	Schedule     string         `json:"schedule,omitempty"`
	NextTrigger  string         `json:"nextTrigger,omitempty"`
	Campaign     CampaignState  `json:"campaign"`
	Workflow     WorkflowStatus `json:"workflow"`
}

// CampaignState is the current campaign consumed by scheduled runs.
type CampaignState struct {
	Campaign  string `json:"campaign"`
	BatchSize int    `json:"batchSize"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// TriggerRequest starts a run.
type TriggerRequest struct {
	Campaign  string `json:"campaign"`
	BatchSize int    `json:"batchSize"`
}

// TriggerResponse returns the execution identifier of a triggered run.
type TriggerResponse struct {
	ExecutionID string `json:"executionId"`
}

// RunListResponse wraps a collection of runs.
type RunListResponse struct {
	Runs []Run `json:"runs"`
}

// AssetListResponse wraps a collection of index entries.
type AssetListResponse struct {
	Assets []Asset `json:"assets"`
}

// ObjectListResponse lists stored object keys under a prefix.
type ObjectListResponse struct {
	Prefix string   `json:"prefix"`
	Keys   []string `json:"keys"`
}

// ErrorResponse is returned with every non-2xx API status.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
