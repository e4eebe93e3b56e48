package config

const (
	defaultConfigPath                = "~/.config/clipwise/config.toml"
	defaultDataDir                   = "~/.local/share/clipwise"
	defaultLogDir                    = "~/.local/share/clipwise/logs"
	defaultStorageRoot               = "~/.local/share/clipwise/objects"
	defaultAPIBind                   = "127.0.0.1:7390"
	defaultCampaign                  = "nature"
	defaultBatchSize                 = 4
	defaultUserAgent                 = "Clipwise/dev (https://github.com/clipwise/clipwise)"
	defaultWikimediaBaseURL          = "https://commons.wikimedia.org/w/api.php"
	defaultArchiveBaseURL            = "https://archive.org"
	defaultCatalogRequestTimeout     = 30
	defaultCatalogRequestsPerSecond  = 2
	defaultCatalogPageSize           = 20
	defaultCatalogMaxPages           = 3
	defaultMaxAttempts               = 3
	defaultInitialBackoffMS          = 500
	defaultDownloadTimeout           = 300
	defaultMaxDownloadBytes          = 512 << 20
	defaultStageConcurrency          = 4
	defaultVisionRequestTimeout      = 30
	defaultVisionBaseURL             = "http://127.0.0.1:7391"
	defaultVisionMinConfidence       = 50
	defaultPollInterval              = 30
	defaultPollConcurrency           = 5
	defaultMaxPollRounds             = 40
	defaultUnavailableRounds         = 3
	defaultModerationFloor           = 60
	defaultTopLabels                 = 5
	defaultLogFormat                 = "console"
	defaultLogLevel                  = "info"
	defaultLogRetentionDays          = 30
	defaultWorkflowHeartbeatInterval = 15
	defaultWorkflowHeartbeatTimeout  = 120
	defaultStallRetry                = 600

	// StorageFilesystem keeps objects beneath storage.root.
	StorageFilesystem = "filesystem"
	// StorageS3 keeps objects in storage.bucket.
	StorageS3 = "s3"
	// VisionRekognition uses Amazon Rekognition Video.
	VisionRekognition = "rekognition"
	// VisionHTTP uses a self-hosted JSON labeler.
	VisionHTTP = "http"
)

// DefaultCampaigns lists the campaigns offered when none are configured.
var DefaultCampaigns = []string{"nature", "tech", "travel"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Campaign: Campaign{
			Default:   defaultCampaign,
			BatchSize: defaultBatchSize,
			Sources:   []string{"wikimedia", "archive"},
			Presets:   append([]string(nil), DefaultCampaigns...),
		},
		Catalog: Catalog{
			UserAgent:         defaultUserAgent,
			RequestTimeout:    defaultCatalogRequestTimeout,
			RequestsPerSecond: defaultCatalogRequestsPerSecond,
			MaxAttempts:       defaultMaxAttempts,
			PageSize:          defaultCatalogPageSize,
			MaxPages:          defaultCatalogMaxPages,
			WikimediaBaseURL:  defaultWikimediaBaseURL,
			ArchiveBaseURL:    defaultArchiveBaseURL,
		},
		Ingest: Ingest{
			Concurrency:      defaultStageConcurrency,
			MaxAttempts:      defaultMaxAttempts,
			InitialBackoffMS: defaultInitialBackoffMS,
			DownloadTimeout:  defaultDownloadTimeout,
			MaxBytes:         defaultMaxDownloadBytes,
		},
		Storage: Storage{
			Backend: StorageFilesystem,
			Root:    defaultStorageRoot,
		},
		Vision: Vision{
			Backend:          VisionHTTP,
			BaseURL:          defaultVisionBaseURL,
			MinConfidence:    defaultVisionMinConfidence,
			Moderation:       true,
			RequestTimeout:   defaultVisionRequestTimeout,
			MaxAttempts:      defaultMaxAttempts,
			InitialBackoffMS: defaultInitialBackoffMS,
			Concurrency:      defaultStageConcurrency,
		},
		Workflow: Workflow{
			PollInterval:       defaultPollInterval,
			PollConcurrency:    defaultPollConcurrency,
			MaxPollRounds:      defaultMaxPollRounds,
			UnavailableRounds:  defaultUnavailableRounds,
			QueuePollInterval:  5,
			ErrorRetryInterval: 10,
			HeartbeatInterval:  defaultWorkflowHeartbeatInterval,
			HeartbeatTimeout:   defaultWorkflowHeartbeatTimeout,
			StallRetry:         defaultStallRetry,
		},
		Finalize: Finalize{
			ModerationFloor: defaultModerationFloor,
			TopLabels:       defaultTopLabels,
			Concurrency:     defaultStageConcurrency,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			RunStarted:     true,
			RunCompleted:   true,
			Errors:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
