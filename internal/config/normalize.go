package config

import (
	"fmt"
	"os"
	"strings"
)

const envPrefix = "CLIPWISE_"

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeCampaign()
	c.normalizeCatalog()
	c.normalizeIngest()
	if err := c.normalizeStorage(); err != nil {
		return err
	}
	c.normalizeVision()
	c.normalizeWorkflow()
	c.normalizeFinalize()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func lookupEnv(name string) (string, bool) {
	value, ok := os.LookupEnv(envPrefix + name)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

func (c *Config) normalizePaths() error {
	if value, ok := lookupEnv("DATA_DIR"); ok {
		c.Paths.DataDir = value
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := lookupEnv("API_TOKEN"); ok {
			c.Paths.APIToken = value
		}
	}
	return nil
}

func (c *Config) normalizeCampaign() {
	if value, ok := lookupEnv("CAMPAIGN"); ok {
		c.Campaign.Default = value
	}
	c.Campaign.Default = NormalizeCampaign(c.Campaign.Default)
	if c.Campaign.Default == "" {
		c.Campaign.Default = defaultCampaign
	}
	if c.Campaign.BatchSize < 0 {
		c.Campaign.BatchSize = 0
	}
	c.Campaign.Sources = normalizeList(c.Campaign.Sources)
	c.Campaign.Presets = normalizeList(c.Campaign.Presets)
	if len(c.Campaign.Presets) == 0 {
		c.Campaign.Presets = append([]string(nil), DefaultCampaigns...)
	}
	c.Campaign.Schedule = strings.TrimSpace(c.Campaign.Schedule)
}

func (c *Config) normalizeCatalog() {
	c.Catalog.UserAgent = strings.TrimSpace(c.Catalog.UserAgent)
	if c.Catalog.UserAgent == "" {
		c.Catalog.UserAgent = defaultUserAgent
	}
	c.Catalog.WikimediaBaseURL = strings.TrimRight(strings.TrimSpace(c.Catalog.WikimediaBaseURL), "/")
	if c.Catalog.WikimediaBaseURL == "" {
		c.Catalog.WikimediaBaseURL = defaultWikimediaBaseURL
	}
	c.Catalog.ArchiveBaseURL = strings.TrimRight(strings.TrimSpace(c.Catalog.ArchiveBaseURL), "/")
	if c.Catalog.ArchiveBaseURL == "" {
		c.Catalog.ArchiveBaseURL = defaultArchiveBaseURL
	}
	if c.Catalog.PageSize <= 0 {
		c.Catalog.PageSize = defaultCatalogPageSize
	}
	if c.Catalog.MaxPages <= 0 {
		c.Catalog.MaxPages = defaultCatalogMaxPages
	}
	if c.Catalog.MaxAttempts <= 0 {
		c.Catalog.MaxAttempts = defaultMaxAttempts
	}
}

func (c *Config) normalizeIngest() {
	if c.Ingest.Concurrency <= 0 {
		c.Ingest.Concurrency = defaultStageConcurrency
	}
	if c.Ingest.MaxAttempts <= 0 {
		c.Ingest.MaxAttempts = defaultMaxAttempts
	}
	if c.Ingest.InitialBackoffMS <= 0 {
		c.Ingest.InitialBackoffMS = defaultInitialBackoffMS
	}
	if c.Ingest.MaxBytes <= 0 {
		c.Ingest.MaxBytes = defaultMaxDownloadBytes
	}
}

func (c *Config) normalizeStorage() error {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = StorageFilesystem
	}
	if value, ok := lookupEnv("BUCKET"); ok {
		c.Storage.Bucket = value
	}
	c.Storage.Bucket = strings.TrimSpace(c.Storage.Bucket)
	c.Storage.Prefix = strings.Trim(strings.TrimSpace(c.Storage.Prefix), "/")
	c.Storage.Region = strings.TrimSpace(c.Storage.Region)
	if c.Storage.Region == "" {
		c.Storage.Region = awsRegionFromEnv()
	}
	if strings.TrimSpace(c.Storage.Root) == "" {
		c.Storage.Root = defaultStorageRoot
	}
	var err error
	if c.Storage.Root, err = expandPath(c.Storage.Root); err != nil {
		return fmt.Errorf("storage.root: %w", err)
	}
	return nil
}

func (c *Config) normalizeVision() {
	c.Vision.Backend = strings.ToLower(strings.TrimSpace(c.Vision.Backend))
	if c.Vision.Backend == "" {
		c.Vision.Backend = VisionHTTP
	}
	c.Vision.BaseURL = strings.TrimRight(strings.TrimSpace(c.Vision.BaseURL), "/")
	if value, ok := lookupEnv("VISION_URL"); ok {
		c.Vision.BaseURL = strings.TrimRight(value, "/")
	}
	if c.Vision.Backend == VisionHTTP && c.Vision.BaseURL == "" {
		c.Vision.BaseURL = defaultVisionBaseURL
	}
	c.Vision.APIKey = strings.TrimSpace(c.Vision.APIKey)
	if value, ok := lookupEnv("VISION_API_KEY"); ok && c.Vision.APIKey == "" {
		c.Vision.APIKey = value
	}
	c.Vision.Region = strings.TrimSpace(c.Vision.Region)
	if c.Vision.Region == "" {
		c.Vision.Region = c.Storage.Region
	}
	if c.Vision.MaxAttempts <= 0 {
		c.Vision.MaxAttempts = defaultMaxAttempts
	}
	if c.Vision.InitialBackoffMS <= 0 {
		c.Vision.InitialBackoffMS = defaultInitialBackoffMS
	}
	if c.Vision.Concurrency <= 0 {
		c.Vision.Concurrency = defaultStageConcurrency
	}
	if c.Vision.RequestTimeout <= 0 {
		c.Vision.RequestTimeout = defaultVisionRequestTimeout
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.PollConcurrency <= 0 {
		c.Workflow.PollConcurrency = defaultPollConcurrency
	}
	if c.Workflow.UnavailableRounds <= 0 {
		c.Workflow.UnavailableRounds = defaultUnavailableRounds
	}
	if c.Workflow.MaxWait < 0 {
		c.Workflow.MaxWait = 0
	}
}

func (c *Config) normalizeFinalize() {
	if c.Finalize.TopLabels <= 0 {
		c.Finalize.TopLabels = defaultTopLabels
	}
	if c.Finalize.Concurrency <= 0 {
		c.Finalize.Concurrency = defaultStageConcurrency
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := lookupEnv("NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = value
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

// NormalizeCampaign canonicalizes a campaign name for storage keys and queries.
func NormalizeCampaign(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func normalizeList(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		normalized := strings.ToLower(strings.TrimSpace(value))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}

func awsRegionFromEnv() string {
	for _, name := range []string{"AWS_REGION", "AWS_DEFAULT_REGION"} {
		if value, ok := os.LookupEnv(name); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
