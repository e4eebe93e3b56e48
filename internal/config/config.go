package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Campaign holds the fallback campaign and the scheduled trigger settings.
type Campaign struct {
	Default   string   `toml:"default"`
	BatchSize int      `toml:"batch_size"`
	Sources   []string `toml:"sources"`
	Schedule  string   `toml:"schedule"`
	Presets   []string `toml:"presets"`
}

// Catalog contains settings shared by the media catalog adapters.
type Catalog struct {
	UserAgent         string  `toml:"user_agent"`
	RequestTimeout    int     `toml:"request_timeout"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	MaxAttempts       int     `toml:"max_attempts"`
	PageSize          int     `toml:"page_size"`
	MaxPages          int     `toml:"max_pages"`
	WikimediaBaseURL  string  `toml:"wikimedia_base_url"`
	ArchiveBaseURL    string  `toml:"archive_base_url"`
}

// Ingest controls asset downloads.
type Ingest struct {
	Concurrency      int   `toml:"concurrency"`
	MaxAttempts      int   `toml:"max_attempts"`
	InitialBackoffMS int   `toml:"initial_backoff_ms"`
	DownloadTimeout  int   `toml:"download_timeout"`
	MaxBytes         int64 `toml:"max_bytes"`
}

// Storage selects the object store backend for the raw and processed zones.
type Storage struct {
	Backend string `toml:"backend"`
	Root    string `toml:"root"`
	Bucket  string `toml:"bucket"`
	Prefix  string `toml:"prefix"`
	Region  string `toml:"region"`
}

// Vision selects the asynchronous label-detection backend.
type Vision struct {
	Backend          string  `toml:"backend"`
	BaseURL          string  `toml:"base_url"`
	APIKey           string  `toml:"api_key"`
	Region           string  `toml:"region"`
	MinConfidence    float64 `toml:"min_confidence"`
	Moderation       bool    `toml:"moderation"`
	RequestTimeout   int     `toml:"request_timeout"`
	MaxAttempts      int     `toml:"max_attempts"`
	InitialBackoffMS int     `toml:"initial_backoff_ms"`
	Concurrency      int     `toml:"concurrency"`
}

// Workflow contains configuration for run execution timing and bounds.
type Workflow struct {
	PollInterval       int `toml:"poll_interval"`
	PollConcurrency    int `toml:"poll_concurrency"`
	MaxPollRounds      int `toml:"max_poll_rounds"`
	MaxWait            int `toml:"max_wait"`
	UnavailableRounds  int `toml:"unavailable_rounds"`
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
	HeartbeatTimeout   int `toml:"heartbeat_timeout"`
	StallRetry         int `toml:"stall_retry"`
}

// Finalize controls label normalization and index projection.
type Finalize struct {
	ModerationFloor float64 `toml:"moderation_floor"`
	TopLabels       int     `toml:"top_labels"`
	Concurrency     int     `toml:"concurrency"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	RunStarted     bool   `toml:"run_started"`
	RunCompleted   bool   `toml:"run_completed"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for Clipwise.
//
// Configuration sections by subsystem:
//   - Paths: data directory, logs, and API bind address
//   - Campaign: fallback campaign, source order, and cron schedule
//   - Catalog: Wikimedia Commons and Internet Archive search settings
//   - Ingest: download retries and limits
//   - Storage: filesystem or S3 object storage
//   - Vision: Rekognition or HTTP label detection
//   - Workflow: poll loop bounds and daemon intervals
//   - Finalize: moderation floor and index projection
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Campaign      Campaign      `toml:"campaign"`
	Catalog       Catalog       `toml:"catalog"`
	Ingest        Ingest        `toml:"ingest"`
	Storage       Storage       `toml:"storage"`
	Vision        Vision        `toml:"vision"`
	Workflow      Workflow      `toml:"workflow"`
	Finalize      Finalize      `toml:"finalize"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("clipwise.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.LogDir}
	if c.Storage.Backend == StorageFilesystem {
		dirs = append(dirs, c.Storage.Root)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the location of the workflow database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "clipwise.db")
}

// LockPath returns the daemon lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "clipwise.lock")
}

// StatePath returns the persisted campaign state location.
func (c *Config) StatePath() string {
	return filepath.Join(c.Paths.DataDir, "campaign.toml")
}

// PollInterval returns the poll loop wait between rounds.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Workflow.PollInterval) * time.Second
}

// MaxWait returns the per-job elapsed ceiling, zero when disabled.
func (c *Config) MaxWait() time.Duration {
	return time.Duration(c.Workflow.MaxWait) * time.Second
}

// StallRetry returns how long a stalled run rests before the daemon retries
// it, zero when automatic retries are disabled.
func (c *Config) StallRetry() time.Duration {
	return time.Duration(c.Workflow.StallRetry) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
