package testsupport

import (
	"path/filepath"
	"testing"

	"clipwise/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Poll timing is shortened so workflow tests finish quickly.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Storage.Backend = config.StorageFilesystem
	cfgVal.Storage.Root = filepath.Join(base, "objects")
	cfgVal.Vision.Backend = config.VisionHTTP
	cfgVal.Vision.BaseURL = "http://127.0.0.1:0"
	cfgVal.Ingest.InitialBackoffMS = 1
	cfgVal.Vision.InitialBackoffMS = 1
	cfgVal.Notifications.NtfyTopic = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithSources overrides the campaign source order.
func WithSources(sources ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Campaign.Sources = append([]string(nil), sources...)
	}
}

// WithPolling sets the poll bounds used by the wait loop.
func WithPolling(maxRounds, concurrency int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.MaxPollRounds = maxRounds
		b.cfg.Workflow.PollConcurrency = concurrency
	}
}

// WithNtfyTopic points notifications at the given topic URL.
func WithNtfyTopic(topic string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = topic
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
