package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	"clipwise/internal/services"
)

// ScheduleParser accepts standard 5-field cron expressions (minute, hour, dom, month, dow).
var ScheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

var knownSources = map[string]struct{}{
	"wikimedia": {},
	"archive":   {},
}

// Validate ensures the configuration is usable. Failures carry the
// services.ErrConfiguration marker.
func (c *Config) Validate() error {
	for _, check := range []func() error{
		c.validateCampaign,
		c.validateCatalog,
		c.validateStorage,
		c.validateVision,
		c.validateWorkflow,
		c.validateFinalize,
	} {
		if err := check(); err != nil {
			return fmt.Errorf("%w: %w", services.ErrConfiguration, err)
		}
	}
	return nil
}

func (c *Config) validateCampaign() error {
	for _, source := range c.Campaign.Sources {
		if _, ok := knownSources[source]; !ok {
			return fmt.Errorf("campaign.sources: unknown source %q", source)
		}
	}
	if c.Campaign.BatchSize > 0 && len(c.Campaign.Sources) == 0 {
		return errors.New("campaign.sources must list at least one source when campaign.batch_size is positive")
	}
	if c.Campaign.Schedule != "" {
		if _, err := ScheduleParser.Parse(c.Campaign.Schedule); err != nil {
			return fmt.Errorf("campaign.schedule: %w", err)
		}
	}
	return nil
}

func (c *Config) validateCatalog() error {
	if c.Catalog.RequestsPerSecond < 0 {
		return errors.New("catalog.requests_per_second must be >= 0")
	}
	return ensurePositiveMap(map[string]int{
		"catalog.request_timeout": c.Catalog.RequestTimeout,
		"ingest.download_timeout": c.Ingest.DownloadTimeout,
	})
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case StorageFilesystem:
		if strings.TrimSpace(c.Storage.Root) == "" {
			return errors.New("storage.root must be set for the filesystem backend")
		}
	case StorageS3:
		if c.Storage.Bucket == "" {
			return errors.New("storage.bucket must be set for the s3 backend (or set CLIPWISE_BUCKET)")
		}
	default:
		return fmt.Errorf("storage.backend: unsupported value %q", c.Storage.Backend)
	}
	return nil
}

func (c *Config) validateVision() error {
	switch c.Vision.Backend {
	case VisionRekognition:
		if c.Storage.Backend != StorageS3 {
			return errors.New("vision.backend rekognition requires storage.backend s3")
		}
	case VisionHTTP:
		if c.Vision.BaseURL == "" {
			return errors.New("vision.base_url must be set for the http backend (or set CLIPWISE_VISION_URL)")
		}
	default:
		return fmt.Errorf("vision.backend: unsupported value %q", c.Vision.Backend)
	}
	if c.Vision.MinConfidence < 0 || c.Vision.MinConfidence > 100 {
		return errors.New("vision.min_confidence must be between 0 and 100")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.poll_interval":        c.Workflow.PollInterval,
		"workflow.max_poll_rounds":      c.Workflow.MaxPollRounds,
		"workflow.queue_poll_interval":  c.Workflow.QueuePollInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	}); err != nil {
		return err
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		return errors.New("workflow.heartbeat_timeout must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	if c.Workflow.StallRetry < 0 {
		return errors.New("workflow.stall_retry must not be negative")
	}
	return nil
}

func (c *Config) validateFinalize() error {
	if c.Finalize.ModerationFloor < 0 || c.Finalize.ModerationFloor > 100 {
		return errors.New("finalize.moderation_floor must be between 0 and 100")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
