package workflow

import (
	"context"
	"fmt"
	"strings"

	"clipwise/internal/batch"
	"clipwise/internal/config"
	"clipwise/internal/logging"
	"clipwise/internal/services"
)

// Trigger validates a campaign request and persists a pending run for it.
// Invalid requests fail with a services.ErrConfiguration before anything is
// written.
func (m *Manager) Trigger(ctx context.Context, campaign string, batchSize int) (string, error) {
	campaign = config.NormalizeCampaign(campaign)
	if err := validateCampaign(campaign); err != nil {
		return "", err
	}
	sources := append([]string(nil), m.cfg.Campaign.Sources...)
	if batchSize <= 0 {
		return "", services.Wrap(services.ErrConfiguration, "workflow", "trigger",
			fmt.Sprintf("Batch size must be positive, got %d", batchSize), nil)
	}
	if _, err := batch.Allocation(batchSize, sources); err != nil {
		return "", err
	}
	if p := m.currentPipeline(); p == nil || len(p.stages) == 0 {
		return "", services.Wrap(services.ErrConfiguration, "workflow", "trigger", "Workflow stages not configured", nil)
	}

	run, err := m.store.CreateRun(ctx, campaign, batchSize, sources)
	if err != nil {
		return "", services.Wrap(services.ErrTransientIO, "workflow", "create run", "Could not persist run", err)
	}
	logging.WithContext(services.WithRunID(ctx, run.ID), m.logger).Info("run triggered",
		logging.String(logging.FieldEventType, "run_triggered"),
		logging.String("campaign", run.Campaign),
		logging.Int("batch_size", run.BatchSize),
		logging.String("sources", strings.Join(run.Sources, ",")),
	)
	m.setLastRun(run)
	return run.ID, nil
}

// validateCampaign accepts keywords made of letters, digits, spaces, hyphens
// and underscores. The campaign becomes a storage key segment.
func validateCampaign(campaign string) error {
	if campaign == "" {
		return services.Wrap(services.ErrConfiguration, "workflow", "trigger", "Campaign is required", nil)
	}
	for _, r := range campaign {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ', r == '-', r == '_':
		default:
			return services.Wrap(services.ErrConfiguration, "workflow", "trigger",
				fmt.Sprintf("Campaign %q contains unsupported character %q", campaign, r), nil)
		}
	}
	return nil
}
