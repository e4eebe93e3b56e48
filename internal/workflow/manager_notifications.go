package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"clipwise/internal/logging"
	"clipwise/internal/notifications"
	"clipwise/internal/store"
)

func (m *Manager) notifyRunStarted(ctx context.Context, run *store.Run) {
	m.publish(ctx, m.logger, notifications.EventRunStarted, notifications.Payload{
		"campaign":  run.Campaign,
		"batchSize": run.BatchSize,
		"runId":     run.ID,
	})
}

func (m *Manager) notifyRunCompleted(ctx context.Context, logger *slog.Logger, run *store.Run) {
	if m.notifier == nil {
		return
	}
	counts, err := m.store.CountRun(ctx, run.ID)
	if err != nil {
		logging.WarnWithContext(logger, "run counts unavailable for completion notification; notification skipped", "run_counts_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check database access"),
			logging.String(logging.FieldImpact, "completion notification will not be sent"),
		)
		return
	}
	duration := time.Duration(0)
	if !run.CreatedAt.IsZero() {
		duration = time.Since(run.CreatedAt)
	}
	m.publish(ctx, logger, notifications.EventRunCompleted, notifications.Payload{
		"campaign":  run.Campaign,
		"runId":     run.ID,
		"processed": counts.Processed,
		"skipped":   counts.Skipped,
		"duration":  duration,
	})
}

func (m *Manager) notifyRunFailed(ctx context.Context, logger *slog.Logger, stageName string, run *store.Run, stageErr error) {
	if stageErr == nil {
		return
	}
	m.publish(ctx, logger, notifications.EventRunFailed, notifications.Payload{
		"campaign": run.Campaign,
		"runId":    run.ID,
		"stage":    stageName,
		"error":    run.ErrorMessage,
	})
}

func (m *Manager) publish(ctx context.Context, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Publish(ctx, event, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("shutting down, notification not sent", logging.String("event", string(event)))
			return
		}
		logger.Debug("notification failed", logging.String("event", string(event)), logging.Error(err))
	}
}
