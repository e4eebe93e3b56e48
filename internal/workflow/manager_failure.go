package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"clipwise/internal/logging"
	"clipwise/internal/services"
	"clipwise/internal/store"
)

func (m *Manager) handleStageFailure(ctx context.Context, stageLogger *slog.Logger, stg pipelineStage, run *store.Run, stageErr error) {
	if errors.Is(stageErr, services.ErrUnavailable) {
		m.stallRun(ctx, stageLogger, stg, run, stageErr)
		return
	}

	message := classifyStageFailure(stg.name, stageErr)
	run.Status = store.RunFailed
	run.ErrorMessage = message
	run.ResumeStatus = ""
	run.LastHeartbeat = nil

	stageLogger.Error("stage failed",
		logging.String("resolved_status", string(store.RunFailed)),
		logging.String("error_message", message),
		logging.String("error_kind", services.Kind(stageErr)),
		logging.Error(stageErr),
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String(logging.FieldErrorHint, failureHint(stageErr)),
	)

	// The stage context may already be cancelled; persist the failure regardless.
	if err := m.store.UpdateRun(context.WithoutCancel(ctx), run); err != nil {
		stageLogger.Error("failed to persist stage failure", logging.Error(err))
	}

	m.setLastRun(run)
	m.notifyRunFailed(ctx, stageLogger, stg.name, run, stageErr)
}

// stallRun parks a run whose stage could not reach a dependent service. Jobs
// and records written so far stay in place; the stage reruns from its start
// status on resume.
func (m *Manager) stallRun(ctx context.Context, stageLogger *slog.Logger, stg pipelineStage, run *store.Run, stageErr error) {
	run.Status = store.RunStalled
	run.ResumeStatus = stg.startStatus
	run.ErrorMessage = classifyStageFailure(stg.name, stageErr)
	run.LastHeartbeat = nil

	logging.WarnWithContext(stageLogger, "stage stalled", "run_stalled",
		logging.String("resolved_status", string(store.RunStalled)),
		logging.String("resume_status", string(stg.startStatus)),
		logging.String("error_kind", services.Kind(stageErr)),
		logging.Error(stageErr),
		logging.String(logging.FieldErrorHint, failureHint(stageErr)),
		logging.String(logging.FieldImpact, "run waits until the service is reachable again"),
	)

	if err := m.store.UpdateRun(context.WithoutCancel(ctx), run); err != nil {
		stageLogger.Error("failed to persist stalled run", logging.Error(err))
	}
	m.setLastRun(run)
}

func classifyStageFailure(stageName string, stageErr error) string {
	if stageErr == nil {
		return fmt.Sprintf("%s failed without error detail", stageName)
	}
	message := strings.TrimSpace(stageErr.Error())
	if message == "" {
		message = fmt.Sprintf("%s failed", stageName)
	}
	return message
}

func failureHint(err error) string {
	switch {
	case errors.Is(err, services.ErrConfiguration):
		return "fix the campaign or source configuration and trigger a new run"
	case errors.Is(err, services.ErrUnavailable):
		return "restore catalog and vision service reachability, then run clipwise resume"
	default:
		return "inspect the run log for the failing operation"
	}
}
