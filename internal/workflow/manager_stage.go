package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"clipwise/internal/logging"
	"clipwise/internal/stage"
	"clipwise/internal/store"
)

func (m *Manager) processRun(ctx context.Context, p *pipeline, laneLogger *slog.Logger, run *store.Run) error {
	stg, ok := p.stageForStatus(run.Status)
	if !ok {
		laneLogger.Warn("no stage configured for status",
			logging.String(logging.FieldRunID, run.ID),
			logging.String("status", string(run.Status)),
		)
		err := fmt.Errorf("no stage configured for status %s", run.Status)
		m.setLastError(err)
		return err
	}

	stageCtx := withStageContext(ctx, stg.name, run, uuid.NewString())
	stageLogger, closeLog := m.stageLogger(stageCtx, laneLogger, run)
	defer closeLog()

	first := run.Status == store.RunPending
	if err := m.transitionToProcessing(stageCtx, stg.processingStatus, run); err != nil {
		stageLogger.Error("failed to transition run to processing", logging.Error(err))
		m.setLastError(err)
		return err
	}
	if first {
		m.notifyRunStarted(stageCtx, run)
	}

	return m.executeStage(stageCtx, stageLogger, stg, run)
}

func (m *Manager) executeStage(ctx context.Context, stageLogger *slog.Logger, stg pipelineStage, run *store.Run) error {
	stageStart := time.Now()
	stageLogger.Info(
		"stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("processing_status", string(stg.processingStatus)),
		logging.String("campaign", run.Campaign),
	)

	handler := stg.handler
	if err := handler.Prepare(ctx, run); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		m.handleStageFailure(ctx, stageLogger, stg, run, err)
		m.setLastError(err)
		return err
	}

	execErr := m.executeWithHeartbeat(ctx, handler, run)
	if execErr != nil {
		if errors.Is(execErr, context.Canceled) {
			stageLogger.Debug("stage interrupted by shutdown")
			return execErr
		}
		m.handleStageFailure(ctx, stageLogger, stg, run, execErr)
		m.setLastError(execErr)
		return execErr
	}

	// Stages may advance PollRound; reload so the done transition does not
	// overwrite it with the stale in-memory value.
	if fresh, err := m.store.GetRun(ctx, run.ID); err == nil && fresh != nil {
		run.PollRound = fresh.PollRound
	}
	run.Status = stg.doneStatus
	run.LastHeartbeat = nil
	if err := m.store.UpdateRun(ctx, run); err != nil {
		wrapped := fmt.Errorf("persist stage result: %w", err)
		stageLogger.Error("failed to persist stage result", logging.Error(wrapped))
		m.setLastError(wrapped)
		return wrapped
	}
	stageLogger.Info(
		"stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("next_status", string(run.Status)),
		logging.Duration("stage_duration", time.Since(stageStart)),
	)
	m.setLastRun(run)
	if run.Status == store.RunCompleted {
		m.notifyRunCompleted(ctx, stageLogger, run)
	}
	return nil
}

func (m *Manager) executeWithHeartbeat(ctx context.Context, handler stage.Handler, run *store.Run) error {
	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, run.ID)

	execErr := handler.Execute(ctx, run)
	hbCancel()
	hbWG.Wait()
	return execErr
}

func (m *Manager) transitionToProcessing(ctx context.Context, processing store.RunStatus, run *store.Run) error {
	if processing == "" {
		return errors.New("processing status must not be empty")
	}
	now := time.Now().UTC()
	run.Status = processing
	run.ErrorMessage = ""
	run.ResumeStatus = ""
	run.LastHeartbeat = &now
	if err := m.store.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("persist processing transition: %w", err)
	}
	m.setLastRun(run)
	return nil
}
