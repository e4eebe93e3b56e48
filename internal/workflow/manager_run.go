package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"clipwise/internal/logging"
	"clipwise/internal/services"
	"clipwise/internal/store"
)

// Start begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	p := m.pipeline
	if p == nil || len(p.stages) == 0 {
		m.mu.Unlock()
		return errors.New("workflow stages not configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	m.mu.Unlock()

	go m.runLane(runCtx, p)
	return nil
}

// Stop terminates background processing and waits for completion.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// Running reports whether the background lane is active.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// Execute drives a run through every remaining stage and returns once it
// completes, fails or stalls. A run left in a processing status by an
// interrupted process restarts at the beginning of that stage, and a stalled
// run restarts at the stage that lost its service.
func (m *Manager) Execute(ctx context.Context, id string) error {
	p := m.currentPipeline()
	if p == nil || len(p.stages) == 0 {
		return errors.New("workflow stages not configured")
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		run, err := m.store.GetRun(ctx, id)
		if err != nil {
			return services.Wrap(services.ErrTransientIO, "workflow", "load run", "Could not read run", err)
		}
		if run == nil {
			return services.Wrap(services.ErrNotFound, "workflow", "load run", fmt.Sprintf("Run %s not found", id), nil)
		}
		if start, ok := p.rollback(run.Status); ok {
			m.logger.Info("resuming interrupted stage",
				logging.String(logging.FieldRunID, run.ID),
				logging.String("from_status", string(run.Status)),
				logging.String("to_status", string(start)),
				logging.String(logging.FieldEventType, "run_resumed"),
			)
			run.Status = start
			run.LastHeartbeat = nil
		}
		if run.Status == store.RunStalled {
			if run.ResumeStatus == "" {
				return fmt.Errorf("run %s stalled without a resume point: %s", run.ID, run.ErrorMessage)
			}
			m.logger.Info("retrying stalled run",
				logging.String(logging.FieldRunID, run.ID),
				logging.String("to_status", string(run.ResumeStatus)),
				logging.String("stall_reason", run.ErrorMessage),
				logging.String(logging.FieldEventType, "run_resumed"),
			)
			run.Status = run.ResumeStatus
			run.ResumeStatus = ""
		}
		switch run.Status {
		case store.RunCompleted:
			return nil
		case store.RunFailed:
			return fmt.Errorf("run %s failed: %s", run.ID, run.ErrorMessage)
		}
		if err := m.processRun(ctx, p, m.logger, run); err != nil {
			return err
		}
	}
}

// Resume executes every run that has not reached a terminal status, oldest
// first. Failures of one run do not stop the others.
func (m *Manager) Resume(ctx context.Context) ([]string, error) {
	runs, err := m.store.ListRuns(ctx, 0, unfinishedStatuses()...)
	if err != nil {
		return nil, services.Wrap(services.ErrTransientIO, "workflow", "list runs", "Could not read unfinished runs", err)
	}
	var (
		ids  []string
		errs []error
	)
	for i := len(runs) - 1; i >= 0; i-- {
		run := runs[i]
		ids = append(ids, run.ID)
		if err := m.Execute(ctx, run.ID); err != nil {
			if errors.Is(err, context.Canceled) {
				return ids, err
			}
			errs = append(errs, fmt.Errorf("run %s: %w", run.ID, err))
		}
	}
	return ids, errors.Join(errs...)
}

func unfinishedStatuses() []store.RunStatus {
	statuses := make([]store.RunStatus, 0)
	for _, status := range store.AllRunStatuses() {
		if !status.IsTerminal() {
			statuses = append(statuses, status)
		}
	}
	return statuses
}

func (m *Manager) runLane(ctx context.Context, p *pipeline) {
	defer m.wg.Done()
	logger := m.logger.With(logging.String("lane", "runs"))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := m.heartbeat.ReclaimStaleRuns(ctx, logger); err != nil {
			logger.Warn("reclaim stale runs failed; stuck runs may remain",
				logging.Error(err),
				logging.String(logging.FieldEventType, "heartbeat_reclaim_failed"),
				logging.String(logging.FieldErrorHint, "check database access"),
			)
		}
		m.rearmStalledRuns(ctx, logger)

		run, err := m.store.NextRunForStatuses(ctx, p.startStatuses...)
		if err != nil {
			m.handleNextRunError(ctx, logger, err)
			continue
		}
		if run == nil {
			m.waitForRunOrShutdown(ctx)
			continue
		}

		if err := m.processRun(ctx, p, logger, run); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
		}
	}
}

// rearmStalledRuns hands stalled runs back to the lane once they have rested
// for workflow.stall_retry.
func (m *Manager) rearmStalledRuns(ctx context.Context, logger *slog.Logger) {
	wait := m.cfg.StallRetry()
	if wait <= 0 {
		return
	}
	n, err := m.store.RearmStalledRuns(ctx, time.Now().Add(-wait))
	if err != nil {
		logger.Warn("rearm stalled runs failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "stall_rearm_failed"),
			logging.String(logging.FieldErrorHint, "check database access"),
		)
		return
	}
	if n > 0 {
		logger.Info("rearmed stalled runs",
			logging.Int64("count", n),
			logging.String(logging.FieldEventType, "runs_rearmed"),
		)
	}
}

func (m *Manager) handleNextRunError(ctx context.Context, logger *slog.Logger, err error) {
	m.setLastError(err)
	logger.Error("failed to fetch next run",
		logging.Error(err),
		logging.String(logging.FieldEventType, "run_fetch_failed"),
		logging.String(logging.FieldErrorHint, "check database access"),
	)
	select {
	case <-ctx.Done():
	case <-time.After(time.Duration(m.cfg.Workflow.ErrorRetryInterval) * time.Second):
	}
}

func (m *Manager) waitForRunOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(m.pollInterval):
	}
}
