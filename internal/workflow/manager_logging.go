package workflow

import (
	"context"
	"log/slog"

	"clipwise/internal/logging"
	"clipwise/internal/services"
	"clipwise/internal/store"
)

// stageLogger tees the lane logger into the run's own log file. The returned
// func closes the file once the stage is done with it.
func (m *Manager) stageLogger(ctx context.Context, laneLogger *slog.Logger, run *store.Run) (*slog.Logger, func()) {
	base := laneLogger
	if base == nil {
		base = m.logger
	}
	if base == nil {
		base = logging.NewNop()
	}
	release := func() {}

	if run != nil {
		handler, closer, err := m.runLogs.Open(run)
		if err != nil {
			base.Warn("run log unavailable", logging.Error(err))
		} else {
			base = slog.New(logging.TeeHandler(base.Handler(), handler))
			release = func() { closer.Close() }
		}
	}
	return logging.WithContext(ctx, base), release
}

func withStageContext(ctx context.Context, stageName string, run *store.Run, requestID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if run != nil {
		ctx = services.WithRunID(ctx, run.ID)
	}
	if stageName != "" {
		ctx = services.WithStage(ctx, stageName)
	}
	if requestID != "" {
		ctx = services.WithRequestID(ctx, requestID)
	}
	return ctx
}
