package poller

import (
	"context"
	"log/slog"

	"clipwise/internal/config"
	"clipwise/internal/logging"
	"clipwise/internal/stage"
	"clipwise/internal/store"
	"clipwise/internal/vision"
)

const stageName = "poll"

// Stage adapts the Controller to the workflow's stage handler contract.
type Stage struct {
	controller *Controller
	service    vision.Service
	logger     *slog.Logger
}

// NewStage constructs the poll handler.
func NewStage(cfg *config.Config, st *store.Store, service vision.Service, logger *slog.Logger, opts ...Option) *Stage {
	return &Stage{
		controller: NewController(cfg, st, service, logger, opts...),
		service:    service,
		logger:     logging.NewComponentLogger(logger, stageName),
	}
}

// Controller exposes the wait loop.
func (s *Stage) Controller() *Controller { return s.controller }

func (s *Stage) Prepare(_ context.Context, run *store.Run) error {
	return stage.RequireRun(stageName, run.ID)
}

func (s *Stage) Execute(ctx context.Context, run *store.Run) error {
	result, err := s.controller.Wait(ctx, run.ID)
	if err != nil {
		return err
	}
	logging.WithContext(ctx, s.logger).Info("poll stage summary",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Int("rounds", result.Rounds),
		logging.Int("succeeded", result.Succeeded),
		logging.Int("failed", result.Failed),
		logging.Int("timed_out", result.TimedOut),
	)
	return nil
}

func (s *Stage) HealthCheck(context.Context) stage.Health {
	if s.service == nil {
		return stage.Unhealthy(stageName, "vision service not configured")
	}
	return stage.Healthy(stageName)
}
