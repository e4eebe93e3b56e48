package daemon

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"clipwise/internal/config"
	"clipwise/internal/logging"
	"clipwise/internal/services"
)

// TriggerFunc starts a run for a campaign and returns its execution id.
type TriggerFunc func(ctx context.Context, campaign string, batchSize int) (string, error)

// Scheduler fires a run of the current campaign state on a cron schedule.
type Scheduler struct {
	spec      string
	statePath string
	fallback  config.State
	trigger   TriggerFunc
	logger    *slog.Logger

	mu    sync.Mutex
	cron  *cron.Cron
	entry cron.EntryID
}

// NewScheduler validates spec and prepares a scheduler. It does not start
// firing until Start is called.
func NewScheduler(spec, statePath string, fallback config.State, trigger TriggerFunc, logger *slog.Logger) (*Scheduler, error) {
	if trigger == nil {
		return nil, errors.New("scheduler requires a trigger")
	}
	if _, err := config.ScheduleParser.Parse(spec); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "scheduler", "parse schedule", "Invalid campaign.schedule", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scheduler{
		spec:      spec,
		statePath: statePath,
		fallback:  fallback,
		trigger:   trigger,
		logger:    logging.NewComponentLogger(logger, "scheduler"),
	}, nil
}

// Start begins firing on schedule. Ticks that arrive while a previous
// trigger is still in progress are skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return errors.New("scheduler already started")
	}
	adapter := cronLogger{logger: s.logger}
	c := cron.New(
		cron.WithParser(config.ScheduleParser),
		cron.WithLogger(adapter),
		cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
	)
	entry, err := c.AddFunc(s.spec, func() {
		_, _ = s.fire(ctx)
	})
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "scheduler", "add schedule", "Invalid campaign.schedule", err)
	}
	s.cron = c
	s.entry = entry
	c.Start()
	s.logger.Info("scheduler started",
		logging.String("schedule", s.spec),
		logging.String("next", c.Entry(entry).Next.Format(time.RFC3339)),
		logging.String(logging.FieldEventType, "scheduler_started"),
	)
	return nil
}

// Stop halts the schedule and waits for a running trigger to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
}

// Spec returns the cron expression.
func (s *Scheduler) Spec() string {
	if s == nil {
		return ""
	}
	return s.spec
}

// Next returns the next fire time, or the zero time when not started.
func (s *Scheduler) Next() time.Time {
	if s == nil {
		return time.Time{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return time.Time{}
	}
	return s.cron.Entry(s.entry).Next
}

// fire loads the campaign state and triggers a run of it. A zero batch size
// pauses scheduled runs.
func (s *Scheduler) fire(ctx context.Context) (string, error) {
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	state, err := config.LoadState(s.statePath, s.fallback)
	if err != nil {
		logging.WarnWithContext(s.logger, "campaign state unreadable; scheduled run skipped", "scheduled_trigger_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "fix or remove "+s.statePath),
			logging.String(logging.FieldImpact, "no run for this tick"),
		)
		return "", err
	}
	if state.BatchSize == 0 {
		s.logger.Info("scheduled run skipped",
			logging.String("campaign", state.Campaign),
			logging.String("reason", "batch size is zero"),
			logging.String(logging.FieldEventType, "scheduled_trigger_skipped"),
		)
		return "", nil
	}
	id, err := s.trigger(ctx, state.Campaign, state.BatchSize)
	if err != nil {
		logging.WarnWithContext(s.logger, "scheduled trigger rejected", "scheduled_trigger_failed",
			logging.Error(err),
			logging.String("campaign", state.Campaign),
			logging.Int("batch_size", state.BatchSize),
			logging.String(logging.FieldErrorHint, "check the campaign state with clipwise campaign show"),
		)
		return "", err
	}
	s.logger.Info("scheduled run triggered",
		logging.String(logging.FieldRunID, id),
		logging.String("campaign", state.Campaign),
		logging.Int("batch_size", state.BatchSize),
		logging.String(logging.FieldEventType, "scheduled_trigger"),
	)
	return id, nil
}

type cronLogger struct {
	logger *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.logger.Debug("cron "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	args := append([]any{logging.Error(err)}, keysAndValues...)
	c.logger.Error("cron "+msg, args...)
}
