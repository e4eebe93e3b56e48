package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"clipwise/internal/config"
	"clipwise/internal/logging"
	"clipwise/internal/services"
	"clipwise/internal/stage"
	"clipwise/internal/store"
	"clipwise/internal/vision"
)

// JobStore is the persistence the wait loop needs.
type JobStore interface {
	GetRun(ctx context.Context, id string) (*store.Run, error)
	SetPollRound(ctx context.Context, id string, round int) error
	LabelJobsForRun(ctx context.Context, runID string, statuses ...store.JobStatus) ([]*store.LabelJob, error)
	UpdateLabelJob(ctx context.Context, job *store.LabelJob) (bool, error)
	TimeOutLabelJobs(ctx context.Context, runID, message string) (int64, error)
}

// Result summarizes a finished wait.
type Result struct {
	Rounds    int
	Succeeded int
	Failed    int
	TimedOut  int
}

// Controller drives the poll loop.
type Controller struct {
	service           vision.Service
	store             JobStore
	interval          time.Duration
	maxRounds         int
	concurrency       int
	maxWait           time.Duration
	unavailableRounds int
	logger            *slog.Logger
	now               func() time.Time
}

// Option customises the Controller.
type Option func(*Controller)

// WithInterval overrides the wait between rounds (primarily for tests).
func WithInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithMaxWait overrides the per-job elapsed ceiling.
func WithMaxWait(d time.Duration) Option {
	return func(c *Controller) {
		c.maxWait = d
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// NewController builds a Controller from the workflow settings in cfg.
func NewController(cfg *config.Config, st JobStore, service vision.Service, logger *slog.Logger, opts ...Option) *Controller {
	c := &Controller{
		service:           service,
		store:             st,
		interval:          cfg.PollInterval(),
		maxRounds:         cfg.Workflow.MaxPollRounds,
		concurrency:       stage.Limit(cfg.Workflow.PollConcurrency),
		maxWait:           cfg.MaxWait(),
		unavailableRounds: cfg.Workflow.UnavailableRounds,
		logger:            logging.NewComponentLogger(logger, "poller"),
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.unavailableRounds <= 0 {
		c.unavailableRounds = 1
	}
	return c
}

// Wait polls runID's non-terminal jobs until none remain or the round budget
// is spent, at which point the remainder is marked TIMED_OUT.
func (c *Controller) Wait(ctx context.Context, runID string) (Result, error) {
	ctx = services.WithRunID(ctx, runID)
	logger := logging.WithContext(ctx, c.logger)
	run, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return Result{}, services.Wrap(services.ErrTransientIO, "poll", "load run", "Could not read run", err)
	}
	if run == nil {
		return Result{}, services.Wrap(services.ErrNotFound, "poll", "load run", "Unknown execution "+runID, nil)
	}

	round := run.PollRound
	unavailable := 0
	for {
		pending, err := c.store.LabelJobsForRun(ctx, runID, store.JobStarted, store.JobInProgress)
		if err != nil {
			return Result{}, services.Wrap(services.ErrTransientIO, "poll", "load jobs", "Could not read label jobs", err)
		}
		if len(pending) == 0 {
			break
		}
		if round >= c.maxRounds {
			n, err := c.store.TimeOutLabelJobs(ctx, runID, fmt.Sprintf("no terminal status after %d poll rounds", round))
			if err != nil {
				return Result{}, services.Wrap(services.ErrTransientIO, "poll", "time out jobs", "Could not mark jobs timed out", err)
			}
			logging.WarnWithContext(logger, "poll rounds exhausted", "poll_timeout",
				logging.Int("rounds", round),
				logging.Int64("timed_out", n),
				logging.String(logging.FieldImpact, "remaining assets are finalized as TIMED_OUT"),
			)
			break
		}

		if err := c.sleep(ctx); err != nil {
			return Result{}, err
		}
		round++
		if err := c.store.SetPollRound(ctx, runID, round); err != nil {
			return Result{}, services.Wrap(services.ErrTransientIO, "poll", "persist round", "Could not persist poll round", err)
		}

		failed := c.checkRound(ctx, pending)
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		logger.Debug("poll round complete",
			logging.Int("round", round),
			logging.Int("checked", len(pending)),
			logging.Int("errors", failed),
		)
		if failed == len(pending) {
			unavailable++
			if unavailable >= c.unavailableRounds {
				return Result{}, services.Wrap(services.ErrUnavailable, "poll", "check status",
					fmt.Sprintf("Every status check failed for %d consecutive rounds", unavailable), nil)
			}
			continue
		}
		unavailable = 0
	}
	return c.tally(ctx, runID, round)
}

func (c *Controller) sleep(ctx context.Context) error {
	timer := time.NewTimer(c.interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// checkRound queries every job once and returns how many checks errored.
func (c *Controller) checkRound(ctx context.Context, jobs []*store.LabelJob) int {
	var (
		mu     sync.Mutex
		failed int
	)
	var group errgroup.Group
	group.SetLimit(c.concurrency)
	for _, job := range jobs {
		group.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if err := c.check(ctx, job); err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = group.Wait()
	return failed
}

func (c *Controller) check(ctx context.Context, job *store.LabelJob) error {
	ctx = services.WithAssetID(ctx, job.AssetID)
	logger := logging.WithContext(ctx, c.logger)
	status, err := c.service.GetStatus(ctx, job.Handle)
	now := c.now().UTC()
	job.Attempts++
	job.LastPolledAt = &now
	if err != nil && !services.IsRetryable(err) {
		// The service rejected the handle itself; polling again cannot succeed.
		job.Status = store.JobFailed
		job.StatusMessage = err.Error()
		if _, uerr := c.store.UpdateLabelJob(ctx, job); uerr != nil {
			logger.Error("persist status check", logging.Error(uerr))
			return uerr
		}
		logging.WarnWithContext(logger, "label job rejected", "label_job_finished",
			logging.String("status", string(job.Status)),
			logging.Int("attempts", job.Attempts),
			logging.Error(err),
			logging.String(logging.FieldImpact, "asset is finalized as FAILED"),
		)
		return nil
	}
	if err != nil {
		logger.Debug("status check failed", logging.Int("attempt", job.Attempts), logging.Error(err))
		if _, uerr := c.store.UpdateLabelJob(ctx, job); uerr != nil {
			logger.Error("persist status check", logging.Error(uerr))
		}
		return err
	}

	switch status.State {
	case vision.StateCompleted:
		job.Status = store.JobSucceeded
	case vision.StateFailed:
		job.Status = store.JobFailed
	default:
		job.Status = store.JobInProgress
	}
	job.StatusMessage = status.Message
	if !job.Status.IsTerminal() && c.maxWait > 0 && now.Sub(job.StartedAt) >= c.maxWait {
		job.Status = store.JobTimedOut
		job.StatusMessage = fmt.Sprintf("no terminal status within %s", c.maxWait)
	}
	if _, err := c.store.UpdateLabelJob(ctx, job); err != nil {
		logger.Error("persist status check", logging.Error(err))
		return err
	}
	if job.Status.IsTerminal() {
		logger.Info("label job finished",
			logging.String(logging.FieldEventType, "label_job_finished"),
			logging.String("status", string(job.Status)),
			logging.Int("attempts", job.Attempts),
		)
	}
	return nil
}

func (c *Controller) tally(ctx context.Context, runID string, rounds int) (Result, error) {
	jobs, err := c.store.LabelJobsForRun(ctx, runID)
	if err != nil {
		return Result{}, services.Wrap(services.ErrTransientIO, "poll", "load jobs", "Could not read label jobs", err)
	}
	result := Result{Rounds: rounds}
	for _, job := range jobs {
		switch job.Status {
		case store.JobSucceeded:
			result.Succeeded++
		case store.JobFailed:
			result.Failed++
		case store.JobTimedOut:
			result.TimedOut++
		}
	}
	return result, nil
}
