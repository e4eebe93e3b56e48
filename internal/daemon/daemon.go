package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"clipwise/internal/config"
	"clipwise/internal/logging"
	"clipwise/internal/services"
	"clipwise/internal/storage"
	"clipwise/internal/store"
	"clipwise/internal/workflow"
)

// Daemon coordinates the background processing services and enforces single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *store.Store
	objects   storage.ObjectStore
	workflow  *workflow.Manager
	scheduler *Scheduler
	api       *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Workflow     workflow.StatusSummary
	DatabasePath string
	LockFilePath string
	Schedule     string
	NextTrigger  time.Time
	Campaign     config.State
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, st *store.Store, objects storage.ObjectStore, logger *slog.Logger, wf *workflow.Manager) (*Daemon, error) {
	if cfg == nil || st == nil || objects == nil || logger == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, object store, logger, and workflow manager")
	}
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    st,
		objects:  objects,
		workflow: wf,
		lockPath: cfg.LockPath(),
	}
	if cfg.Campaign.Schedule != "" {
		scheduler, err := NewScheduler(cfg.Campaign.Schedule, cfg.StatePath(), cfg.DefaultState(), wf.Trigger, logger)
		if err != nil {
			return nil, err
		}
		d.scheduler = scheduler
	}
	api, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// Start acquires the workflow lock, returns interrupted runs to their stage
// boundary, and launches the workflow lane, scheduler and API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	lock, err := AcquireLock(d.lockPath)
	if err != nil {
		return err
	}
	d.lock = lock

	if reset, err := d.store.ResetStuckRuns(ctx); err != nil {
		logging.WarnWithContext(d.logger, "failed to reset interrupted runs", "runs_reset_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check database access"),
			logging.String(logging.FieldImpact, "interrupted runs wait for heartbeat reclaim"),
		)
	} else if reset > 0 {
		d.logger.Info("interrupted runs reset",
			logging.Int64("count", reset),
			logging.String(logging.FieldEventType, "runs_reset"),
		)
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.workflow.Start(d.ctx); err != nil {
		d.abortStart()
		return fmt.Errorf("start workflow: %w", err)
	}
	if d.scheduler != nil {
		if err := d.scheduler.Start(d.ctx); err != nil {
			d.workflow.Stop()
			d.abortStart()
			return fmt.Errorf("start scheduler: %w", err)
		}
	}
	if err := d.api.start(d.ctx); err != nil {
		if d.scheduler != nil {
			d.scheduler.Stop()
		}
		d.workflow.Stop()
		d.abortStart()
		return err
	}

	d.running.Store(true)
	d.logger.Info("clipwise daemon started",
		logging.String("lock", d.lockPath),
		logging.String("schedule", d.cfg.Campaign.Schedule),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

func (d *Daemon) abortStart() {
	if d.cancel != nil {
		d.cancel()
	}
	d.ctx = nil
	d.cancel = nil
	if d.lock != nil {
		_ = d.lock.Unlock()
		d.lock = nil
	}
}

// Stop stops background processing and releases the workflow lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.api.stop()
	if d.scheduler != nil {
		d.scheduler.Stop()
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	if d.lock != nil {
		if err := d.lock.Unlock(); err != nil {
			d.logger.Warn("failed to release daemon lock", logging.Error(err))
		}
		d.lock = nil
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("clipwise daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon. The store is owned by the
// caller.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	state, err := d.CampaignState()
	if err != nil {
		d.logger.Warn("campaign state unreadable", logging.Error(err))
		state = d.cfg.DefaultState()
	}
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workflow:     d.workflow.Summary(ctx),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
		Campaign:     state,
	}
	if d.scheduler != nil {
		status.Schedule = d.scheduler.Spec()
		status.NextTrigger = d.scheduler.Next()
	}
	return status
}

// Trigger validates and persists a new run; the workflow lane picks it up.
func (d *Daemon) Trigger(ctx context.Context, campaign string, batchSize int) (string, error) {
	return d.workflow.Trigger(ctx, campaign, batchSize)
}

// RunReport returns a run with per-asset progress.
func (d *Daemon) RunReport(ctx context.Context, id string) (*workflow.RunReport, error) {
	return d.workflow.Status(ctx, id)
}

// CampaignState returns the campaign consumed by the next scheduled run.
func (d *Daemon) CampaignState() (config.State, error) {
	return config.LoadState(d.cfg.StatePath(), d.cfg.DefaultState())
}

// SetCampaignState replaces the persisted campaign state.
func (d *Daemon) SetCampaignState(state config.State) (config.State, error) {
	state.Campaign = config.NormalizeCampaign(state.Campaign)
	if state.Campaign == "" {
		return config.State{}, services.Wrap(services.ErrValidation, "daemon", "set campaign", "Campaign is required", nil)
	}
	if state.BatchSize < 0 {
		return config.State{}, services.Wrap(services.ErrValidation, "daemon", "set campaign",
			fmt.Sprintf("Batch size must be >= 0, got %d", state.BatchSize), nil)
	}
	state.UpdatedAt = time.Now().UTC()
	if err := config.SaveState(d.cfg.StatePath(), state); err != nil {
		return config.State{}, err
	}
	d.logger.Info("campaign state updated",
		logging.String("campaign", state.Campaign),
		logging.Int("batch_size", state.BatchSize),
		logging.String(logging.FieldEventType, "campaign_updated"),
	)
	return state, nil
}

// ListObjects lists stored objects under prefix.
func (d *Daemon) ListObjects(ctx context.Context, prefix string) ([]storage.Object, error) {
	return d.objects.List(ctx, prefix)
}
