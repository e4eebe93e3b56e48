package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"clipwise/internal/config"
	"clipwise/internal/logging"
	"clipwise/internal/services"
	"clipwise/internal/store"
	"clipwise/internal/vision"
)

// JobStore persists label jobs.
type JobStore interface {
	GetLabelJob(ctx context.Context, assetID string) (*store.LabelJob, error)
	CreateLabelJob(ctx context.Context, job *store.LabelJob) error
}

// Options tune StartJob retries.
type Options struct {
	MaxAttempts    int
	InitialBackoff time.Duration
}

// Dispatcher starts label jobs for ingested assets.
type Dispatcher struct {
	service vision.Service
	jobs    JobStore
	storage config.Storage
	opts    Options
	logger  *slog.Logger
	now     func() time.Time
}

// NewDispatcher builds a Dispatcher. storageCfg locates raw objects for the
// service.
func NewDispatcher(service vision.Service, jobs JobStore, storageCfg config.Storage, opts Options, logger *slog.Logger) *Dispatcher {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}
	return &Dispatcher{
		service: service,
		jobs:    jobs,
		storage: storageCfg,
		opts:    opts,
		logger:  logging.NewComponentLogger(logger, "dispatch"),
		now:     time.Now,
	}
}

// Dispatch starts a job for rec and persists it as STARTED. An existing job
// that is not FAILED is returned unchanged. Rejections are returned as
// ErrDispatch and exhausted transient failures as ErrUnavailable; neither is
// persisted here (see RecordFailure).
func (d *Dispatcher) Dispatch(ctx context.Context, rec *store.IngestionRecord) (*store.LabelJob, error) {
	if rec == nil || rec.AssetID == "" {
		return nil, services.Wrap(services.ErrValidation, "dispatch", "validate", "Ingestion record required", nil)
	}
	ctx = services.WithAssetID(ctx, rec.AssetID)
	existing, err := d.jobs.GetLabelJob(ctx, rec.AssetID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransientIO, "dispatch", "load job", "Could not read label job", err)
	}
	if existing != nil && existing.Status != store.JobFailed {
		return existing, nil
	}

	handle, err := d.start(ctx, vision.RefFor(d.storage, rec.RawPath, rec.ContentType))
	if err != nil {
		return nil, err
	}
	job := &store.LabelJob{
		AssetID:   rec.AssetID,
		RunID:     rec.RunID,
		Handle:    handle,
		Status:    store.JobStarted,
		StartedAt: d.startedAt(rec),
	}
	if err := d.jobs.CreateLabelJob(ctx, job); err != nil {
		if errors.Is(err, store.ErrJobExists) {
			// A concurrent dispatcher recorded a job first.
			return d.jobs.GetLabelJob(ctx, rec.AssetID)
		}
		return nil, services.Wrap(services.ErrTransientIO, "dispatch", "record job", "Label job write failed", err)
	}
	logging.WithContext(ctx, d.logger).Info("label job started",
		logging.String(logging.FieldEventType, "label_job_started"),
		logging.String("handle", handle),
		logging.String("service", d.service.Name()),
	)
	return job, nil
}

// RecordFailure persists a FAILED job carrying cause as its message so the
// asset is finalized as skipped.
func (d *Dispatcher) RecordFailure(ctx context.Context, rec *store.IngestionRecord, cause error) (*store.LabelJob, error) {
	job := &store.LabelJob{
		AssetID:       rec.AssetID,
		RunID:         rec.RunID,
		Status:        store.JobFailed,
		StatusMessage: cause.Error(),
		StartedAt:     d.startedAt(rec),
	}
	if err := d.jobs.CreateLabelJob(ctx, job); err != nil {
		return nil, fmt.Errorf("record dispatch failure: %w", err)
	}
	return job, nil
}

func (d *Dispatcher) startedAt(rec *store.IngestionRecord) time.Time {
	now := d.now().UTC()
	if now.Before(rec.IngestedAt) {
		return rec.IngestedAt
	}
	return now
}

func (d *Dispatcher) start(ctx context.Context, ref vision.ObjectRef) (string, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = d.opts.InitialBackoff
	policy.MaxElapsedTime = 0
	retry := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(d.opts.MaxAttempts-1)), ctx)

	var handle string
	err := backoff.Retry(func() error {
		h, err := d.service.StartJob(ctx, ref)
		if err != nil {
			if !services.IsRetryable(err) || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			d.logger.Debug("start job attempt failed", logging.String("key", ref.Key), logging.Error(err))
			return err
		}
		handle = h
		return nil
	}, retry)
	switch {
	case err == nil:
		return handle, nil
	case ctx.Err() != nil:
		return "", ctx.Err()
	case errors.Is(err, services.ErrDispatch):
		return "", err
	case services.IsRetryable(err):
		return "", services.Wrap(services.ErrUnavailable, "dispatch", "start job", "Vision service unavailable", err)
	default:
		return "", services.Wrap(services.ErrDispatch, "dispatch", "start job", "Vision service rejected the job", err)
	}
}
