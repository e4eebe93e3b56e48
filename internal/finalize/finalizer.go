package finalize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"clipwise/internal/logging"
	"clipwise/internal/services"
	"clipwise/internal/storage"
	"clipwise/internal/store"
	"clipwise/internal/vision"
)

// ResultStore persists finalization outcomes.
type ResultStore interface {
	SaveSummary(ctx context.Context, summary *store.ProcessedSummary) (bool, error)
	SaveSkip(ctx context.Context, skip *store.FinalizationSkip) (bool, error)
}

// Outcome is the result of finalizing one asset: exactly one of Summary and
// Skip is set.
type Outcome struct {
	Record  *store.IngestionRecord
	Summary *store.ProcessedSummary
	Skip    *store.FinalizationSkip
}

// AssetID returns the asset the outcome describes.
func (o Outcome) AssetID() string {
	if o.Record != nil {
		return o.Record.AssetID
	}
	if o.Summary != nil {
		return o.Summary.AssetID
	}
	if o.Skip != nil {
		return o.Skip.AssetID
	}
	return ""
}

// Options tune result retrieval.
type Options struct {
	ModerationFloor float64
	MaxAttempts     int
	InitialBackoff  time.Duration
}

// Finalizer normalizes and records one terminal job at a time.
type Finalizer struct {
	service vision.Service
	objects storage.ObjectStore
	results ResultStore
	opts    Options
	logger  *slog.Logger
}

// NewFinalizer builds a Finalizer.
func NewFinalizer(service vision.Service, objects storage.ObjectStore, results ResultStore, opts Options, logger *slog.Logger) *Finalizer {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}
	return &Finalizer{
		service: service,
		objects: objects,
		results: results,
		opts:    opts,
		logger:  logging.NewComponentLogger(logger, "finalize"),
	}
}

// Finalize records a summary for a SUCCEEDED job or a skip for a FAILED or
// TIMED_OUT one. Retrieval and write failures become FINALIZATION_FAILED
// skips; only store errors are returned.
func (f *Finalizer) Finalize(ctx context.Context, job *store.LabelJob, rec *store.IngestionRecord) (Outcome, error) {
	if job == nil || rec == nil {
		return Outcome{}, services.Wrap(services.ErrValidation, "finalize", "validate", "Job and ingestion record required", nil)
	}
	ctx = services.WithAssetID(ctx, rec.AssetID)
	switch job.Status {
	case store.JobSucceeded:
	case store.JobFailed:
		return f.skip(ctx, rec, store.SkipFailed, job.StatusMessage)
	case store.JobTimedOut:
		return f.skip(ctx, rec, store.SkipTimedOut, job.StatusMessage)
	default:
		return Outcome{}, services.Wrap(services.ErrValidation, "finalize", "validate",
			fmt.Sprintf("Job is %s, not terminal", job.Status), nil)
	}

	summary, err := f.summarize(ctx, job, rec)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		logging.WarnWithContext(logging.WithContext(ctx, f.logger), "finalization failed", "finalization_failed",
			logging.String("kind", services.Kind(err)),
			logging.Error(err),
			logging.String(logging.FieldImpact, "asset indexed without labels"),
		)
		return f.skip(ctx, rec, store.SkipFinalizationFailed, err.Error())
	}
	if _, err := f.results.SaveSummary(ctx, summary); err != nil {
		return Outcome{}, fmt.Errorf("save summary: %w", err)
	}
	logging.WithContext(ctx, f.logger).Info("asset finalized",
		logging.String(logging.FieldEventType, "asset_finalized"),
		logging.String("key", summary.ProcessedPath),
		logging.Int("labels", len(summary.Labels)),
		logging.Int("moderation_flags", len(summary.ModerationFlags)),
	)
	return Outcome{Record: rec, Summary: summary}, nil
}

func (f *Finalizer) summarize(ctx context.Context, job *store.LabelJob, rec *store.IngestionRecord) (*store.ProcessedSummary, error) {
	key, err := storage.ProcessedKey(rec.RawPath)
	if err != nil {
		return nil, services.Wrap(services.ErrPermanentInput, "finalize", "processed key", "Raw key is malformed", err)
	}
	results, err := f.fetchResults(ctx, job.Handle)
	if err != nil {
		return nil, err
	}
	doc := Normalize(rec.AssetID, results, f.opts.ModerationFloor)
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode labels.json: %w", err)
	}
	if err := f.write(ctx, key, data); err != nil {
		return nil, err
	}
	return &store.ProcessedSummary{
		AssetID:         rec.AssetID,
		RunID:           rec.RunID,
		ProcessedPath:   key,
		Labels:          doc.Labels,
		ModerationFlags: doc.ModerationFlags,
		DurationMS:      doc.DurationMS,
	}, nil
}

// write stores data at key. An identical object left by an interrupted
// earlier attempt counts as written.
func (f *Finalizer) write(ctx context.Context, key string, data []byte) error {
	err := f.objects.Put(ctx, key, data, "application/json")
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrExists) {
		return services.Wrap(services.ErrTransientIO, "finalize", "write labels", "Processed object write failed", err)
	}
	existing, gerr := f.objects.Get(ctx, key)
	if gerr != nil {
		return services.Wrap(services.ErrTransientIO, "finalize", "write labels", "Could not read existing processed object", gerr)
	}
	if !bytes.Equal(existing, data) {
		return services.Wrap(services.ErrPermanentInput, "finalize", "write labels",
			"A different labels.json already exists at "+key, nil)
	}
	return nil
}

func (f *Finalizer) fetchResults(ctx context.Context, handle string) (*vision.Results, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = f.opts.InitialBackoff
	policy.MaxElapsedTime = 0
	retry := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(f.opts.MaxAttempts-1)), ctx)

	var results *vision.Results
	err := backoff.Retry(func() error {
		r, err := f.service.GetResults(ctx, handle)
		if err != nil {
			if !services.IsRetryable(err) || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		results = r
		return nil
	}, retry)
	if err != nil {
		if services.IsRetryable(err) {
			return nil, services.Wrap(services.ErrTransientIO, "finalize", "get results", "Result retrieval failed", err)
		}
		return nil, err
	}
	return results, nil
}

func (f *Finalizer) skip(ctx context.Context, rec *store.IngestionRecord, reason store.SkipReason, detail string) (Outcome, error) {
	skip := &store.FinalizationSkip{
		AssetID: rec.AssetID,
		RunID:   rec.RunID,
		Reason:  reason,
		Detail:  detail,
	}
	if _, err := f.results.SaveSkip(ctx, skip); err != nil {
		return Outcome{}, fmt.Errorf("save skip: %w", err)
	}
	logging.WithContext(ctx, f.logger).Info("asset skipped",
		logging.String(logging.FieldEventType, "asset_skipped"),
		logging.String("reason", string(reason)),
	)
	return Outcome{Record: rec, Skip: skip}, nil
}
