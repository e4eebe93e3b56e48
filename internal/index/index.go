// Package index projects finalization outcomes into the metadata index read
// by the API and CLI.
package index

import (
	"context"
	"log/slog"

	"clipwise/internal/finalize"
	"clipwise/internal/logging"
	"clipwise/internal/services"
	"clipwise/internal/store"
)

// Filter narrows Query results. Empty fields match everything.
type Filter = store.IndexFilter

// EntryStore persists index entries.
type EntryStore interface {
	UpsertIndexEntry(ctx context.Context, entry *store.IndexEntry) (bool, error)
	QueryIndex(ctx context.Context, filter store.IndexFilter) ([]*store.IndexEntry, error)
}

// Indexer writes one entry per finalized asset.
type Indexer struct {
	entries   EntryStore
	topLabels int
	logger    *slog.Logger
}

// NewIndexer builds an Indexer keeping the first topLabels label names.
func NewIndexer(entries EntryStore, topLabels int, logger *slog.Logger) *Indexer {
	if topLabels <= 0 {
		topLabels = 5
	}
	return &Indexer{
		entries:   entries,
		topLabels: topLabels,
		logger:    logging.NewComponentLogger(logger, "index"),
	}
}

// Entry builds the projection for outcome.
func (i *Indexer) Entry(outcome finalize.Outcome) (*store.IndexEntry, error) {
	rec := outcome.Record
	if rec == nil {
		return nil, services.Wrap(services.ErrValidation, "index", "build entry", "Outcome has no ingestion record", nil)
	}
	entry := &store.IndexEntry{
		AssetID:   rec.AssetID,
		Source:    rec.Source,
		Campaign:  rec.Campaign,
		RawPath:   rec.RawPath,
		TopLabels: []string{},
	}
	switch {
	case outcome.Summary != nil:
		entry.Status = store.IndexStatusProcessed
		entry.ProcessedPath = outcome.Summary.ProcessedPath
		entry.LabelCount = len(outcome.Summary.Labels)
		for _, label := range outcome.Summary.Labels {
			if len(entry.TopLabels) == i.topLabels {
				break
			}
			entry.TopLabels = append(entry.TopLabels, label.Name)
		}
	case outcome.Skip != nil:
		entry.Status = string(outcome.Skip.Reason)
	default:
		return nil, services.Wrap(services.ErrValidation, "index", "build entry", "Outcome is neither processed nor skipped", nil)
	}
	return entry, nil
}

// Index upserts the entry for outcome. Re-indexing an unchanged outcome
// reports false and leaves the row untouched.
func (i *Indexer) Index(ctx context.Context, outcome finalize.Outcome) (bool, error) {
	entry, err := i.Entry(outcome)
	if err != nil {
		return false, err
	}
	changed, err := i.entries.UpsertIndexEntry(ctx, entry)
	if err != nil {
		return false, services.Wrap(services.ErrTransientIO, "index", "upsert", "Index write failed", err)
	}
	if changed {
		logging.WithContext(services.WithAssetID(ctx, entry.AssetID), i.logger).Debug("index entry written",
			logging.String("status", entry.Status),
			logging.Int("labels", entry.LabelCount),
		)
	}
	return changed, nil
}

// Query returns index entries matching filter ordered by asset id.
func (i *Indexer) Query(ctx context.Context, filter Filter) ([]*store.IndexEntry, error) {
	entries, err := i.entries.QueryIndex(ctx, filter)
	if err != nil {
		return nil, services.Wrap(services.ErrTransientIO, "index", "query", "Index query failed", err)
	}
	return entries, nil
}
