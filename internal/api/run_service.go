package api

import (
	"context"

	"clipwise/internal/store"
)

// RunReader abstracts the persistence needed for read-only API queries.
type RunReader interface {
	ListRuns(ctx context.Context, limit int, statuses ...store.RunStatus) ([]*store.Run, error)
	RunStats(ctx context.Context) (map[store.RunStatus]int, error)
	QueryIndex(ctx context.Context, filter store.IndexFilter) ([]*store.IndexEntry, error)
}

// RunService exposes read-only run and index operations returning API DTOs.
type RunService struct {
	store RunReader
}

// NewRunService constructs a RunService around the provided reader.
func NewRunService(store RunReader) *RunService {
	if store == nil {
		return nil
	}
	return &RunService{store: store}
}

// List returns the most recent runs, optionally filtered by status.
func (s *RunService) List(ctx context.Context, limit int, statuses ...store.RunStatus) ([]Run, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	runs, err := s.store.ListRuns(ctx, limit, statuses...)
	if err != nil {
		return nil, err
	}
	return SortRunsNewestFirst(FromRuns(runs)), nil
}

// Stats returns run counts keyed by status string.
func (s *RunService) Stats(ctx context.Context) (map[string]int, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	stats, err := s.store.RunStats(ctx)
	if err != nil {
		return nil, err
	}
	return MergeRunStats(stats), nil
}

// Assets queries the metadata index.
func (s *RunService) Assets(ctx context.Context, filter store.IndexFilter) ([]Asset, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	entries, err := s.store.QueryIndex(ctx, filter)
	if err != nil {
		return nil, err
	}
	return FromIndexEntries(entries), nil
}
