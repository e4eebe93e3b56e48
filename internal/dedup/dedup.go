// Package dedup filters catalog candidates that were already ingested.
package dedup

import (
	"context"
	"fmt"

	"clipwise/internal/catalog"
)

// Lookup reports which asset ids already have an ingestion record.
type Lookup interface {
	ExistingAssetIDs(ctx context.Context, ids []string) (map[string]bool, error)
}

// Filter drops candidates whose asset was ingested by any earlier run. It only
// reads, so concurrent use is safe; races between runs are settled when the
// ingestion record is inserted.
type Filter struct {
	lookup Lookup
}

// New constructs a Filter backed by lookup.
func New(lookup Lookup) *Filter {
	return &Filter{lookup: lookup}
}

// Admit returns the candidates not yet ingested, in input order, with repeats
// of the same asset id within the input removed.
func (f *Filter) Admit(ctx context.Context, candidates []catalog.CandidateAsset) ([]catalog.CandidateAsset, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(candidates))
	unique := make([]catalog.CandidateAsset, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		id := candidate.AssetID()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
		unique = append(unique, candidate)
	}

	existing, err := f.lookup.ExistingAssetIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("dedup lookup: %w", err)
	}
	admitted := unique[:0]
	for _, candidate := range unique {
		if existing[candidate.AssetID()] {
			continue
		}
		admitted = append(admitted, candidate)
	}
	return admitted, nil
}
