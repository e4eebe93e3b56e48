package testsupport

import (
	"context"
	"sync"

	"clipwise/internal/catalog"
)

// FakeSource is an in-memory catalog.Source serving fixed pages.
type FakeSource struct {
	SourceName string
	Pages      [][]catalog.CandidateAsset
	Err        error

	mu      sync.Mutex
	queries []catalog.Query
}

func (f *FakeSource) Name() string { return f.SourceName }

func (f *FakeSource) Search(_ context.Context, query catalog.Query) ([]catalog.CandidateAsset, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	if query.Page < 0 || query.Page >= len(f.Pages) {
		return nil, nil
	}
	return f.Pages[query.Page], nil
}

// Queries returns the searches received so far.
func (f *FakeSource) Queries() []catalog.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]catalog.Query(nil), f.queries...)
}
