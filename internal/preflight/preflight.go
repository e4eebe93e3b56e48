package preflight

import (
	"context"
	"strings"

	"clipwise/internal/config"
	"clipwise/internal/storage"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes all applicable preflight checks for the given config.
// objects may be nil when the object store could not be constructed.
func RunAll(ctx context.Context, cfg *config.Config, objects storage.ObjectStore) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	if cfg.Storage.Backend == config.StorageFilesystem || cfg.Storage.Backend == "" {
		results = append(results, CheckDirectoryAccess("Object root", cfg.Storage.Root))
	}
	results = append(results, CheckObjectStore(ctx, objects))

	if cfg.Vision.Backend == config.VisionHTTP {
		results = append(results, CheckEndpoint(ctx, Endpoint{Name: "Vision labeler", URL: cfg.Vision.BaseURL, Token: cfg.Vision.APIKey}))
	}

	for _, source := range cfg.Campaign.Sources {
		switch strings.ToLower(source) {
		case "wikimedia":
			results = append(results, CheckEndpoint(ctx, Endpoint{Name: "Wikimedia Commons", URL: cfg.Catalog.WikimediaBaseURL, UserAgent: cfg.Catalog.UserAgent}))
		case "archive":
			results = append(results, CheckEndpoint(ctx, Endpoint{Name: "Internet Archive", URL: cfg.Catalog.ArchiveBaseURL, UserAgent: cfg.Catalog.UserAgent}))
		}
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, result := range results {
		if !result.Passed {
			failed = append(failed, result)
		}
	}
	return failed
}
