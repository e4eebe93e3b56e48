package catalog

import (
	"fmt"
	"log/slog"
	"time"

	"clipwise/internal/config"
)

// NewSources builds every catalog adapter named in cfg.Campaign.Sources,
// keyed by source name. The adapters share one rate-limited client.
func NewSources(cfg *config.Config, logger *slog.Logger) (map[string]Source, error) {
	client := NewClient(ClientOptions{
		Timeout:           time.Duration(cfg.Catalog.RequestTimeout) * time.Second,
		RequestsPerSecond: cfg.Catalog.RequestsPerSecond,
		MaxAttempts:       cfg.Catalog.MaxAttempts,
		UserAgent:         cfg.Catalog.UserAgent,
	}, logger)

	sources := make(map[string]Source, len(cfg.Campaign.Sources))
	for _, name := range cfg.Campaign.Sources {
		switch name {
		case SourceWikimedia:
			sources[name] = NewWikimedia(client, cfg.Catalog.WikimediaBaseURL)
		case SourceArchive:
			sources[name] = NewArchive(client, cfg.Catalog.ArchiveBaseURL, logger)
		default:
			return nil, fmt.Errorf("unknown catalog source %q", name)
		}
	}
	return sources, nil
}
