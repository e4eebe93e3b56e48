// Package batch splits a run's batch size across catalog sources.
package batch

import (
	"errors"
	"fmt"

	"clipwise/internal/services"
)

// Share is one source's portion of a batch.
type Share struct {
	Source string
	Count  int
}

// Allocation splits total across sources in order. Every source receives
// total/len(sources) and the first total%len(sources) sources receive one
// more. Shares always sum to total.
func Allocation(total int, sources []string) ([]Share, error) {
	if total < 0 {
		return nil, configError(fmt.Errorf("batch size %d must not be negative", total))
	}
	if len(sources) == 0 {
		if total == 0 {
			return nil, nil
		}
		return nil, configError(errors.New("at least one source is required"))
	}
	seen := make(map[string]struct{}, len(sources))
	for _, source := range sources {
		if source == "" {
			return nil, configError(errors.New("source name must not be empty"))
		}
		if _, dup := seen[source]; dup {
			return nil, configError(fmt.Errorf("source %q listed twice", source))
		}
		seen[source] = struct{}{}
	}

	base := total / len(sources)
	remainder := total % len(sources)
	shares := make([]Share, len(sources))
	for i, source := range sources {
		count := base
		if i < remainder {
			count++
		}
		shares[i] = Share{Source: source, Count: count}
	}
	return shares, nil
}

// Distribute returns the Allocation keyed by source.
func Distribute(total int, sources []string) (map[string]int, error) {
	shares, err := Allocation(total, sources)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(shares))
	for _, share := range shares {
		out[share.Source] = share.Count
	}
	return out, nil
}

func configError(err error) error {
	return services.Wrap(services.ErrConfiguration, "batch", "distribute", "Invalid batch allocation", err)
}
