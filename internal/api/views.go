package api

import (
	"sort"
	"time"
)

// SortRunsNewestFirst orders runs by CreatedAt descending, breaking ties by ID descending.
func SortRunsNewestFirst(runs []Run) []Run {
	if len(runs) == 0 {
		return []Run{}
	}
	sorted := make([]Run, len(runs))
	copy(sorted, runs)
	sort.SliceStable(sorted, func(i, j int) bool {
		ti := parseTime(sorted[i].CreatedAt)
		tj := parseTime(sorted[j].CreatedAt)
		if ti.Equal(tj) {
			return sorted[i].ID > sorted[j].ID
		}
		return ti.After(tj)
	})
	return sorted
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	return time.Time{}
}

// ParseTime exposes API timestamp parsing for consumers that need display formatting.
func ParseTime(value string) time.Time {
	return parseTime(value)
}
