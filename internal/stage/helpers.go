package stage

import (
	"clipwise/internal/services"
)

// Limit clamps a configured concurrency to at least one worker.
func Limit(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// RequireRun returns a services.ErrValidation when a stage is handed no run.
func RequireRun(name string, runID string) error {
	if runID == "" {
		return services.Wrap(services.ErrValidation, name, "load run", "Run identifier missing", nil)
	}
	return nil
}
