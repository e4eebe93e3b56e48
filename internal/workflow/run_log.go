package workflow

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"clipwise/internal/config"
	"clipwise/internal/logging"
	"clipwise/internal/store"
	"clipwise/internal/textutil"
)

// RunLogDir is the log_dir subdirectory holding one JSON log per run.
const RunLogDir = "runs"

// RunLogger manages dedicated log files for individual runs.
type RunLogger struct {
	baseDir string
	level   string
}

// NewRunLogger creates a run logger rooted under the configured log directory.
func NewRunLogger(cfg *config.Config) *RunLogger {
	logger := &RunLogger{level: "info"}
	if cfg == nil {
		return logger
	}
	if cfg.Paths.LogDir != "" {
		logger.baseDir = filepath.Join(cfg.Paths.LogDir, RunLogDir)
	}
	if strings.TrimSpace(cfg.Logging.Level) != "" {
		logger.level = cfg.Logging.Level
	}
	return logger
}

// Path returns the log file for run. Every stage of the run appends to it.
func (r *RunLogger) Path(run *store.Run) string {
	if r == nil || r.baseDir == "" || run == nil {
		return ""
	}
	return filepath.Join(r.baseDir, filename(run))
}

// Open builds a JSON handler appending to the run's log file. The returned
// closer releases the file.
func (r *RunLogger) Open(run *store.Run) (slog.Handler, io.Closer, error) {
	path := r.Path(run)
	if path == "" {
		return nil, nil, fmt.Errorf("run log directory not configured")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("ensure run log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
	if err != nil {
		return nil, nil, fmt.Errorf("open run log %s: %w", path, err)
	}
	logger, err := logging.New(logging.Options{Level: r.level, Format: "json", Output: file})
	if err != nil {
		file.Close()
		return nil, nil, err
	}
	return logger.Handler(), file, nil
}

func filename(run *store.Run) string {
	timestamp := run.CreatedAt.UTC().Format("20060102T150405")
	id := run.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s-%s-%s.log", timestamp, textutil.SanitizeToken(run.Campaign), id)
}
