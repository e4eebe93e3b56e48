package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"

	"clipwise/internal/config"
	"clipwise/internal/daemon"
	"clipwise/internal/logging"
	"clipwise/internal/preflight"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the clipwise daemon and blocks until the context is canceled or
// a termination signal arrives.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logPath := filepath.Join(cfg.Paths.LogDir, "clipwise.log")
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		FilePath:    logPath,
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	pruneLogs(logger, cfg, logPath)

	rt, err := Open(signalCtx, cfg, logger)
	if err != nil {
		logger.Error("runtime bootstrap failed", logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_bootstrap_failed"),
			logging.String(logging.FieldErrorHint, "check storage, vision and database settings"),
		)
		return err
	}
	defer rt.Close()
	reportPreflight(signalCtx, logger, cfg, rt)

	d, err := daemon.New(cfg, rt.Store, rt.Objects, logger, rt.Manager)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		if errors.Is(err, daemon.ErrLocked) {
			return err
		}
		logging.WarnWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check configuration and database access"),
			logging.String(logging.FieldImpact, "runs will not be processed"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("clipwise daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

func pruneLogs(logger *slog.Logger, cfg *config.Config, active string) {
	days := cfg.Logging.RetentionDays
	removed := logging.CleanupOldLogs(logger, days, cfg.Paths.LogDir, "*.log", active)
	removed += logging.CleanupOldLogs(logger, days, filepath.Join(cfg.Paths.LogDir, "runs"), "*.log", "")
	if removed > 0 {
		logger.Info("old logs pruned",
			logging.Int("removed", removed),
			logging.Int("retention_days", days),
			logging.String(logging.FieldEventType, "logs_pruned"),
		)
	}
}

func reportPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config, rt *Runtime) {
	for _, result := range preflight.Failed(preflight.RunAll(ctx, cfg, rt.Objects)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldImpact, "runs touching this dependency will fail"),
			logging.String(logging.FieldErrorHint, "run clipwise doctor for details"),
		)
	}
}
