package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"clipwise/internal/config"
	"clipwise/internal/dispatch"
	"clipwise/internal/finalize"
	"clipwise/internal/index"
	"clipwise/internal/ingest"
	"clipwise/internal/logging"
	"clipwise/internal/notifications"
	"clipwise/internal/poller"
	"clipwise/internal/storage"
	"clipwise/internal/store"
	"clipwise/internal/vision"
	"clipwise/internal/workflow"
)

// Runtime bundles the long-lived dependencies shared by the daemon and the
// foreground CLI commands.
type Runtime struct {
	Config   *config.Config
	Logger   *slog.Logger
	Store    *store.Store
	Objects  storage.ObjectStore
	Vision   vision.Service
	Notifier notifications.Service
	Manager  *workflow.Manager
}

// Open builds the store, object store, vision backend and a workflow manager
// with every stage registered.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("runtime requires configuration")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	objects, err := storage.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open object store: %w", err)
	}
	service, err := vision.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create vision backend: %w", err)
	}
	st, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	notifier := notifications.NewService(cfg)
	mgr := workflow.NewManagerWithNotifier(cfg, st, logger, notifier)
	if err := registerStages(mgr, cfg, st, objects, service, logger); err != nil {
		st.Close()
		return nil, err
	}

	logger.Debug("runtime ready",
		logging.String("storage_backend", objects.Name()),
		logging.String("vision_backend", service.Name()),
		logging.String("database", st.Path()),
	)
	return &Runtime{
		Config:   cfg,
		Logger:   logger,
		Store:    st,
		Objects:  objects,
		Vision:   service,
		Notifier: notifier,
		Manager:  mgr,
	}, nil
}

// Close releases the database handle.
func (r *Runtime) Close() error {
	if r == nil || r.Store == nil {
		return nil
	}
	return r.Store.Close()
}

func registerStages(mgr *workflow.Manager, cfg *config.Config, st *store.Store, objects storage.ObjectStore, service vision.Service, logger *slog.Logger) error {
	ingestStage, err := ingest.NewStage(cfg, st, objects, logger)
	if err != nil {
		return fmt.Errorf("create ingest stage: %w", err)
	}
	mgr.ConfigureStages(workflow.StageSet{
		Ingest:   ingestStage,
		Dispatch: dispatch.NewStage(cfg, st, service, logger),
		Poll:     poller.NewStage(cfg, st, service, logger),
		Finalize: finalize.NewStage(cfg, st, objects, service, logger),
		Index:    index.NewStage(cfg, st, logger),
	})
	return nil
}
