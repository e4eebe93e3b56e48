package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"clipwise/internal/config"
)

var (
	// ErrExists reports that an object with the requested key is already stored.
	ErrExists = errors.New("object already exists")
	// ErrNotFound reports that no object exists for the requested key.
	ErrNotFound = errors.New("object not found")
)

// Object describes one stored object.
type Object struct {
	Key        string    `json:"key"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// ObjectStore is the narrow object-storage capability the workflow relies on.
type ObjectStore interface {
	// Put writes data under key and fails with ErrExists when the key is taken.
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	// List returns objects whose key starts with prefix, sorted by key.
	List(ctx context.Context, prefix string) ([]Object, error)
	Name() string
}

// New builds the object store selected by cfg.Storage.Backend.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ObjectStore, error) {
	if cfg == nil {
		return nil, errors.New("storage requires configuration")
	}
	switch cfg.Storage.Backend {
	case config.StorageFilesystem, "":
		return NewFilesystem(cfg.Storage.Root)
	case config.StorageS3:
		return NewS3FromConfig(ctx, cfg.Storage, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("object key is empty")
	}
	if strings.HasPrefix(key, "/") {
		return fmt.Errorf("object key %q must be relative", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("object key %q has an invalid segment", key)
		}
	}
	return nil
}
