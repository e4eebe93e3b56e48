package vision

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"clipwise/internal/config"
)

// State is the coarse lifecycle reported by a label-detection service.
type State string

const (
	StateInProgress State = "IN_PROGRESS"
	StateCompleted  State = "COMPLETED"
	StateFailed     State = "FAILED"
)

// ObjectRef locates a stored video for the service.
type ObjectRef struct {
	Bucket      string `json:"bucket,omitempty"`
	Key         string `json:"key"`
	ContentType string `json:"content_type,omitempty"`
}

// Status is the result of one status check.
type Status struct {
	State   State
	Message string
}

// LabelDetection is one label observed at a point in the video.
type LabelDetection struct {
	Name        string
	Confidence  float64
	TimestampMS int64
	Parents     []string
}

// ModerationDetection is one content-moderation category observed at a point
// in the video.
type ModerationDetection struct {
	Name        string
	ParentName  string
	Confidence  float64
	TimestampMS int64
}

// Results is the raw output of a completed job.
type Results struct {
	Labels     []LabelDetection
	Moderation []ModerationDetection
	DurationMS int64
}

// Service is an asynchronous label-detection backend.
type Service interface {
	Name() string
	StartJob(ctx context.Context, ref ObjectRef) (string, error)
	GetStatus(ctx context.Context, handle string) (Status, error)
	GetResults(ctx context.Context, handle string) (*Results, error)
}

// New builds the backend selected by cfg.Vision.Backend.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Service, error) {
	switch cfg.Vision.Backend {
	case config.VisionHTTP:
		return NewHTTP(HTTPOptions{
			BaseURL:       cfg.Vision.BaseURL,
			APIKey:        cfg.Vision.APIKey,
			MinConfidence: cfg.Vision.MinConfidence,
			Moderation:    cfg.Vision.Moderation,
			Timeout:       secondsDuration(cfg.Vision.RequestTimeout),
		}, logger), nil
	case config.VisionRekognition:
		return NewRekognitionFromConfig(ctx, cfg.Vision, logger)
	default:
		return nil, fmt.Errorf("unknown vision backend %q", cfg.Vision.Backend)
	}
}

// RefFor builds the object reference a service needs to read a stored key.
func RefFor(storage config.Storage, key, contentType string) ObjectRef {
	ref := ObjectRef{Key: key, ContentType: contentType}
	if storage.Backend == config.StorageS3 {
		ref.Bucket = storage.Bucket
		if prefix := strings.Trim(storage.Prefix, "/"); prefix != "" {
			ref.Key = path.Join(prefix, key)
		}
	}
	return ref
}
