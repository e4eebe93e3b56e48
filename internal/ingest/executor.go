package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"clipwise/internal/catalog"
	"clipwise/internal/fileutil"
	"clipwise/internal/logging"
	"clipwise/internal/services"
	"clipwise/internal/storage"
	"clipwise/internal/store"
)

// Recorder persists ingestion records.
type Recorder interface {
	InsertIngestion(ctx context.Context, rec *store.IngestionRecord) error
}

// Options bound a single download.
type Options struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	Timeout        time.Duration
	MaxBytes       int64
	UserAgent      string
	HTTPClient     *http.Client
}

// Executor ingests one candidate at a time; it is safe for concurrent use.
type Executor struct {
	recorder Recorder
	objects  storage.ObjectStore
	client   *http.Client
	opts     Options
	logger   *slog.Logger
	now      func() time.Time
}

var videoExtensions = map[string]string{
	"video/webm":      ".webm",
	"video/mp4":       ".mp4",
	"video/ogg":       ".ogv",
	"video/quicktime": ".mov",
	"video/x-msvideo": ".avi",
	"video/mpeg":      ".mpg",
}

// NewExecutor builds an Executor.
func NewExecutor(recorder Recorder, objects storage.ObjectStore, opts Options, logger *slog.Logger) *Executor {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &Executor{
		recorder: recorder,
		objects:  objects,
		client:   client,
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, "ingest"),
		now:      time.Now,
	}
}

type download struct {
	data        []byte
	contentType string
}

// Ingest downloads candidate, stores it in the raw zone, and records it for
// runID. The record is written only after the object is stored.
func (e *Executor) Ingest(ctx context.Context, runID, campaign string, candidate catalog.CandidateAsset) (*store.IngestionRecord, error) {
	ctx = services.WithAssetID(ctx, candidate.AssetID())
	logger := logging.WithContext(ctx, e.logger)

	if strings.TrimSpace(candidate.DownloadURL) == "" {
		return nil, services.Wrap(services.ErrPermanentInput, "ingest", "download", "Candidate has no download URL", nil)
	}
	dl, err := e.fetch(ctx, candidate.DownloadURL)
	if err != nil {
		return nil, err
	}

	contentType := dl.contentType
	if !strings.HasPrefix(contentType, "video/") && (contentType == "" || contentType == "application/octet-stream") {
		contentType = strings.ToLower(candidate.MIMEType)
	}
	if !strings.HasPrefix(contentType, "video/") {
		return nil, services.Wrap(services.ErrPermanentInput, "ingest", "validate",
			fmt.Sprintf("Download is %q, not video", contentType), nil)
	}

	sum := fileutil.SHA256Hex(dl.data)
	ingestedAt := e.now().UTC()
	key := storage.RawKey(candidate.Source, campaign, ingestedAt, candidate.Title, sum, extensionFor(contentType, candidate.DownloadURL))
	if err := e.objects.Put(ctx, key, dl.data, contentType); err != nil {
		if !errors.Is(err, storage.ErrExists) {
			return nil, services.Wrap(services.ErrTransientIO, "ingest", "store raw object", "Raw object write failed", err)
		}
		// Same content at the same second already landed under this key.
		logger.Debug("raw object already present", logging.String("key", key))
	}

	rec := &store.IngestionRecord{
		AssetID:     candidate.AssetID(),
		Source:      candidate.Source,
		ExternalID:  candidate.ExternalID,
		Campaign:    campaign,
		RunID:       runID,
		Title:       candidate.Title,
		License:     candidate.License,
		DownloadURL: candidate.DownloadURL,
		RawPath:     key,
		ContentType: contentType,
		SizeBytes:   int64(len(dl.data)),
		SHA256:      sum,
		IngestedAt:  ingestedAt,
	}
	if err := e.recorder.InsertIngestion(ctx, rec); err != nil {
		if errors.Is(err, store.ErrAlreadyIngested) {
			return nil, services.Wrap(services.ErrPermanentInput, "ingest", "record", "Asset ingested by another run", err)
		}
		return nil, services.Wrap(services.ErrTransientIO, "ingest", "record", "Ingestion record write failed", err)
	}
	logger.Info("asset ingested",
		logging.String(logging.FieldEventType, "asset_ingested"),
		logging.String("key", key),
		logging.Int64("bytes", rec.SizeBytes),
	)
	return rec, nil
}

// fetch downloads target, retrying transient failures with jittered
// exponential backoff.
func (e *Executor) fetch(ctx context.Context, target string) (download, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = e.opts.InitialBackoff
	policy.RandomizationFactor = 0.5
	policy.MaxElapsedTime = 0
	retry := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(e.opts.MaxAttempts-1)), ctx)

	var result download
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		dl, err := e.fetchOnce(ctx, target)
		if err != nil {
			if !services.IsRetryable(err) || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			e.logger.Debug("download attempt failed",
				logging.String("url", target),
				logging.Int("attempt", attempt),
				logging.Error(err),
			)
			return err
		}
		result = dl
		return nil
	}, retry)
	if err != nil {
		if ctx.Err() != nil {
			return download{}, ctx.Err()
		}
		if services.IsRetryable(err) {
			return download{}, services.Wrap(services.ErrTransientIO, "ingest", "download",
				fmt.Sprintf("Download failed after %d attempts", attempt), err)
		}
		return download{}, err
	}
	return result, nil
}

func (e *Executor) fetchOnce(ctx context.Context, target string) (download, error) {
	reqCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return download{}, services.Wrap(services.ErrPermanentInput, "ingest", "download", "Invalid download URL", err)
	}
	if e.opts.UserAgent != "" {
		req.Header.Set("User-Agent", e.opts.UserAgent)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return download{}, services.Wrap(services.ErrTransientIO, "ingest", "download", "Request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices:
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= http.StatusInternalServerError:
		return download{}, services.Wrap(services.ErrTransientIO, "ingest", "download",
			fmt.Sprintf("Server answered %d", resp.StatusCode), nil)
	default:
		return download{}, services.Wrap(services.ErrPermanentInput, "ingest", "download",
			fmt.Sprintf("Server answered %d", resp.StatusCode), nil)
	}

	if e.opts.MaxBytes > 0 && resp.ContentLength > e.opts.MaxBytes {
		return download{}, services.Wrap(services.ErrPermanentInput, "ingest", "download",
			fmt.Sprintf("Asset is %d bytes, limit %d", resp.ContentLength, e.opts.MaxBytes), nil)
	}
	reader := io.Reader(resp.Body)
	if e.opts.MaxBytes > 0 {
		reader = io.LimitReader(resp.Body, e.opts.MaxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return download{}, services.Wrap(services.ErrTransientIO, "ingest", "download", "Body read failed", err)
	}
	if e.opts.MaxBytes > 0 && int64(len(data)) > e.opts.MaxBytes {
		return download{}, services.Wrap(services.ErrPermanentInput, "ingest", "download",
			fmt.Sprintf("Asset exceeds %d bytes", e.opts.MaxBytes), nil)
	}
	if len(data) == 0 {
		return download{}, services.Wrap(services.ErrPermanentInput, "ingest", "download", "Empty body", nil)
	}
	contentType := ""
	if raw := resp.Header.Get("Content-Type"); raw != "" {
		if parsed, _, err := mime.ParseMediaType(raw); err == nil {
			contentType = strings.ToLower(parsed)
		}
	}
	return download{data: data, contentType: contentType}, nil
}

func extensionFor(contentType, downloadURL string) string {
	if ext, ok := videoExtensions[contentType]; ok {
		return ext
	}
	if parsed, err := url.Parse(downloadURL); err == nil {
		if ext := path.Ext(parsed.Path); ext != "" && len(ext) <= 6 {
			return strings.ToLower(ext)
		}
	}
	return ".bin"
}
