package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"clipwise/internal/logging"
	"clipwise/internal/services"
)

// HTTPOptions configures the JSON REST backend.
type HTTPOptions struct {
	BaseURL       string
	APIKey        string
	MinConfidence float64
	Moderation    bool
	Timeout       time.Duration
	Client        *http.Client
}

// HTTP implements Service against a self-hosted labeler exposing
// POST /jobs, GET /jobs/{id}, and GET /jobs/{id}/results.
type HTTP struct {
	baseURL       string
	apiKey        string
	minConfidence float64
	moderation    bool
	client        *http.Client
	logger        *slog.Logger
}

// NewHTTP builds the REST backend.
func NewHTTP(opts HTTPOptions, logger *slog.Logger) *HTTP {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTP{
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		apiKey:        opts.APIKey,
		minConfidence: opts.MinConfidence,
		moderation:    opts.Moderation,
		client:        client,
		logger:        logging.NewComponentLogger(logger, "vision.http"),
	}
}

func (h *HTTP) Name() string { return "http" }

type startRequest struct {
	Object        ObjectRef `json:"object"`
	MinConfidence float64   `json:"min_confidence"`
	Moderation    bool      `json:"moderation"`
}

type startResponse struct {
	JobID string `json:"job_id"`
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type resultsResponse struct {
	DurationMS int64 `json:"duration_ms"`
	Labels     []struct {
		Name        string   `json:"name"`
		Confidence  float64  `json:"confidence"`
		TimestampMS int64    `json:"timestamp_ms"`
		Parents     []string `json:"parents"`
	} `json:"labels"`
	Moderation []struct {
		Name        string  `json:"name"`
		ParentName  string  `json:"parent_name"`
		Confidence  float64 `json:"confidence"`
		TimestampMS int64   `json:"timestamp_ms"`
	} `json:"moderation"`
}

// httpError is a non-2xx response from the labeler.
type httpError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *httpError) Error() string {
	msg := fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Status)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func transientStatus(status int) bool {
	return status == http.StatusTooManyRequests ||
		status == http.StatusRequestTimeout ||
		status >= http.StatusInternalServerError
}

// StartJob submits a label-detection job for ref.
func (h *HTTP) StartJob(ctx context.Context, ref ObjectRef) (string, error) {
	payload := startRequest{Object: ref, MinConfidence: h.minConfidence, Moderation: h.moderation}
	var resp startResponse
	if err := h.do(ctx, http.MethodPost, "/jobs", payload, &resp); err != nil {
		return "", classifyHTTP(err, "start job", services.ErrDispatch)
	}
	if strings.TrimSpace(resp.JobID) == "" {
		return "", services.Wrap(services.ErrDispatch, "vision", "start job", "Labeler returned no job id", nil)
	}
	return resp.JobID, nil
}

// GetStatus reports the job state. A job the labeler no longer knows is
// reported as failed.
func (h *HTTP) GetStatus(ctx context.Context, handle string) (Status, error) {
	var resp statusResponse
	if err := h.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(handle), nil, &resp); err != nil {
		var he *httpError
		if errors.As(err, &he) && he.Status == http.StatusNotFound {
			return Status{State: StateFailed, Message: "job not found"}, nil
		}
		return Status{}, classifyHTTP(err, "get status", services.ErrPermanentInput)
	}
	return Status{State: parseState(resp.Status), Message: resp.Message}, nil
}

// GetResults fetches the detections of a completed job.
func (h *HTTP) GetResults(ctx context.Context, handle string) (*Results, error) {
	var resp resultsResponse
	if err := h.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(handle)+"/results", nil, &resp); err != nil {
		return nil, classifyHTTP(err, "get results", services.ErrPermanentInput)
	}
	out := &Results{DurationMS: resp.DurationMS}
	for _, label := range resp.Labels {
		out.Labels = append(out.Labels, LabelDetection{
			Name:        label.Name,
			Confidence:  label.Confidence,
			TimestampMS: label.TimestampMS,
			Parents:     label.Parents,
		})
	}
	for _, mod := range resp.Moderation {
		out.Moderation = append(out.Moderation, ModerationDetection{
			Name:        mod.Name,
			ParentName:  mod.ParentName,
			Confidence:  mod.Confidence,
			TimestampMS: mod.TimestampMS,
		})
	}
	return out, nil
}

func (h *HTTP) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &httpError{Method: method, Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &decodeError{err: err}
	}
	return nil
}

type decodeError struct{ err error }

func (e *decodeError) Error() string { return "decode response: " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

// classifyHTTP tags err as transient for network failures, throttling, and
// server errors, and with rejected otherwise.
func classifyHTTP(err error, operation string, rejected error) error {
	var he *httpError
	if errors.As(err, &he) {
		if transientStatus(he.Status) {
			return services.Wrap(services.ErrTransientIO, "vision", operation, "Labeler temporarily unavailable", err)
		}
		return services.Wrap(rejected, "vision", operation, "Labeler rejected request", err)
	}
	var de *decodeError
	if errors.As(err, &de) {
		return services.Wrap(rejected, "vision", operation, "Labeler returned malformed response", err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return services.Wrap(services.ErrTransientIO, "vision", operation, "Labeler unreachable", err)
}

func parseState(raw string) State {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "COMPLETED", "SUCCEEDED":
		return StateCompleted
	case "FAILED", "ERROR":
		return StateFailed
	default:
		return StateInProgress
	}
}

func secondsDuration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}
