package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"clipwise/internal/logging"
	"clipwise/internal/services"
)

const maxResponseBytes = 8 << 20

// ClientOptions configures the shared catalog HTTP client.
type ClientOptions struct {
	Timeout           time.Duration
	RequestsPerSecond float64
	MaxAttempts       int
	UserAgent         string
	InitialBackoff    time.Duration
	HTTPClient        *http.Client
}

// Client performs rate-limited, retried JSON requests against catalog APIs.
type Client struct {
	http        *http.Client
	limiter     *rate.Limiter
	maxAttempts int
	userAgent   string
	initial     time.Duration
	logger      *slog.Logger
}

// NewClient builds a Client. A zero RequestsPerSecond disables rate limiting.
func NewClient(opts ClientOptions, logger *slog.Logger) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	limit := rate.Inf
	burst := 1
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	initial := opts.InitialBackoff
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	return &Client{
		http:        httpClient,
		limiter:     rate.NewLimiter(limit, burst),
		maxAttempts: attempts,
		userAgent:   opts.UserAgent,
		initial:     initial,
		logger:      logging.NewComponentLogger(logger, "catalog"),
	}
}

// statusError describes an unexpected HTTP response.
type statusError struct {
	URL    string
	Status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.Status)
}

func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests ||
		status == http.StatusRequestTimeout ||
		status >= http.StatusInternalServerError
}

// GetJSON fetches target and decodes the body into out. Throttling, server
// errors, and network failures are retried; any other 4xx is permanent.
func (c *Client) GetJSON(ctx context.Context, target string, out any) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initial
	policy.RandomizationFactor = 0.5
	retry := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.maxAttempts-1)), ctx)

	attempt := 0
	op := func() error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		err := c.getOnce(ctx, target, out)
		if err == nil {
			return nil
		}
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return err
		}
		var se *statusError
		if errors.As(err, &se) && !retryableStatus(se.Status) {
			return backoff.Permanent(err)
		}
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
			return backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		c.logger.Debug("catalog request failed; retrying",
			logging.String("url", target),
			logging.Int("attempt", attempt),
			logging.Error(err),
		)
		return err
	}
	err := backoff.Retry(op, retry)
	if err == nil {
		return nil
	}
	var se *statusError
	switch {
	case ctx.Err() != nil:
		return err
	case errors.As(err, &se) && !retryableStatus(se.Status):
		return services.Wrap(services.ErrPermanentInput, "catalog", "search", "Catalog rejected request", err)
	default:
		return services.Wrap(services.ErrTransientIO, "catalog", "search",
			fmt.Sprintf("Catalog request failed after %d attempts", attempt), err)
	}
}

func (c *Client) getOnce(ctx context.Context, target string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &statusError{URL: target, Status: resp.StatusCode}
	}
	decoder := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes))
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", target, err)
	}
	return nil
}
