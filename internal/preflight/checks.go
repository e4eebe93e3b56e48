package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"clipwise/internal/storage"
)

const endpointTimeout = 5 * time.Second

// probePrefix is listed to prove the object store answers; nothing is written.
const probePrefix = "preflight/"

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckObjectStore lists a probe prefix to confirm the backend answers.
func CheckObjectStore(ctx context.Context, objects storage.ObjectStore) Result {
	const name = "Object store"
	if objects == nil {
		return Result{Name: name, Detail: "not available"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, endpointTimeout)
	defer cancel()
	if _, err := objects.List(checkCtx, probePrefix); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s list failed (%s)", objects.Name(), summarizeError(err))}
	}
	return Result{Name: name, Passed: true, Detail: objects.Name() + " reachable"}
}

// Endpoint describes a remote HTTP service to probe.
type Endpoint struct {
	Name      string
	URL       string
	Token     string
	UserAgent string
}

// CheckEndpoint issues a GET against the endpoint URL. Any response below 500
// other than an auth rejection counts as reachable.
func CheckEndpoint(ctx context.Context, endpoint Endpoint) Result {
	name := endpoint.Name
	base := strings.TrimRight(strings.TrimSpace(endpoint.URL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing url"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, endpointTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, base, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("check failed (%v)", err)}
	}
	if token := strings.TrimSpace(endpoint.Token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if endpoint.UserAgent != "" {
		req.Header.Set("User-Agent", endpoint.UserAgent)
	}

	client := &http.Client{Timeout: endpointTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("unreachable (%s)", summarizeError(err))}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return Result{Name: name, Detail: fmt.Sprintf("auth failed (%d)", resp.StatusCode)}
	case resp.StatusCode >= 500:
		return Result{Name: name, Detail: fmt.Sprintf("server error (%d)", resp.StatusCode)}
	default:
		return Result{Name: name, Passed: true, Detail: "Reachable"}
	}
}

func summarizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timed out"
	}
	return err.Error()
}
