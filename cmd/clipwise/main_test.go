package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"clipwise/internal/daemon"
	"clipwise/internal/services"
)

func TestExitCodeClassifiesErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, 0},
		{"configuration", services.Wrap(services.ErrConfiguration, "workflow", "trigger", "bad campaign", nil), exitConfig},
		{"validation", fmt.Errorf("load: %w", services.ErrValidation), exitConfig},
		{"locked", fmt.Errorf("%w; stop the daemon", daemon.ErrLocked), exitLocked},
		{"stalled", services.Wrap(services.ErrUnavailable, "poll", "check status", "vision down", nil), exitUnavailable},
		{"other", errors.New("boom"), exitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Fatalf("exitCode = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRunMapsCommandErrorsToExitCodes(t *testing.T) {
	env := setupCLITestEnv(t)

	var stderr bytes.Buffer
	code := run(context.Background(), []string{"--config", env.configPath, "run", "bad/campaign", "--batch-size", "2"}, &stderr)
	if code != exitConfig {
		t.Fatalf("exit code = %d, want %d (stderr %q)", code, exitConfig, stderr.String())
	}
	requireContains(t, stderr.String(), "clipwise: ")

	lock, err := daemon.AcquireLock(env.cfg.LockPath())
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	defer lock.Unlock()
	stderr.Reset()
	if code := run(context.Background(), []string{"--config", env.configPath, "resume"}, &stderr); code != exitLocked {
		t.Fatalf("exit code = %d, want %d (stderr %q)", code, exitLocked, stderr.String())
	}

	stderr.Reset()
	if code := run(context.Background(), []string{"--config", env.configPath, "runs"}, &stderr); code != 0 {
		t.Fatalf("runs exit code = %d (stderr %q)", code, stderr.String())
	}
	if strings.TrimSpace(stderr.String()) != "" {
		t.Fatalf("unexpected stderr %q", stderr.String())
	}
}
