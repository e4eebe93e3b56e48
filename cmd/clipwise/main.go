package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"clipwise/internal/daemon"
	"clipwise/internal/services"
)

// exitUnavailable marks a stalled run that is worth retrying later.
const (
	exitFailure     = 1
	exitConfig      = 2
	exitLocked      = 3
	exitUnavailable = 75 // EX_TEMPFAIL
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stderr))
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	cmd := newRootCommand()
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	if !errors.Is(err, context.Canceled) {
		fmt.Fprintf(stderr, "clipwise: %v\n", err)
	}
	return exitCode(err)
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, services.ErrConfiguration), errors.Is(err, services.ErrValidation):
		return exitConfig
	case errors.Is(err, daemon.ErrLocked):
		return exitLocked
	case errors.Is(err, services.ErrUnavailable):
		return exitUnavailable
	default:
		return exitFailure
	}
}
