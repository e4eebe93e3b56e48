// Package logging assembles structured slog loggers and formatting helpers used
// across Clipwise services.
//
// It owns the configurable console/JSON handlers, fans output to the terminal
// and the daemon log file, and exposes context-aware helpers so stage code can
// automatically tag log lines with run IDs, asset IDs, stages, and correlation
// IDs. The package also provides a no-op logger for tests and wiring code that
// cannot fail.
package logging
