// Package daemon coordinates the long-running Clipwise process.
//
// It wires configuration, the run store, object storage and the workflow
// manager into a single lifecycle with flock-based locking to prevent
// multiple instances. On start it returns interrupted runs to their stage
// boundary, launches the workflow lane, fires scheduled triggers from the
// campaign cron expression, and serves the JSON API that dashboards and the
// CLI read from.
//
// Keep orchestration here: stage logic belongs to the stage packages while
// the daemon owns startup, shutdown, and high level coordination.
package daemon
