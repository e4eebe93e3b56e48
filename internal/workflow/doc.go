// Package workflow advances runs through the enrichment stages.
//
// A run is created by Trigger in the pending status and moves through ingest,
// dispatch, poll, finalize and index. Each stage owns a start, processing and
// done status; the Manager flips the run into the processing status, invokes
// the registered stage.Handler, and persists the done status once the handler
// returns. Stages are idempotent on re-entry, so a run interrupted mid-stage is
// rolled back to the stage's start status and executed again.
//
// Execute drives one run synchronously (the CLI path). Start launches a
// background lane that picks the oldest runnable run, heartbeats it while a
// stage executes, and reclaims runs whose heartbeat went stale (the daemon
// path). Both paths share the same stage execution, failure handling, per-run
// log files, and run notifications.
package workflow
