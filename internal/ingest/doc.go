// Package ingest downloads admitted catalog candidates into the raw zone and
// records them.
//
// The Executor handles a single candidate: a bounded, retried download, a
// content-addressed append-only object write, and finally the write-once
// ingestion record. The Stage drives a whole run: it resolves the per-source
// allocation, subtracts what the run already ingested, pages each catalog
// through the dedup filter, and ingests the selection with bounded
// parallelism. Per-asset failures are recorded and never abort the batch.
package ingest
