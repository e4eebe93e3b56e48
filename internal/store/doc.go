// Package store persists workflow state in SQLite and exposes helpers for
// driving run lifecycles.
//
// The Store owns runs, ingestion records and failures, label jobs, processed
// summaries, finalization skips, and the metadata index. Every per-asset write
// touches exactly one row keyed by asset_id, so concurrent stage workers need
// no cross-item locking. Write-once tables use INSERT ... ON CONFLICT DO
// NOTHING; the metadata index is an idempotent upsert that only rewrites rows
// whose projected fields changed.
//
// Runs move through statuses that mirror the workflow stages. Processing
// statuses roll back to their stage's start status on restart so execution can
// resume from persisted state.
//
// Schema changes bump the version in schema.go; users clear the database to
// adopt the new schema.
package store
