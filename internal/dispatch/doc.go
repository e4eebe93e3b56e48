// Package dispatch starts one asynchronous label-detection job per ingested
// asset and records it as a LabelJob.
//
// Dispatch is idempotent per asset: an asset that already carries a live or
// finished job is returned as-is and the vision service is not contacted.
// Rejections by the service are persisted as FAILED jobs so finalization can
// account for them. When every dispatch of a run fails because the service is
// unreachable nothing is persisted and the stage reports ErrUnavailable,
// leaving the run resumable.
package dispatch
