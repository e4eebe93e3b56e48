// Package finalize turns terminal label jobs into processed summaries or
// recorded skips.
//
// Succeeded jobs have their raw detections normalized (labels merged by
// case-insensitive name, moderation categories filtered by a confidence
// floor) and written to the processed zone as labels.json before the summary
// row is stored. Failed and timed-out jobs become skips carrying the job
// status as the reason. A failure while finalizing one asset is recorded as a
// FINALIZATION_FAILED skip and never affects its siblings.
package finalize
