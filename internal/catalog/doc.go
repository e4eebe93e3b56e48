// Package catalog searches public media catalogs for openly licensed video.
//
// Each Source adapter normalizes its catalog's response into CandidateAsset
// values at the boundary so the rest of the workflow never sees
// catalog-specific shapes. The adapters share a rate-limited HTTP client that
// retries throttling and server errors with exponential backoff and reports
// other client errors as permanent.
package catalog
