// Package preflight provides readiness checks for the directories, object
// store and remote endpoints that Clipwise depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll on startup and logs every failed check so an
//     unreachable labeler shows up before the first scheduled run.
//   - The CLI "clipwise doctor" command renders the results as a table and
//     exits non-zero when any check fails.
//
// Endpoint checks are gated by configuration: only the selected vision
// backend and the configured catalog sources are probed.
package preflight
