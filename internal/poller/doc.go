// Package poller waits for a run's label jobs to reach a terminal status.
//
// The Controller is a bounded state machine over persisted LabelJobs: every
// round it sleeps, bumps the run's persisted poll round, and checks each
// non-terminal job with at most poll_concurrency requests in flight. Because
// both the cohort and the round counter live in the store, a restarted
// process resumes the wait where the previous one stopped.
package poller
