// Package workflow runs the content pipeline end to end.
//
// A Manager owns the ordered steps acquire, transform, dedupe, prepare and
// publish. RunOnce walks them in sequence: per-item failures stay inside each
// step's StageRunResult, while a step that cannot start (an unhealthy
// collaborator, or every target failing to fetch) ends the run early.
//
// Start registers the cron schedule from the configuration; TriggerRun
// starts an asynchronous run for the API. Runs carry a UUID that is logged
// as the correlation id and reported back to callers. There is no lock
// around runs: overlapping runs are safe because every item write is
// version-checked and the loser of a race skips the item.
package workflow
