// Package stageexec runs one pipeline stage over every eligible item.
//
// Items are selected in id order and processed by a bounded worker pool.
// Each collaborator call runs under a per-item timeout; the outcome is
// committed with a version-checked write. Transient failures are retried
// with exponential backoff until the retry budget is spent, permanent
// failures and invariant violations move the item straight to the stage's
// failure state, and items changed by a concurrent writer are skipped.
package stageexec
