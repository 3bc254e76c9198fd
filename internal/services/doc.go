// Package services defines shared utilities consumed by the pipeline stage
// handlers and external collaborators.
//
// Key responsibilities:
//   - Context helpers that stamp content item IDs, stage names, run triggers,
//     and correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper, and Classify, which maps
//     a failure onto the retry taxonomy (transient, permanent, invariant).
//
// Use these helpers when wiring new stage logic so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
