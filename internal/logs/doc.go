// Package logs reads the daemon's JSON log file for the CLI: trailing lines,
// follow mode across restarts, and record filtering by level, item and stage.
package logs
