// Package daemon coordinates the long-running reelpipe process.
//
// It wires configuration, the item store and the workflow manager into a
// single lifecycle with flock-based locking to prevent multiple instances.
// The daemon owns the HTTP API used by operators and the CLI: status,
// item listing, approval decisions, manual run triggers and the Prometheus
// scrape endpoint. When inbox watching is enabled it also starts an
// acquisition.Watcher that triggers runs as new media lands.
//
// Keep orchestration logic here: pipeline stages live in their own packages
// while the daemon focuses on startup, shutdown and the operator surface.
package daemon
