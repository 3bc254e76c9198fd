// Command reelpipe is the operator CLI: it runs the daemon in the foreground,
// executes one-off pipeline runs, reviews items awaiting approval, manages
// acquisition targets and reports health.
//
// Read and approval commands work directly against the SQLite store so they
// are usable whether or not the daemon is running. Status and trigger talk
// to the daemon's HTTP API. Logs reads the daemon's JSON log file.
package main
