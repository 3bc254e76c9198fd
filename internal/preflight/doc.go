// Package preflight provides readiness checks for the filesystem paths,
// binaries and notification channels reelpipe depends on.
//
// These checks run in two contexts:
//   - The daemon runs RunAll at startup and logs every failure so operators
//     see misconfiguration before the first scheduled run.
//   - The CLI "reelpipe check" command renders every check, including the
//     database health summary and binary versions.
//
// Notification checks are gated by configuration; unset channels are skipped.
package preflight
