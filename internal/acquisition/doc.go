// Package acquisition creates new content items from acquisition targets.
//
// A Source lists the newest posts for one target account. The shipped
// DirectorySource reads an inbox directory with one sub-directory per
// target. Step walks the active targets, records each unseen post as an
// acquired item keyed by "<target>:<post>", and stamps when each target was
// last checked.
//
// Watcher observes the inbox with fsnotify and calls back once writes have
// been quiet for the debounce window, so the daemon can run without waiting
// for the next scheduled tick.
package acquisition
