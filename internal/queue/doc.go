// Package queue persists content items in SQLite and owns their lifecycle
// state machine.
//
// The Store manages the database connection, schema initialization, and four
// tables: content items, the fingerprint index, approval requests and
// acquisition targets. Item writes go through Update, which enforces the
// allowed stage transitions, refuses to replace a stored fingerprint and
// uses the row version for optimistic concurrency. Conflicting writers get
// ErrConcurrencyConflict and are expected to skip the item.
//
// Items are never deleted. Terminal stages are kept so the same source key
// or fingerprint can never be processed twice.
//
// Schema changes are appended to the migrations list in schema.go. Opening an
// older database migrates it forward; a newer one is refused with
// ErrSchemaMismatch.
package queue
