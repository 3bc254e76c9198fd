// Package publishing delivers approved items to the publication target.
//
// OutboxPublisher writes each publication as a directory holding the media
// and a JSON manifest; BreakerPublisher guards any Publisher with a circuit
// breaker so a failing target stops the publish stage instead of burning
// every item's retry budget.
package publishing
