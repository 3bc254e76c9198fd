package stage

import (
	"context"

	"reelpipe/internal/queue"
)

// Handler describes the contract the stage executor needs from each stage.
// Execute mutates the item in memory; the executor commits it. A handler that
// leaves item.Stage unchanged advances the item to the stage's default next
// state.
//
// Handlers must return promptly once ctx is done. The executor stops waiting
// shortly after the item deadline and records a timeout; a call that keeps
// running is abandoned, and the item is not retried before its claim would
// have expired. Returning an error wrapping services.ErrDeferred releases the
// item without consuming a retry.
type Handler interface {
	Prepare(context.Context, *queue.Item) error
	Execute(context.Context, *queue.Item) error
	HealthCheck(context.Context) Health
}

// AfterCommitter is implemented by handlers with side effects that must only
// happen once the transition is durable.
type AfterCommitter interface {
	AfterCommit(context.Context, *queue.Item)
}

// Health reports whether a stage's collaborators can take work right now.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

func Healthy(name string) Health { return Health{Name: name, Ready: true} }

// Unhealthy marks a stage unavailable; detail is shown to the operator.
func Unhealthy(name, detail string) Health { return Health{Name: name, Detail: detail} }
