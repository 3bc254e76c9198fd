package publishing

import (
	"context"
	"fmt"

	"reelpipe/internal/queue"
)

// Publisher uploads processed media to the publication target and returns
// the identifier it was published under.
type Publisher interface {
	Publish(ctx context.Context, processedRef string, meta queue.Metadata) (string, error)
}

// Error is returned by publishers. Retriable tells the stage executor whether
// another attempt can succeed.
type Error struct {
	Op        string
	Retriable bool
	Err       error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	kind := "permanent"
	if e.Retriable {
		kind = "retriable"
	}
	if e.Err == nil {
		return fmt.Sprintf("publish %s: %s failure", e.Op, kind)
	}
	return fmt.Sprintf("publish %s: %s failure: %v", e.Op, kind, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsRetriable satisfies services.RetryClassifier.
func (e *Error) IsRetriable() bool { return e != nil && e.Retriable }
