package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
	ErrPermanent     = errors.New("permanent failure")
	ErrInvariant     = errors.New("invariant violation")
	ErrUnavailable   = errors.New("collaborator unavailable")
	// ErrDeferred marks work a collaborator declined to attempt, such as a
	// call rejected by an open circuit breaker. It does not consume a retry.
	ErrDeferred = errors.New("deferred")
)

// Kind classifies a stage failure for retry purposes.
type Kind string

const (
	KindTransient Kind = "transient"
	KindPermanent Kind = "permanent"
	KindInvariant Kind = "invariant"
)

// RetryClassifier lets collaborator errors declare whether a retry can help.
type RetryClassifier interface {
	IsRetriable() bool
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify maps a stage error onto the retry taxonomy. Anything not
// explicitly permanent or an invariant breach is treated as transient.
func Classify(err error) Kind {
	if err == nil {
		return KindTransient
	}
	if errors.Is(err, ErrInvariant) {
		return KindInvariant
	}
	if errors.Is(err, ErrPermanent) || errors.Is(err, ErrValidation) || errors.Is(err, ErrConfiguration) {
		return KindPermanent
	}
	var classifier RetryClassifier
	if errors.As(err, &classifier) && !classifier.IsRetriable() {
		return KindPermanent
	}
	return KindTransient
}

// Message returns the operator-facing text recorded as an item's last error.
func Message(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.TrimSpace(err.Error())
	if errors.Is(err, context.DeadlineExceeded) && !strings.Contains(msg, ErrTimeout.Error()) {
		msg = ErrTimeout.Error() + ": " + msg
	}
	return msg
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
