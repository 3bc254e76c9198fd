package publishing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"reelpipe/internal/logging"
	"reelpipe/internal/metrics"
	"reelpipe/internal/queue"
	"reelpipe/internal/services"
)

// BreakerPublisher stops calling the wrapped publisher after consecutive
// retriable failures and lets a trial request through once timeout elapses.
type BreakerPublisher struct {
	inner   Publisher
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerPublisher wraps inner. failures consecutive retriable errors open
// the breaker for timeout.
func NewBreakerPublisher(inner Publisher, failures int, timeout time.Duration, logger *slog.Logger) *BreakerPublisher {
	if failures <= 0 {
		failures = 5
	}
	logger = logging.NewComponentLogger(logger, "publish-breaker")
	settings := gobreaker.Settings{
		Name:        "publisher",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(failures)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.PublisherBreakerState.Set(float64(to))
			logging.WarnWithContext(logger, "publisher breaker state changed", "breaker_state_change",
				logging.String("from", from.String()),
				logging.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var pubErr *Error
			return errors.As(err, &pubErr) && !pubErr.Retriable
		},
	}
	metrics.PublisherBreakerState.Set(float64(gobreaker.StateClosed))
	return &BreakerPublisher{inner: inner, breaker: gobreaker.NewCircuitBreaker(settings)}
}

// Publish forwards to the wrapped publisher unless the breaker is open. A call
// the breaker rejects never reached the publisher and is reported as
// services.ErrDeferred so it does not count as a failed attempt.
func (b *BreakerPublisher) Publish(ctx context.Context, processedRef string, meta queue.Metadata) (string, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.inner.Publish(ctx, processedRef, meta)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: publisher breaker: %w", services.ErrDeferred, err)
		}
		return "", err
	}
	id, _ := result.(string)
	return id, nil
}

// State reports the breaker state.
func (b *BreakerPublisher) State() gobreaker.State {
	return b.breaker.State()
}

// Open reports whether calls are currently rejected.
func (b *BreakerPublisher) Open() bool {
	return b.breaker.State() == gobreaker.StateOpen
}

// Healthy reports an error while the breaker is open or the wrapped
// publisher reports itself unhealthy.
func (b *BreakerPublisher) Healthy() error {
	if b.Open() {
		return errors.New("publisher circuit breaker open")
	}
	if checker, ok := b.inner.(healthChecker); ok {
		return checker.Healthy()
	}
	return nil
}
