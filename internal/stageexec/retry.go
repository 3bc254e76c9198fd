package stageexec

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds how often a transient failure is retried and how long
// an item waits before its next attempt.
type RetryPolicy struct {
	MaxRetries int
	Backoff    func(attempt int) time.Duration
}

// NewRetryPolicy builds an exponential policy starting at initial and capped
// at max, without jitter. A zero initial interval disables the delay.
func NewRetryPolicy(maxRetries int, initial, max time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxRetries: maxRetries,
		Backoff: func(attempt int) time.Duration {
			if initial <= 0 || attempt <= 0 {
				return 0
			}
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = initial
			bo.MaxInterval = max
			bo.RandomizationFactor = 0
			bo.Multiplier = 2
			bo.MaxElapsedTime = 0
			bo.Reset()
			delay := bo.NextBackOff()
			for i := 1; i < attempt; i++ {
				delay = bo.NextBackOff()
			}
			if delay == backoff.Stop {
				return max
			}
			return delay
		},
	}
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	if p.Backoff == nil {
		return 0
	}
	return p.Backoff(attempt)
}
