package broker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy bounds a retried broker call: MaxRetries additional attempts
// after the first, with the delay doubling from BaseDelay each time.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// Retry runs fn until it succeeds, retries are exhausted, or the context is
// cancelled. Delays are BaseDelay * 2^attempt.
func Retry[T any](ctx context.Context, p RetryPolicy, log *zap.Logger, op string, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := p.BaseDelay << (attempt - 1)
			log.Warn("broker call failed, retrying",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, fmt.Errorf("%s: %w", op, ctx.Err())
			case <-timer.C:
			}
		}

		v, err := fn()
		if err == nil {
			return v, nil
		}
		lastErr = err
	}

	return zero, fmt.Errorf("%s: retries exhausted: %w", op, lastErr)
}
