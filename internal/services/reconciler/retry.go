package reconciler

import (
	"context"
	"time"

	"github.com/BearBump/Dekks/internal/integrations"
	"github.com/cenkalti/backoff/v4"
)

// withRetry runs op up to attempts times with exponential backoff between tries.
// Every try gets its own timeout. Errors that integrations.IsRetryable rejects stop at once.
func withRetry(ctx context.Context, attempts int, initial, timeout time.Duration, op func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = initial
	eb.MaxInterval = 10 * initial
	eb.MaxElapsedTime = 0
	eb.Reset()

	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)

	return backoff.Retry(func() error {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		err := op(callCtx)
		if err != nil && !integrations.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}
