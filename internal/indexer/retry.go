package indexer

import (
	"context"
	"time"
)

// withRetry runs fn up to maxRetries+1 times with exponential backoff,
// stopping early when the context is cancelled.
func withRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func(context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	var err error
	delay := baseDelay
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if waitErr := sleepCtx(ctx, delay); waitErr != nil {
				return waitErr
			}
			delay *= 2
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
