package ai

import (
	"context"
	"time"
)

// Retrying wraps a Service with bounded exponential backoff. Context
// cancellation aborts the backoff wait immediately.
type Retrying struct {
	inner       Service
	maxAttempts int
	baseDelay   time.Duration
}

// NewRetrying wraps the inner service. maxAttempts counts the first try;
// values below 1 are coerced to a single attempt.
func NewRetrying(inner Service, maxAttempts int, baseDelay time.Duration) *Retrying {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}

	return &Retrying{
		inner:       inner,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
	}
}

// Complete delegates with retries.
func (r *Retrying) Complete(ctx context.Context, prompt string) (string, error) {
	var result string
	err := r.do(ctx, func() error {
		var callErr error
		result, callErr = r.inner.Complete(ctx, prompt)
		return callErr
	})
	return result, err
}

// Embed delegates with retries.
func (r *Retrying) Embed(ctx context.Context, text string) ([]float32, error) {
	var result []float32
	err := r.do(ctx, func() error {
		var callErr error
		result, callErr = r.inner.Embed(ctx, text)
		return callErr
	})
	return result, err
}

// Available delegates without retrying.
func (r *Retrying) Available(ctx context.Context) bool {
	return r.inner.Available(ctx)
}

func (r *Retrying) do(ctx context.Context, call func() error) error {
	var lastErr error
	delay := r.baseDelay

	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		if lastErr = call(); lastErr == nil {
			return nil
		}

		if ctx.Err() != nil {
			return lastErr
		}
	}

	return lastErr
}
