package ai

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited wraps a Service with a token-bucket limiter so that bursts of
// concurrent grading work cannot exceed the provider's rate limits. The wait
// happens before the call; no lock is held across the provider round trip.
type RateLimited struct {
	inner   Service
	limiter *rate.Limiter
}

// NewRateLimited wraps the inner service with the given requests-per-second
// budget and burst size.
func NewRateLimited(inner Service, requestsPerSecond float64, burst int) *RateLimited {
	if burst <= 0 {
		burst = 1
	}

	return &RateLimited{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

// Complete waits for rate-limit clearance, then delegates.
func (r *RateLimited) Complete(ctx context.Context, prompt string) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}

	return r.inner.Complete(ctx, prompt)
}

// Embed waits for rate-limit clearance, then delegates.
func (r *RateLimited) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	return r.inner.Embed(ctx, text)
}

// Available delegates availability checks without consuming tokens.
func (r *RateLimited) Available(ctx context.Context) bool {
	return r.inner.Available(ctx)
}
