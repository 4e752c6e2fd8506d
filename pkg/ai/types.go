package ai

import "context"

// Service is the boundary to the generative-model provider. Prompted
// completions return the raw model text; callers own parsing and must
// tolerate malformed output.
type Service interface {
	// Complete sends a prompt to the chat model and returns the raw response text.
	Complete(ctx context.Context, prompt string) (string, error)

	// Embed turns text into a fixed-length vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Available reports whether the provider is configured and reachable
	// enough to attempt a call. Callers select a fallback strategy when false.
	Available(ctx context.Context) bool
}
