package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/gradewise/gradewise-api/pkg/ai"
)

// ServiceEmbedder computes embeddings through the generative-model provider.
type ServiceEmbedder struct {
	service ai.Service
}

// NewServiceEmbedder wraps the provider service.
func NewServiceEmbedder(service ai.Service) *ServiceEmbedder {
	return &ServiceEmbedder{service: service}
}

// Embed delegates to the provider. Whitespace-only text short-circuits to an
// error so callers never spend a request on emptiness.
func (e *ServiceEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("cannot embed empty text")
	}

	return e.service.Embed(ctx, text)
}
