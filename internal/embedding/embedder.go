package embedding

import (
	"context"
	"math"
)

// Embedder turns text into a fixed-length numeric vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Cosine computes cosine similarity between two vectors, clamped to [0, 1].
// Mismatched lengths or zero vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}

	return sim
}
