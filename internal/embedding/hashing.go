package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const defaultHashingDim = 256

// HashingEmbedder is a deterministic, offline embedder that feature-hashes
// tokens into a fixed-length normalized vector. It backs the degraded mode
// when the embedding provider is unavailable and keeps scoring deterministic
// in tests. Same input always yields the same vector.
type HashingEmbedder struct {
	dim int
}

// NewHashingEmbedder creates an embedder with the given dimensionality.
func NewHashingEmbedder(dim int) *HashingEmbedder {
	if dim <= 0 {
		dim = defaultHashingDim
	}

	return &HashingEmbedder{dim: dim}
}

// Embed hashes each token into a bucket and L2-normalizes the result.
func (e *HashingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("cannot embed empty text")
	}

	vec := make([]float32, e.dim)
	for _, token := range tokens {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		sum := h.Sum32()
		bucket := int(sum % uint32(e.dim))

		// Sign bit from the hash spreads tokens across both directions so
		// unrelated texts do not all collapse toward positive similarity.
		sign := float32(1)
		if sum&0x80000000 != 0 {
			sign = -1
		}
		vec[bucket] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return nil, fmt.Errorf("cannot embed empty text")
	}

	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}

	return vec, nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
