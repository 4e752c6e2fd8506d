// Package textsim provides lexical text similarity via TF-IDF weighted
// cosine distance over a two-document corpus.
package textsim

import (
	"math"
	"strings"
	"unicode"
)

// TFIDFSimilarity returns the TF-IDF cosine similarity of two raw texts in
// [0, 1]. Either text empty or whitespace-only yields 0.
func TFIDFSimilarity(a, b string) float64 {
	tokensA := tokenize(a)
	tokensB := tokenize(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	tfA := termFrequencies(tokensA)
	tfB := termFrequencies(tokensB)

	vocabulary := make(map[string]struct{}, len(tfA)+len(tfB))
	for term := range tfA {
		vocabulary[term] = struct{}{}
	}
	for term := range tfB {
		vocabulary[term] = struct{}{}
	}

	var dot, normA, normB float64
	for term := range vocabulary {
		idf := inverseDocumentFrequency(term, tfA, tfB)
		weightA := tfA[term] * idf
		weightB := tfB[term] * idf
		dot += weightA * weightB
		normA += weightA * weightA
		normB += weightB * weightB
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim < 0 {
		sim = 0
	}
	if sim > 1 {
		sim = 1
	}

	return sim
}

func termFrequencies(tokens []string) map[string]float64 {
	counts := make(map[string]float64, len(tokens))
	for _, token := range tokens {
		counts[token]++
	}

	total := float64(len(tokens))
	for term := range counts {
		counts[term] /= total
	}

	return counts
}

// inverseDocumentFrequency uses smoothed IDF over the two-document corpus so
// shared terms still carry weight instead of zeroing out.
func inverseDocumentFrequency(term string, tfA, tfB map[string]float64) float64 {
	df := 0
	if _, ok := tfA[term]; ok {
		df++
	}
	if _, ok := tfB[term]; ok {
		df++
	}

	return math.Log(float64(2+1)/float64(df+1)) + 1
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
