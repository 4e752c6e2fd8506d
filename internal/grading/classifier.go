package grading

// Classifier maps the three similarity signals to a normalized grade in
// [0, 1]. It is a swappable strategy: the contract is the 3-float input and a
// bounded output, not a specific model family.
type Classifier interface {
	Classify(lexical, embedding, structure float64) float64
}

// WeightedClassifier is the default strategy: a weighted blend of the three
// signals, trained offline and shipped as configuration.
type WeightedClassifier struct {
	LexicalWeight   float64
	EmbeddingWeight float64
	StructureWeight float64
}

// NewWeightedClassifier builds the default classifier. Non-positive weight
// sums fall back to an even split.
func NewWeightedClassifier(lexical, embedding, structure float64) WeightedClassifier {
	if lexical+embedding+structure <= 0 {
		lexical, embedding, structure = 1, 1, 1
	}

	return WeightedClassifier{
		LexicalWeight:   lexical,
		EmbeddingWeight: embedding,
		StructureWeight: structure,
	}
}

// Classify returns the weighted blend, clamped to [0, 1].
func (c WeightedClassifier) Classify(lexical, embedding, structure float64) float64 {
	total := c.LexicalWeight + c.EmbeddingWeight + c.StructureWeight
	blend := (lexical*c.LexicalWeight + embedding*c.EmbeddingWeight + structure*c.StructureWeight) / total

	if blend < 0 {
		return 0
	}
	if blend > 1 {
		return 1
	}

	return blend
}
