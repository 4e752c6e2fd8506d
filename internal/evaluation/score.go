package evaluation

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/gradewise/gradewise-api/internal/embedding"
	"github.com/gradewise/gradewise-api/internal/textsim"
)

// Scorer fuses the similarity signals for one candidate answer: full-text
// embedding similarity, full-text lexical similarity and a per-component
// similarity vector reduced to its mean. The three aggregates are independent
// knobs: a failed sub-computation degrades that signal to 0.0 and is recorded
// as a fault, never silently dropped, and never blocks the other signals.
type Scorer struct {
	embedder embedding.Embedder
	aligner  *Aligner
	rubric   *RubricScorer
	logger   zerolog.Logger
}

// NewScorer constructs the similarity scorer.
func NewScorer(embedder embedding.Embedder, aligner *Aligner, rubric *RubricScorer, logger zerolog.Logger) *Scorer {
	return &Scorer{
		embedder: embedder,
		aligner:  aligner,
		rubric:   rubric,
		logger:   logger.With().Str("component", "similarity_scorer").Logger(),
	}
}

// Embedder exposes the embedder so reference publication can compute the
// cached embeddings with the same backend that scores against them.
func (s *Scorer) Embedder() embedding.Embedder {
	return s.embedder
}

// Score computes the full ScoreVector for candidate against the published
// reference, returning the alignment used so callers can persist it. The
// reference's embeddings are read-only and shared across concurrent calls.
func (s *Scorer) Score(ctx context.Context, ref Reference, candidate AnswerText) (ScoreVector, AlignedComponentMap) {
	var vector ScoreVector

	vector.EmbeddingSimilarity = s.fullEmbeddingSimilarity(ctx, ref, candidate, &vector)
	vector.LexicalSimilarity = textsim.TFIDFSimilarity(candidate.Text, ref.Answer.Text)

	aligned := s.aligner.Align(ctx, ref.Structure, candidate.Text)
	vector.ComponentScores = s.componentScores(ctx, ref, aligned, &vector)
	vector.MeanComponentSimilarity = mean(vector.ComponentScores)

	return vector, aligned
}

func (s *Scorer) fullEmbeddingSimilarity(ctx context.Context, ref Reference, candidate AnswerText, vector *ScoreVector) float64 {
	if strings.TrimSpace(candidate.Text) == "" {
		return 0
	}

	candidateVec, err := s.embedder.Embed(ctx, candidate.Text)
	if err != nil {
		s.fault(vector, "embedding_similarity", err)
		return 0
	}

	return embedding.Cosine(candidateVec, ref.Embedding)
}

// componentScores walks the reference labels in order. Empty aligned content
// scores 0.0 without any external call: there is nothing to evaluate and no
// reason to pay for it.
func (s *Scorer) componentScores(ctx context.Context, ref Reference, aligned AlignedComponentMap, vector *ScoreVector) []float64 {
	scores := make([]float64, 0, ref.Structure.Len())

	for _, refComponent := range ref.Structure.Components {
		content, _ := aligned.Get(refComponent.Label)
		if strings.TrimSpace(content) == "" {
			scores = append(scores, 0)
			continue
		}

		if refComponent.RequiresQualitative {
			score, err := s.rubric.Score(ctx, refComponent.Label, content)
			if err != nil {
				s.fault(vector, "component:"+refComponent.Label, err)
				scores = append(scores, 0)
				continue
			}
			scores = append(scores, score)
			continue
		}

		if len(refComponent.Embedding) == 0 {
			s.fault(vector, "component:"+refComponent.Label, fmt.Errorf("reference embedding missing"))
			scores = append(scores, 0)
			continue
		}

		contentVec, err := s.embedder.Embed(ctx, content)
		if err != nil {
			s.fault(vector, "component:"+refComponent.Label, err)
			scores = append(scores, 0)
			continue
		}

		scores = append(scores, embedding.Cosine(contentVec, refComponent.Embedding))
	}

	return scores
}

func (s *Scorer) fault(vector *ScoreVector, signal string, err error) {
	s.logger.Warn().Err(err).Str("signal", signal).Msg("similarity signal degraded to 0.0")
	vector.Faults = append(vector.Faults, signal)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values))
}
