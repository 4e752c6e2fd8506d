// Package grading turns similarity scores into predicted grades. Exact-match
// and numeric questions take deterministic fast paths; free-text questions go
// through a trained classifier over the similarity signals.
package grading

import (
	"math"
	"regexp"
	"strconv"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/gradewise/gradewise-api/internal/evaluation"
)

// DefaultMaxPoints is assumed when a question carries no explicit maximum.
const DefaultMaxPoints = 10.0

// Prediction is the predictor's output for one question.
type Prediction struct {
	Score       float64 `json:"score"`
	Normalized  float64 `json:"normalized"`
	Label       string  `json:"label"`
	Feedback    string  `json:"feedback"`
	Confidence  float64 `json:"confidence"`
	NeedsReview bool    `json:"needs_review"`
}

// Predictor maps score vectors (or raw answers, for the fast paths) to
// predicted grades.
type Predictor struct {
	classifier          Classifier
	templates           FeedbackTemplates
	confidenceThreshold float64
	borderlineLow       float64
	borderlineHigh      float64
	numericTolerance    float64
	logger              zerolog.Logger
}

// Options tune the predictor. Zero values select the defaults.
type Options struct {
	ConfidenceThreshold float64
	BorderlineLow       float64
	BorderlineHigh      float64
	NumericTolerance    float64
	Templates           *FeedbackTemplates
}

// NewPredictor constructs a predictor around the given classifier strategy.
func NewPredictor(classifier Classifier, opts Options, logger zerolog.Logger) *Predictor {
	if opts.ConfidenceThreshold <= 0 {
		opts.ConfidenceThreshold = 0.6
	}
	if opts.BorderlineLow <= 0 {
		opts.BorderlineLow = 0.4
	}
	if opts.BorderlineHigh <= 0 {
		opts.BorderlineHigh = 0.6
	}
	if opts.NumericTolerance <= 0 {
		opts.NumericTolerance = 0.05
	}

	templates := DefaultFeedbackTemplates()
	if opts.Templates != nil {
		templates = *opts.Templates
	}

	return &Predictor{
		classifier:          classifier,
		templates:           templates,
		confidenceThreshold: opts.ConfidenceThreshold,
		borderlineLow:       opts.BorderlineLow,
		borderlineHigh:      opts.BorderlineHigh,
		numericTolerance:    opts.NumericTolerance,
		logger:              logger.With().Str("component", "grade_predictor").Logger(),
	}
}

// Predict grades one question. For text questions the score vector drives the
// classifier; for multiple choice and numeric questions the raw answers decide
// directly and the vector is ignored.
func (p *Predictor) Predict(questionType evaluation.QuestionType, vector evaluation.ScoreVector, referenceText, candidateText string, maxPoints float64) Prediction {
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}

	switch questionType {
	case evaluation.QuestionTypeMultipleChoice:
		return p.predictExactMatch(referenceText, candidateText, maxPoints)
	case evaluation.QuestionTypeNumeric:
		return p.predictNumeric(referenceText, candidateText, maxPoints)
	default:
		return p.predictText(vector, maxPoints)
	}
}

// predictExactMatch awards full or zero credit on a normalized
// case-insensitive match.
func (p *Predictor) predictExactMatch(referenceText, candidateText string, maxPoints float64) Prediction {
	if normalizeAnswer(candidateText) == normalizeAnswer(referenceText) && normalizeAnswer(referenceText) != "" {
		return p.allOrNothing(1, maxPoints)
	}

	return p.allOrNothing(0, maxPoints)
}

var numericTokenRegexp = regexp.MustCompile(`-?\d+\.?\d*`)

// predictNumeric extracts the first numeric token from each side and awards
// full credit within the relative tolerance. A missing token on either side
// means zero credit; it never raises.
func (p *Predictor) predictNumeric(referenceText, candidateText string, maxPoints float64) Prediction {
	correct, okRef := firstNumericToken(referenceText)
	student, okCand := firstNumericToken(candidateText)
	if !okRef || !okCand {
		return p.allOrNothing(0, maxPoints)
	}

	tolerance := p.numericTolerance * math.Abs(correct)
	if math.Abs(student-correct) <= tolerance {
		return p.allOrNothing(1, maxPoints)
	}

	return p.allOrNothing(0, maxPoints)
}

func (p *Predictor) predictText(vector evaluation.ScoreVector, maxPoints float64) Prediction {
	normalized := p.classifier.Classify(
		vector.LexicalSimilarity,
		vector.EmbeddingSimilarity,
		vector.MeanComponentSimilarity,
	)

	confidence := p.confidence(vector)

	return Prediction{
		Score:       normalized * maxPoints,
		Normalized:  normalized,
		Label:       p.templates.Label(normalized),
		Feedback:    p.templates.For(normalized),
		Confidence:  confidence,
		NeedsReview: p.needsReview(confidence, vector),
	}
}

// confidence reflects how far the embedding and component signals sit from
// the ambiguous middle: a strongly similar or strongly dissimilar answer is
// an easy call either way.
func (p *Predictor) confidence(vector evaluation.ScoreVector) float64 {
	blend := (vector.EmbeddingSimilarity + vector.MeanComponentSimilarity) / 2
	confidence := 2 * math.Abs(blend-0.5)
	if confidence > 1 {
		confidence = 1
	}

	return confidence
}

func (p *Predictor) needsReview(confidence float64, vector evaluation.ScoreVector) bool {
	if confidence < p.confidenceThreshold {
		return true
	}

	for _, score := range vector.ComponentScores {
		if score >= p.borderlineLow && score <= p.borderlineHigh {
			return true
		}
	}

	return len(vector.Faults) > 0
}

func (p *Predictor) allOrNothing(normalized float64, maxPoints float64) Prediction {
	return Prediction{
		Score:      normalized * maxPoints,
		Normalized: normalized,
		Label:      p.templates.Label(normalized),
		Feedback:   p.templates.For(normalized),
		Confidence: 1,
	}
}

// normalizeAnswer strips punctuation, casefolds and collapses whitespace.
func normalizeAnswer(s string) string {
	out := make([]rune, 0, len(s))
	pendingSpace := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			pendingSpace = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			// dropped
		default:
			if pendingSpace && len(out) > 0 {
				out = append(out, ' ')
			}
			pendingSpace = false
			out = append(out, unicode.ToLower(r))
		}
	}

	return string(out)
}

func firstNumericToken(s string) (float64, bool) {
	match := numericTokenRegexp.FindString(s)
	if match == "" {
		return 0, false
	}

	value, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}

	return value, true
}
