package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/gradewise/gradewise-api/pkg/ai"
)

// RubricScorer judges components whose content is invented by the candidate
// (examples, scenarios) and therefore cannot be compared to the reference by
// embedding similarity. The model grades against a qualitative rubric and
// returns a normalized score.
type RubricScorer struct {
	service ai.Service
	logger  zerolog.Logger
}

// NewRubricScorer constructs the scorer.
func NewRubricScorer(service ai.Service, logger zerolog.Logger) *RubricScorer {
	return &RubricScorer{
		service: service,
		logger:  logger.With().Str("component", "rubric_scorer").Logger(),
	}
}

// Score evaluates the candidate's content for one component and returns a
// score in [0, 1]. The label describes what kind of content was requested.
func (r *RubricScorer) Score(ctx context.Context, label, content string) (float64, error) {
	if strings.TrimSpace(content) == "" {
		return 0, nil
	}

	if r.service == nil || !r.service.Available(ctx) {
		return 0, fmt.Errorf("rubric service unavailable")
	}

	raw, err := r.service.Complete(ctx, buildRubricPrompt(label, content))
	if err != nil {
		return 0, fmt.Errorf("rubric evaluation: %w", err)
	}

	score, ok := parseRubricScore(raw)
	if !ok {
		return 0, fmt.Errorf("unparsable rubric response")
	}

	return clamp01(score), nil
}

func buildRubricPrompt(label, content string) string {
	var b strings.Builder
	b.WriteString("You are grading one part of a student's exam answer.\n")
	b.WriteString("The part is supposed to contain: ")
	b.WriteString(strings.ReplaceAll(label, "_", " "))
	b.WriteString("\n\nGrade whether the student's text is a valid, relevant and concrete instance of what was asked.\n")
	b.WriteString("Respond with a JSON object of the form {\"score\": <number between 0 and 1>}.\n\nStudent text:\n")
	b.WriteString(content)
	b.WriteString("\n\nJSON:")

	return b.String()
}

var rubricScoreRegexp = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// parseRubricScore accepts strict JSON first, then falls back to the first
// numeric token anywhere in the response. Scores that look like percentages
// or 0-10 scales are normalized.
func parseRubricScore(raw string) (float64, bool) {
	var payload struct {
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err == nil {
		return normalizeRubricScale(payload.Score), true
	}

	match := rubricScoreRegexp.FindString(raw)
	if match == "" {
		return 0, false
	}

	score, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}

	return normalizeRubricScale(score), true
}

func normalizeRubricScale(score float64) float64 {
	switch {
	case score > 10:
		return score / 100
	case score > 1:
		return score / 10
	default:
		return score
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}

	return v
}
