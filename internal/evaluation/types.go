// Package evaluation implements the answer evaluation pipeline: decomposing
// answers into labeled components, aligning a candidate's text to the
// reference structure, and fusing similarity signals into a score vector.
package evaluation

import (
	"fmt"
	"strings"
)

// QuestionType selects the grading path for a question.
type QuestionType string

const (
	QuestionTypeText           QuestionType = "text"
	QuestionTypeNumeric        QuestionType = "numeric"
	QuestionTypeMultipleChoice QuestionType = "multiple_choice"
)

// AnswerText is one captured answer: either the reference key's or a
// candidate's. Immutable once captured.
type AnswerText struct {
	QuestionID string       `json:"question_id"`
	Text       string       `json:"text"`
	MaxPoints  float64      `json:"max_points,omitempty"`
	Type       QuestionType `json:"type,omitempty"`
}

// Component is one labeled part of a decomposed answer. The embedding is
// populated only on reference components, where it is computed once and
// cached for all subsequent scoring passes.
type Component struct {
	Label               string    `json:"label"`
	Content             string    `json:"content"`
	Embedding           []float32 `json:"embedding,omitempty"`
	RequiresQualitative bool      `json:"requires_qualitative_evaluation"`
}

// ComponentMap is an ordered mapping from component label to component
// content. Labels are unique within the map. Produced once per AnswerText;
// never mutated, only superseded by re-processing.
type ComponentMap struct {
	Components []Component `json:"components"`
}

// Add appends a component, rejecting duplicate or empty labels.
func (m *ComponentMap) Add(c Component) error {
	if strings.TrimSpace(c.Label) == "" {
		return fmt.Errorf("component label must not be empty")
	}
	if _, ok := m.Get(c.Label); ok {
		return fmt.Errorf("duplicate component label %q", c.Label)
	}

	m.Components = append(m.Components, c)
	return nil
}

// Get returns the component with the given label.
func (m ComponentMap) Get(label string) (Component, bool) {
	for _, c := range m.Components {
		if c.Label == label {
			return c, true
		}
	}

	return Component{}, false
}

// Labels returns the labels in insertion order.
func (m ComponentMap) Labels() []string {
	labels := make([]string, len(m.Components))
	for i, c := range m.Components {
		labels[i] = c.Label
	}

	return labels
}

// Len returns the number of components.
func (m ComponentMap) Len() int {
	return len(m.Components)
}

// QualitativeLabels returns the labels flagged for rubric-based evaluation.
func (m ComponentMap) QualitativeLabels() []string {
	var labels []string
	for _, c := range m.Components {
		if c.RequiresQualitative {
			labels = append(labels, c.Label)
		}
	}

	return labels
}

// AlignedComponent holds the candidate text matched to one reference label.
// Content is empty when nothing in the candidate answer matched.
type AlignedComponent struct {
	Label   string `json:"label"`
	Content string `json:"content"`
}

// AlignedComponentMap carries exactly the reference's label set, in the
// reference's order, each holding the best-matching candidate text.
type AlignedComponentMap struct {
	Components []AlignedComponent `json:"components"`
}

// Get returns the aligned content for a label.
func (m AlignedComponentMap) Get(label string) (string, bool) {
	for _, c := range m.Components {
		if c.Label == label {
			return c.Content, true
		}
	}

	return "", false
}

// Len returns the number of aligned components.
func (m AlignedComponentMap) Len() int {
	return len(m.Components)
}

// Empty reports whether every aligned value is blank, meaning the candidate
// did not attempt the question.
func (m AlignedComponentMap) Empty() bool {
	for _, c := range m.Components {
		if strings.TrimSpace(c.Content) != "" {
			return false
		}
	}

	return true
}

// Reference bundles the answer key's text, its published component structure
// with cached embeddings, and the cached full-text embedding. Read-only once
// published for an answer-key version; safe to share across concurrent
// scorers without locking.
type Reference struct {
	Answer    AnswerText   `json:"answer"`
	Structure ComponentMap `json:"structure"`
	Embedding []float32    `json:"embedding"`
}

// ScoreVector is the derived similarity bundle for one candidate answer.
// Recomputed whole on every grading pass, never partially updated.
type ScoreVector struct {
	LexicalSimilarity       float64   `json:"lexical_similarity"`
	EmbeddingSimilarity     float64   `json:"embedding_similarity"`
	ComponentScores         []float64 `json:"component_scores"`
	MeanComponentSimilarity float64   `json:"mean_component_similarity"`

	// Faults records which sub-computations degraded to 0.0 instead of
	// reporting a real value. A non-empty list is a signal, not an error.
	Faults []string `json:"faults,omitempty"`
}
