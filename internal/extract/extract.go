// Package extract defines the text-extraction boundary: turning a raw
// submission artifact into per-question answer text. OCR-style extractors
// live behind the same interface; the core only consumes the contract.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
)

// ExtractionError is the typed failure for text extraction. Extraction either
// yields a complete answer mapping or this error; it never returns partial or
// corrupt output silently.
type ExtractionError struct {
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("text extraction failed: %s: %v", e.Reason, e.Err)
	}

	return fmt.Sprintf("text extraction failed: %s", e.Reason)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Extractor turns a raw artifact into a mapping of question id to answer
// text.
type Extractor interface {
	Extract(ctx context.Context, artifact []byte) (map[string]string, error)
}

// JSONExtractor handles artifacts that are already textual: a JSON object
// keyed by question id whose values are either a raw answer string or an
// object with an "answer" field.
type JSONExtractor struct{}

// NewJSONExtractor constructs the extractor.
func NewJSONExtractor() *JSONExtractor {
	return &JSONExtractor{}
}

// Extract parses the artifact. Both answer forms may be mixed in one
// document.
func (e *JSONExtractor) Extract(_ context.Context, artifact []byte) (map[string]string, error) {
	if len(artifact) == 0 {
		return nil, &ExtractionError{Reason: "empty artifact"}
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(artifact, &raw); err != nil {
		return nil, &ExtractionError{Reason: "artifact is not a JSON object", Err: err}
	}

	answers := make(map[string]string, len(raw))
	for questionID, value := range raw {
		var direct string
		if err := json.Unmarshal(value, &direct); err == nil {
			answers[questionID] = direct
			continue
		}

		var wrapped struct {
			Answer string `json:"answer"`
		}
		if err := json.Unmarshal(value, &wrapped); err == nil {
			answers[questionID] = wrapped.Answer
			continue
		}

		return nil, &ExtractionError{Reason: fmt.Sprintf("unsupported answer shape for question %q", questionID)}
	}

	return answers, nil
}
