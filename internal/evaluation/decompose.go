package evaluation

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/gradewise/gradewise-api/pkg/ai"
)

// Decomposer splits an answer's text into labeled components. The primary
// path asks the generative model for a label-to-content JSON object; when the
// provider is unavailable or returns something unparsable, a deterministic
// heuristic fallback takes over. The fallback never fails: worst case it
// returns a single "full_answer" component.
type Decomposer struct {
	service     ai.Service
	minFragment int
	logger      zerolog.Logger
}

// NewDecomposer constructs a decomposer. service may be nil to force the
// heuristic path. minFragment is the minimum fragment length the fallback
// keeps; values below 1 use the default of 20.
func NewDecomposer(service ai.Service, minFragment int, logger zerolog.Logger) *Decomposer {
	if minFragment < 1 {
		minFragment = 20
	}

	return &Decomposer{
		service:     service,
		minFragment: minFragment,
		logger:      logger.With().Str("component", "decomposer").Logger(),
	}
}

// Decompose returns the component structure of text. When reference is
// non-nil the result uses exactly the reference's labels: unmatched labels
// hold empty content and invented extra labels are discarded. The error is
// non-nil only when the context is canceled mid-call.
func (d *Decomposer) Decompose(ctx context.Context, text string, reference *ComponentMap) (ComponentMap, error) {
	if d.service != nil && d.service.Available(ctx) {
		structure, ok := d.decomposeWithService(ctx, text, reference)
		if ok {
			return d.finalize(structure, reference), nil
		}
		if ctx.Err() != nil {
			return ComponentMap{}, ctx.Err()
		}
	}

	return d.finalize(d.fallback(text, reference), reference), nil
}

func (d *Decomposer) decomposeWithService(ctx context.Context, text string, reference *ComponentMap) (ComponentMap, bool) {
	prompt := buildDecomposePrompt(text, reference)

	raw, err := d.service.Complete(ctx, prompt)
	if err != nil {
		d.logger.Warn().Err(err).Msg("decomposition service call failed, using fallback")
		return ComponentMap{}, false
	}

	structure, ok := parseComponents(raw)
	if !ok {
		d.logger.Warn().Str("raw_prefix", prefix(raw, 120)).Msg("unparsable decomposition response, using fallback")
		return ComponentMap{}, false
	}

	if structure.Len() == 0 {
		return ComponentMap{}, false
	}

	return structure, true
}

// finalize enforces the output invariants: reference-label constraint when a
// reference is supplied, and the qualitative-evaluation classification, which
// is a fixed rule applied identically regardless of the backing service.
func (d *Decomposer) finalize(structure ComponentMap, reference *ComponentMap) ComponentMap {
	if reference != nil {
		constrained := ComponentMap{}
		for _, refComponent := range reference.Components {
			content := ""
			if c, ok := structure.Get(refComponent.Label); ok {
				content = c.Content
			}
			constrained.Components = append(constrained.Components, Component{
				Label:   refComponent.Label,
				Content: content,
			})
		}
		structure = constrained
	}

	for i := range structure.Components {
		structure.Components[i].RequiresQualitative = RequiresQualitativeEvaluation(structure.Components[i].Label)
	}

	return structure
}

func buildDecomposePrompt(text string, reference *ComponentMap) string {
	var b strings.Builder
	b.WriteString("Split the following exam answer into its conceptual components.\n")
	b.WriteString("Respond with a single JSON object mapping a short snake_case component label to the exact component text.\n")

	if reference != nil {
		b.WriteString("Use exactly these labels and no others; when no part of the answer fits a label, map it to an empty string:\n")
		for _, label := range reference.Labels() {
			b.WriteString("- ")
			b.WriteString(label)
			b.WriteString("\n")
		}
	} else {
		b.WriteString("Choose labels that describe the role of each part, such as definition, explanation, example or conclusion.\n")
	}

	b.WriteString("\nAnswer:\n")
	b.WriteString(text)
	b.WriteString("\n\nJSON:")

	return b.String()
}

// RequiresQualitativeEvaluation reports whether a component label denotes
// invented concrete content (an example, instance or scenario) that must be
// judged by rubric rather than by embedding similarity. Definitions, facts,
// explanations, opinions and conclusions never qualify.
func RequiresQualitativeEvaluation(label string) bool {
	normalized := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(label), "_", " "))

	excluded := []string{"definition", "fact", "explanation", "opinion", "conclusion"}
	for _, term := range excluded {
		if strings.Contains(normalized, term) {
			return false
		}
	}

	qualitative := []string{"example", "instance", "scenario", "illustration", "use case", "case study"}
	for _, term := range qualitative {
		if strings.Contains(normalized, term) {
			return true
		}
	}

	return false
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n]
}
