package evaluation

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/gradewise/gradewise-api/pkg/ai"
)

// Aligner matches spans of a candidate's free-form answer to the reference's
// component labels. The mapping prompt carries only the label names and the
// candidate text, never the reference content, so the correct answer cannot
// leak into the candidate's score.
//
// The service mapping is authoritative only when it returns a well-formed map
// covering every reference label; anything less falls back entirely to
// positional assignment rather than blending the two.
type Aligner struct {
	service     ai.Service
	minFragment int
	logger      zerolog.Logger
}

// NewAligner constructs an aligner. service may be nil to force the
// positional path.
func NewAligner(service ai.Service, minFragment int, logger zerolog.Logger) *Aligner {
	if minFragment < 1 {
		minFragment = 20
	}

	return &Aligner{
		service:     service,
		minFragment: minFragment,
		logger:      logger.With().Str("component", "aligner").Logger(),
	}
}

// Align maps candidateText onto the reference's label set. The result always
// holds exactly the reference's labels in the reference's order; it never
// fails. An empty candidate yields all-empty values, which callers must treat
// as "not attempted" rather than a zero score to compute further.
func (a *Aligner) Align(ctx context.Context, reference ComponentMap, candidateText string) AlignedComponentMap {
	if strings.TrimSpace(candidateText) == "" {
		return emptyAlignment(reference)
	}

	if a.service != nil && a.service.Available(ctx) {
		if aligned, ok := a.alignWithService(ctx, reference, candidateText); ok {
			return aligned
		}
	}

	return a.alignPositionally(reference, candidateText)
}

func (a *Aligner) alignWithService(ctx context.Context, reference ComponentMap, candidateText string) (AlignedComponentMap, bool) {
	prompt := buildAlignPrompt(reference.Labels(), candidateText)

	raw, err := a.service.Complete(ctx, prompt)
	if err != nil {
		a.logger.Warn().Err(err).Msg("alignment service call failed, using positional fallback")
		return AlignedComponentMap{}, false
	}

	mapping, ok := parseComponents(raw)
	if !ok {
		a.logger.Warn().Str("raw_prefix", prefix(raw, 120)).Msg("unparsable alignment response, using positional fallback")
		return AlignedComponentMap{}, false
	}

	// Full coverage or nothing: a partial map is discarded whole.
	var aligned AlignedComponentMap
	for _, refComponent := range reference.Components {
		c, found := mapping.Get(refComponent.Label)
		if !found {
			return AlignedComponentMap{}, false
		}
		aligned.Components = append(aligned.Components, AlignedComponent{
			Label:   refComponent.Label,
			Content: strings.TrimSpace(c.Content),
		})
	}

	return aligned, true
}

// alignPositionally splits the candidate text into fragments and assigns them
// to the reference labels in order. When the counts disagree, as many leading
// labels as possible are filled and the remainder stays empty.
func (a *Aligner) alignPositionally(reference ComponentMap, candidateText string) AlignedComponentMap {
	fragments := splitFragments(candidateText, a.minFragment)
	if len(fragments) == 0 {
		fragments = []string{strings.TrimSpace(candidateText)}
	}

	var aligned AlignedComponentMap
	for i, refComponent := range reference.Components {
		content := ""
		if i < len(fragments) {
			content = fragments[i]
		}
		aligned.Components = append(aligned.Components, AlignedComponent{
			Label:   refComponent.Label,
			Content: content,
		})
	}

	return aligned
}

func buildAlignPrompt(labels []string, candidateText string) string {
	var b strings.Builder
	b.WriteString("A student answer must be split across the following answer parts.\n")
	b.WriteString("Respond with a single JSON object mapping every label below to the span of the student answer that belongs to it.\n")
	b.WriteString("Every label must appear in the object; map a label to an empty string when nothing fits it.\n\nLabels:\n")
	for _, label := range labels {
		b.WriteString("- ")
		b.WriteString(label)
		b.WriteString("\n")
	}
	b.WriteString("\nStudent answer:\n")
	b.WriteString(candidateText)
	b.WriteString("\n\nJSON:")

	return b.String()
}

func emptyAlignment(reference ComponentMap) AlignedComponentMap {
	var aligned AlignedComponentMap
	for _, refComponent := range reference.Components {
		aligned.Components = append(aligned.Components, AlignedComponent{Label: refComponent.Label})
	}

	return aligned
}
