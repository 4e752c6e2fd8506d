package evaluation

import (
	"fmt"
	"regexp"
	"strings"
)

var fragmentBoundaryRegexp = regexp.MustCompile(`\n\s*\n|\n\s*(?:[a-zA-Z][.)]\s+|\d+[.)]\s+|[-*•]\s+)`)

// fallback is the deterministic decomposition used when the generative
// service cannot produce a usable structure. It splits on blank lines and
// list markers, drops fragments shorter than the minimum length, and when
// fewer than two fragments survive, bisects the text by sentence count. The
// single worst case is one "full_answer" component holding the whole text.
func (d *Decomposer) fallback(text string, reference *ComponentMap) ComponentMap {
	fragments := splitFragments(text, d.minFragment)

	if reference != nil {
		if len(fragments) == 0 && strings.TrimSpace(text) != "" {
			fragments = []string{strings.TrimSpace(text)}
		}
		return positionalStructure(*reference, fragments)
	}

	if len(fragments) >= 2 {
		var structure ComponentMap
		for i, fragment := range fragments {
			structure.Components = append(structure.Components, Component{
				Label:   fmt.Sprintf("part_%d", i+1),
				Content: fragment,
			})
		}
		return structure
	}

	if intro, rest, ok := bisectBySentences(text); ok {
		return ComponentMap{Components: []Component{
			{Label: "introduction", Content: intro},
			{Label: "main_content", Content: rest},
		}}
	}

	return ComponentMap{Components: []Component{
		{Label: "full_answer", Content: text},
	}}
}

func splitFragments(text string, minLength int) []string {
	var fragments []string
	for _, fragment := range fragmentBoundaryRegexp.Split(text, -1) {
		fragment = strings.TrimSpace(fragment)
		if len(fragment) >= minLength {
			fragments = append(fragments, fragment)
		}
	}

	return fragments
}

var sentenceEndRegexp = regexp.MustCompile(`[.!?]+\s+`)

// bisectBySentences splits the text into two halves by sentence count.
func bisectBySentences(text string) (string, string, bool) {
	text = strings.TrimSpace(text)

	ends := sentenceEndRegexp.FindAllStringIndex(text, -1)
	if len(ends) < 1 {
		return "", "", false
	}

	mid := ends[(len(ends)-1)/2]
	intro := strings.TrimSpace(text[:mid[1]])
	rest := strings.TrimSpace(text[mid[1]:])
	if intro == "" || rest == "" {
		return "", "", false
	}

	return intro, rest, true
}

// positionalStructure assigns fragments to reference labels in order,
// leaving trailing labels empty when fragments run out.
func positionalStructure(reference ComponentMap, fragments []string) ComponentMap {
	var structure ComponentMap
	for i, refComponent := range reference.Components {
		content := ""
		if i < len(fragments) {
			content = fragments[i]
		}
		structure.Components = append(structure.Components, Component{
			Label:   refComponent.Label,
			Content: content,
		})
	}

	return structure
}
