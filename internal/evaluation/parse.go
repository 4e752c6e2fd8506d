package evaluation

import (
	"encoding/json"
	"regexp"
	"strings"
)

// parseComponents extracts a label-to-content mapping from raw model output.
// It tries a chain of increasingly forgiving parsers: strict JSON, then JSON
// recovered from surrounding prose and common syntax damage, then a plain
// key/value line scanner. The first parser to succeed wins; parsers are never
// merged.
func parseComponents(raw string) (ComponentMap, bool) {
	for _, parse := range []func(string) (ComponentMap, bool){
		parseComponentsStrict,
		parseComponentsRepaired,
		parseComponentsScanner,
	} {
		if structure, ok := parse(raw); ok && structure.Len() > 0 {
			return structure, true
		}
	}

	return ComponentMap{}, false
}

// parseComponentsStrict decodes a flat JSON object while preserving key
// order, which a plain map unmarshal would lose.
func parseComponentsStrict(raw string) (ComponentMap, bool) {
	decoder := json.NewDecoder(strings.NewReader(raw))

	token, err := decoder.Token()
	if err != nil {
		return ComponentMap{}, false
	}
	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return ComponentMap{}, false
	}

	var structure ComponentMap
	for decoder.More() {
		keyToken, err := decoder.Token()
		if err != nil {
			return ComponentMap{}, false
		}
		key, ok := keyToken.(string)
		if !ok {
			return ComponentMap{}, false
		}

		var value string
		if err := decoder.Decode(&value); err != nil {
			return ComponentMap{}, false
		}

		if err := structure.Add(Component{Label: key, Content: value}); err != nil {
			return ComponentMap{}, false
		}
	}

	return structure, true
}

var (
	codeFencePattern    = regexp.MustCompile("(?s)```(?:json)?(.*?)```")
	trailingCommaRegexp = regexp.MustCompile(`,\s*([}\]])`)
	keyValueLineRegexp  = regexp.MustCompile(`^\s*"?([A-Za-z][A-Za-z0-9 _-]*)"?\s*:\s*"?(.*?)"?,?\s*$`)
)

// parseComponentsRepaired recovers a JSON object embedded in prose or code
// fences and strips trailing commas before retrying the strict parser.
func parseComponentsRepaired(raw string) (ComponentMap, bool) {
	candidate := raw

	if match := codeFencePattern.FindStringSubmatch(candidate); len(match) == 2 {
		candidate = match[1]
	}

	start := strings.Index(candidate, "{")
	end := strings.LastIndex(candidate, "}")
	if start < 0 || end <= start {
		return ComponentMap{}, false
	}
	candidate = candidate[start : end+1]

	candidate = trailingCommaRegexp.ReplaceAllString(candidate, "$1")

	return parseComponentsStrict(candidate)
}

// parseComponentsScanner is the last resort: it walks the output line by line
// collecting anything that looks like a key/value pair.
func parseComponentsScanner(raw string) (ComponentMap, bool) {
	var structure ComponentMap

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line == "{" || line == "}" {
			continue
		}

		match := keyValueLineRegexp.FindStringSubmatch(line)
		if len(match) != 3 {
			continue
		}

		label := strings.TrimSpace(match[1])
		content := strings.TrimSpace(match[2])
		if content == "" {
			continue
		}

		if err := structure.Add(Component{Label: label, Content: content}); err != nil {
			continue
		}
	}

	return structure, structure.Len() > 0
}
