package profile

import (
	"regexp"
	"strings"
)

// RepairResult is the outcome of the repair cascade. Repair never fails:
// when nothing can be recovered it returns the emergency profile.
type RepairResult struct {
	Recovered  bool
	Confidence Confidence
	Stage      string
	JSON       string
	Data       ProfileData
}

// repairStage is a pure text transformation. ok is false when the stage
// does not apply to the text.
type repairStage struct {
	name  string
	lossy bool
	apply func(text string) (out string, ok bool)
}

// Order matters: each stage sees the output of the last stage that applied.
var repairStages = []repairStage{
	{name: "brace_isolation", apply: isolateBraces},
	{name: "duplicate_truncation", lossy: true, apply: truncateDuplicates},
	{name: "trailing_commas", apply: removeTrailingCommas},
	{name: "partial_salvage", lossy: true, apply: salvagePartial},
}

const emergencyStage = "emergency_fallback"

// Repair runs the cascade over text that failed to parse directly.
func Repair(text string) RepairResult {
	lossy := false
	for _, st := range repairStages {
		out, ok := st.apply(text)
		if !ok {
			continue
		}
		text = out
		lossy = lossy || st.lossy

		data, err := decodeProfile(text)
		if err != nil {
			continue
		}
		conf := ConfidenceFull
		if lossy {
			conf = ConfidencePartial
		}
		return RepairResult{Recovered: true, Confidence: conf, Stage: st.name, JSON: text, Data: data}
	}

	data, err := decodeProfile(emergencyJSON)
	if err != nil {
		return RepairResult{Confidence: ConfidenceEmergency, Stage: emergencyStage}
	}
	return RepairResult{Confidence: ConfidenceEmergency, Stage: emergencyStage, JSON: emergencyJSON, Data: data}
}

// matchBrace returns the index of the '}' closing the '{' at start, honouring
// JSON string literals, or -1 when the object never closes.
func matchBrace(text string, start int) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// isolateBraces keeps the span from the first '{' to its matching '}',
// dropping anything the generator wrapped around a complete object.
func isolateBraces(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	end := matchBrace(text, start)
	if end < 0 {
		return "", false
	}
	out := text[start : end+1]
	return out, out != text
}

// Generators sometimes restart the analysis after the terminal warning
// field. When the key following the warning already appeared earlier in the
// object, everything from there on is a repeat and is discarded.
var duplicateAfterWarningRe = regexp.MustCompile(
	`("mirroring_warning"\s*:\s*"(?:[^"\\]|\\.)*")\s*,\s*"(authenticity_score|attachment_style|core_traits|strengths|weaknesses|relational_patterns|cognitive_profile|affective_profile)"`,
)

func truncateDuplicates(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	for _, loc := range duplicateAfterWarningRe.FindAllStringSubmatchIndex(text, -1) {
		if loc[0] < start {
			continue
		}
		seen := topLevelKeys(text[start:loc[0]])
		if seen[text[loc[4]:loc[5]]] {
			return text[start:loc[3]] + "\n}", true
		}
	}
	return "", false
}

// topLevelKeys collects the keys of the object opening at text[0], reading
// no further than the end of text.
func topLevelKeys(text string) map[string]bool {
	keys := make(map[string]bool)
	depth := 0
	inString, escaped := false, false
	strStart := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
				if depth == 1 && isKey(text[i+1:]) {
					keys[text[strStart:i]] = true
				}
			}
			continue
		}
		switch c {
		case '"':
			inString = true
			strStart = i + 1
		case '{', '[':
			depth++
		case '}', ']':
			depth--
		}
	}
	return keys
}

// isKey reports whether a string literal ending just before rest is an
// object key, i.e. is followed by ':'.
func isKey(rest string) bool {
	rest = strings.TrimLeft(rest, " \t\r\n")
	return strings.HasPrefix(rest, ":")
}

// removeTrailingCommas drops commas directly followed (modulo whitespace)
// by '}' or ']' outside string literals.
func removeTrailingCommas(text string) (string, bool) {
	var b strings.Builder
	b.Grow(len(text))
	changed := false
	inString, escaped := false, false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			b.WriteByte(c)
			continue
		}
		if c == '"' {
			inString = true
		}
		if c == ',' {
			j := i + 1
			for j < len(text) && strings.IndexByte(" \t\r\n", text[j]) >= 0 {
				j++
			}
			if j < len(text) && (text[j] == '}' || text[j] == ']') {
				changed = true
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String(), changed
}

// salvageAnchors are sub-objects that, once complete, leave a usable prefix.
var salvageAnchors = []string{`"affective_profile"`, `"cognitive_profile"`}

const salvageWarning = "This profile was only partially recovered. Some sections were lost and the analysis should be regenerated before relying on it."

// salvagePartial cuts the text after the last complete anchor object and
// closes it with placeholders for the trailing fields that were lost.
func salvagePartial(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	for _, anchor := range salvageAnchors {
		idx := strings.LastIndex(text, anchor)
		if idx < start {
			continue
		}
		open := strings.IndexByte(text[idx+len(anchor):], '{')
		if open < 0 {
			continue
		}
		open += idx + len(anchor)
		if strings.TrimSpace(text[idx+len(anchor):open]) != ":" {
			continue
		}
		end := matchBrace(text, open)
		if end < 0 {
			continue
		}

		prefix := text[start : end+1]
		var b strings.Builder
		b.WriteString(prefix)
		if !strings.Contains(prefix, `"relational_patterns"`) {
			b.WriteString(`, "relational_patterns": []`)
		}
		if !strings.Contains(prefix, `"mirroring_warning"`) {
			b.WriteString(`, "mirroring_warning": "` + salvageWarning + `"`)
		}
		b.WriteString("\n}")
		return b.String(), true
	}
	return "", false
}

const emergencyJSON = `{
  "authenticity_score": 50,
  "attachment_style": "undetermined",
  "core_traits": ["Not recoverable from the submitted text"],
  "strengths": ["Not recoverable from the submitted text"],
  "weaknesses": ["Not recoverable from the submitted text"],
  "relational_patterns": [],
  "cognitive_profile": {"thinking_style": "unknown", "decision_making": "unknown", "blind_spots": []},
  "affective_profile": {"emotional_tone": "unknown", "regulation": "unknown", "triggers": []},
  "mirroring_warning": "The structured analysis could not be read. This placeholder profile should be regenerated before it is shared with anyone."
}`
