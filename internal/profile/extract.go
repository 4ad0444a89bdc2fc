package profile

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// MaxInputChars bounds the raw text accepted for ingestion.
	MaxInputChars = 50_000
	// MaxNarrativeChars bounds the stored narrative portion.
	MaxNarrativeChars = 5_000
)

var (
	ErrNoJSONFound       = errors.New("no JSON block found: expected content between JSON-START and JSON-END markers")
	ErrInputTooLarge     = errors.New("input exceeds 50000 characters")
	ErrUnrecoverableJSON = errors.New("profile JSON could not be recovered")
)

var (
	markerPunct   = `[=\-#*_~<>\[\]|]*`
	jsonStartRe   = regexp.MustCompile(`(?i)` + markerPunct + `[ \t]*json[ _-]?start[ \t]*` + markerPunct)
	jsonEndRe     = regexp.MustCompile(`(?i)` + markerPunct + `[ \t]*json[ _-]?end[ \t]*` + markerPunct)
	codeFenceRe   = regexp.MustCompile("(?i)```json[ \t]*\n?")
	blankRunRe    = regexp.MustCompile(`(\n[ \t]*){4,}`)
	markerRunRe   = regexp.MustCompile(`[=\-*#_~]{4,}`)
	fenceLineTrim = regexp.MustCompile("(?i)^```(?:json)?[ \t]*\n?|\n?```[ \t]*$")
)

// Extraction is the raw split of an ingested text.
type Extraction struct {
	Narrative string
	JSONText  string
}

// Extract splits raw generator output into its narrative and the fenced JSON
// portion. A start marker without a matching end marker takes the rest of
// the text, since generators are often cut off mid-object.
func Extract(raw string) (Extraction, error) {
	if utf8.RuneCountInString(raw) > MaxInputChars {
		return Extraction{}, ErrInputTooLarge
	}

	if loc := jsonStartRe.FindStringIndex(raw); loc != nil {
		rest := raw[loc[1]:]
		body := rest
		if end := jsonEndRe.FindStringIndex(rest); end != nil {
			body = rest[:end[0]]
		}
		return Extraction{
			Narrative: cleanNarrative(raw[:loc[0]]),
			JSONText:  stripCodeFence(body),
		}, nil
	}

	if loc := codeFenceRe.FindStringIndex(raw); loc != nil {
		rest := raw[loc[1]:]
		body := rest
		if end := strings.Index(rest, "```"); end >= 0 {
			body = rest[:end]
		}
		return Extraction{
			Narrative: cleanNarrative(raw[:loc[0]]),
			JSONText:  strings.TrimSpace(body),
		}, nil
	}

	return Extraction{}, ErrNoJSONFound
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	return strings.TrimSpace(fenceLineTrim.ReplaceAllString(s, ""))
}

func cleanNarrative(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.TrimSpace(s)
	s = blankRunRe.ReplaceAllString(s, "\n\n\n")
	s = markerRunRe.ReplaceAllStringFunc(s, func(run string) string {
		return run[:3]
	})
	return truncateRunes(s, MaxNarrativeChars)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n]))
}
