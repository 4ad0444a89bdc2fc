package profile

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestExtract_Markers(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		narrative string
		json      string
	}{
		{
			name:      "equals markers",
			raw:       "You are thoughtful.\n\n===JSON-START===\n{\"a\":1}\n===JSON-END===\nthanks",
			narrative: "You are thoughtful.",
			json:      `{"a":1}`,
		},
		{
			name:      "lower case dashes",
			raw:       "Narrative\n---json-start---\n{\"a\":1}\n---json-end---",
			narrative: "Narrative",
			json:      `{"a":1}`,
		},
		{
			name:      "underscore and hashes",
			raw:       "N\n### JSON_START ###\n{\"a\":1}\n### JSON_END ###",
			narrative: "N",
			json:      `{"a":1}`,
		},
		{
			name:      "fenced inside markers",
			raw:       "N\nJSON-START\n```json\n{\"a\":1}\n```\nJSON-END",
			narrative: "N",
			json:      `{"a":1}`,
		},
		{
			name:      "missing end marker takes the rest",
			raw:       "N\n===JSON-START===\n{\"a\":1, \"b\": [",
			narrative: "N",
			json:      `{"a":1, "b": [`,
		},
		{
			name:      "code fence fallback",
			raw:       "Some text\n```json\n{\"a\":1}\n```\nmore",
			narrative: "Some text",
			json:      `{"a":1}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex, err := Extract(tt.raw)
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if ex.Narrative != tt.narrative {
				t.Errorf("narrative = %q, want %q", ex.Narrative, tt.narrative)
			}
			if ex.JSONText != tt.json {
				t.Errorf("json = %q, want %q", ex.JSONText, tt.json)
			}
		})
	}
}

func TestExtract_NoJSON(t *testing.T) {
	for _, raw := range []string{
		"",
		"just a narrative with no structured part",
		"{\"a\": 1} but no fence around it",
		"```\nplain fence\n```",
	} {
		if _, err := Extract(raw); !errors.Is(err, ErrNoJSONFound) {
			t.Errorf("Extract(%q) error = %v, want ErrNoJSONFound", raw, err)
		}
	}
}

func TestExtract_InputTooLarge(t *testing.T) {
	raw := strings.Repeat("x", MaxInputChars) + "y"
	if _, err := Extract(raw); !errors.Is(err, ErrInputTooLarge) {
		t.Fatalf("error = %v, want ErrInputTooLarge", err)
	}
}

func TestExtract_NarrativeCleanup(t *testing.T) {
	raw := "\r\n  First\r\n\r\n\r\n\r\n\r\n\r\nSecond\n==========\nThird ~~~~~~\n===JSON-START===\n{}\n===JSON-END==="
	ex, err := Extract(raw)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	want := "First\n\n\nSecond\n===\nThird ~~~"
	if ex.Narrative != want {
		t.Errorf("narrative = %q, want %q", ex.Narrative, want)
	}
}

func TestExtract_NarrativeTruncated(t *testing.T) {
	raw := strings.Repeat("é", MaxNarrativeChars+100) + "\nJSON-START\n{}\nJSON-END"
	ex, err := Extract(raw)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if n := utf8.RuneCountInString(ex.Narrative); n != MaxNarrativeChars {
		t.Errorf("narrative length = %d runes, want %d", n, MaxNarrativeChars)
	}
}
