package profile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Confidence records how much repair was needed to recover the profile JSON.
type Confidence string

const (
	ConfidenceFull      Confidence = "full"
	ConfidencePartial   Confidence = "partial"
	ConfidenceEmergency Confidence = "emergency"
)

// AttachmentStyle is the closed set of attachment styles a profile may carry.
type AttachmentStyle string

const (
	AttachmentSecure       AttachmentStyle = "secure"
	AttachmentAnxious      AttachmentStyle = "anxious"
	AttachmentAvoidant     AttachmentStyle = "avoidant"
	AttachmentDisorganized AttachmentStyle = "disorganized"
	AttachmentUndetermined AttachmentStyle = "undetermined"
)

// Valid reports whether a is one of the known styles.
func (a AttachmentStyle) Valid() bool {
	switch a {
	case AttachmentSecure, AttachmentAnxious, AttachmentAvoidant, AttachmentDisorganized, AttachmentUndetermined:
		return true
	}
	return false
}

// Score is an integer score that tolerates the number shapes generators
// actually emit: 87, 87.4, "87". ProfileData holds it by pointer so a
// missing score stays distinguishable from zero.
type Score int

func (s *Score) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		return nil
	}
	raw = strings.Trim(raw, `"`)
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("score %s is not a number", string(b))
	}
	*s = Score(math.Round(f))
	return nil
}

// ProfileData is the machine-readable half of an ingested narrative.
type ProfileData struct {
	AuthenticityScore  *Score           `json:"authenticity_score"`
	AttachmentStyle    AttachmentStyle  `json:"attachment_style"`
	CoreTraits         []string         `json:"core_traits"`
	Strengths          []string         `json:"strengths"`
	Weaknesses         []string         `json:"weaknesses"`
	RelationalPatterns []string         `json:"relational_patterns"`
	Cognitive          CognitiveProfile `json:"cognitive_profile"`
	Affective          AffectiveProfile `json:"affective_profile"`
	MirroringWarning   string           `json:"mirroring_warning"`
}

// CognitiveProfile describes how the person thinks and decides.
type CognitiveProfile struct {
	ThinkingStyle  string   `json:"thinking_style"`
	DecisionMaking string   `json:"decision_making"`
	BlindSpots     []string `json:"blind_spots"`
}

// AffectiveProfile describes emotional tone and regulation.
type AffectiveProfile struct {
	EmotionalTone string   `json:"emotional_tone"`
	Regulation    string   `json:"regulation"`
	Triggers      []string `json:"triggers"`
}

// StructuredProfile is a user's validated profile as stored and served.
type StructuredProfile struct {
	UserID        string      `json:"user_id,omitempty"`
	NarrativeText string      `json:"narrative_text"`
	Data          ProfileData `json:"json"`
	Confidence    Confidence  `json:"confidence"`
	Validated     bool        `json:"validated"`
	RepairStage   string      `json:"repair_stage,omitempty"`
	CreatedAt     time.Time   `json:"created_at,omitzero"`
	UpdatedAt     time.Time   `json:"updated_at,omitzero"`
}

// decodeProfile parses text strictly: it must be a single JSON object with
// no repeated top-level keys, and every field must match its declared type.
func decodeProfile(text string) (ProfileData, error) {
	data := []byte(strings.TrimSpace(text))
	if len(data) == 0 || data[0] != '{' {
		return ProfileData{}, fmt.Errorf("profile JSON must be an object")
	}
	if err := checkDuplicateKeys(data); err != nil {
		return ProfileData{}, err
	}
	var p ProfileData
	if err := json.Unmarshal(data, &p); err != nil {
		return ProfileData{}, err
	}
	return p, nil
}

func checkDuplicateKeys(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return err
	}
	seen := make(map[string]bool)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected object key %v", tok)
		}
		if seen[key] {
			return fmt.Errorf("duplicate key %q", key)
		}
		seen[key] = true
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return err
		}
	}
	return nil
}
