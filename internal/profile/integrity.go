package profile

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrIntegrityViolation is matched by every *IntegrityError.
var ErrIntegrityViolation = errors.New("profile failed integrity checks")

// IntegrityError lists every rule a profile broke.
type IntegrityError struct {
	Reasons []string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("profile failed integrity checks: %s", strings.Join(e.Reasons, "; "))
}

func (e *IntegrityError) Is(target error) bool {
	return target == ErrIntegrityViolation
}

// Rules holds the configurable integrity thresholds.
type Rules struct {
	MaxAuthenticity int
	MinWarningChars int
	MaxListItems    int
	MaxItemChars    int
}

// DefaultRules returns the thresholds used when nothing is configured.
func DefaultRules() Rules {
	return Rules{
		MaxAuthenticity: 95,
		MinWarningChars: 40,
		MaxListItems:    12,
		MaxItemChars:    300,
	}
}

// Validator checks decoded profiles. It never edits what it checks.
type Validator struct {
	rules Rules
}

func NewValidator(rules Rules) *Validator {
	d := DefaultRules()
	if rules.MaxAuthenticity <= 0 {
		rules.MaxAuthenticity = d.MaxAuthenticity
	}
	if rules.MinWarningChars <= 0 {
		rules.MinWarningChars = d.MinWarningChars
	}
	if rules.MaxListItems <= 0 {
		rules.MaxListItems = d.MaxListItems
	}
	if rules.MaxItemChars <= 0 {
		rules.MaxItemChars = d.MaxItemChars
	}
	return &Validator{rules: rules}
}

// Validate returns nil when every rule passes, or an *IntegrityError naming
// all the failures.
func (v *Validator) Validate(p ProfileData) error {
	var reasons []string
	fail := func(format string, args ...any) {
		reasons = append(reasons, fmt.Sprintf(format, args...))
	}

	switch score := p.AuthenticityScore; {
	case score == nil:
		fail("authenticity_score is required")
	case *score < 0 || *score > 100:
		fail("authenticity_score %d outside 0-100", *score)
	case int(*score) > v.rules.MaxAuthenticity:
		fail("authenticity_score %d exceeds ceiling %d", *score, v.rules.MaxAuthenticity)
	}

	// undetermined is reserved for the emergency placeholder, which is never validated.
	if !p.AttachmentStyle.Valid() || p.AttachmentStyle == AttachmentUndetermined {
		fail("attachment_style %q is not one of secure, anxious, avoidant, disorganized", p.AttachmentStyle)
	}

	lists := []struct {
		name     string
		items    []string
		required bool
	}{
		{"core_traits", p.CoreTraits, true},
		{"strengths", p.Strengths, true},
		{"weaknesses", p.Weaknesses, true},
		{"relational_patterns", p.RelationalPatterns, false},
		{"cognitive_profile.blind_spots", p.Cognitive.BlindSpots, false},
		{"affective_profile.triggers", p.Affective.Triggers, false},
	}
	for _, l := range lists {
		if l.required && len(l.items) == 0 {
			fail("%s must not be empty", l.name)
		}
		if len(l.items) > v.rules.MaxListItems {
			fail("%s has %d entries, max %d", l.name, len(l.items), v.rules.MaxListItems)
		}
		for i, item := range l.items {
			if n := utf8.RuneCountInString(item); n > v.rules.MaxItemChars {
				fail("%s[%d] is %d chars, max %d", l.name, i, n, v.rules.MaxItemChars)
			}
		}
	}

	if len(p.Strengths) >= 5 && len(p.Weaknesses) <= 1 {
		fail("implausible balance: %d strengths against %d weaknesses", len(p.Strengths), len(p.Weaknesses))
	}

	if n := utf8.RuneCountInString(strings.TrimSpace(p.MirroringWarning)); n < v.rules.MinWarningChars {
		fail("mirroring_warning is %d chars, min %d", n, v.rules.MinWarningChars)
	}

	if len(reasons) > 0 {
		return &IntegrityError{Reasons: reasons}
	}
	return nil
}
