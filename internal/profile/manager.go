package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kalambet/mirror/internal/storage"
)

var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrNotVisible      = errors.New("profile not visible: mirror access has not been granted")
)

// ProfileStore defines the storage operations the Manager needs.
// Implemented by storage.Store.
type ProfileStore interface {
	SaveProfile(p storage.ProfileRecord) error
	GetProfile(userID string) (storage.ProfileRecord, error)
}

// AccessChecker reports whether viewer may see owner's profile.
// Implemented by requests.MirrorService.
type AccessChecker interface {
	HasAccess(ctx context.Context, viewer, owner string) (bool, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Manager turns raw generator output into stored structured profiles and
// serves them back, gated by mirror access.
type Manager struct {
	store     ProfileStore
	access    AccessChecker
	validator *Validator
	clock     Clock
	logger    *slog.Logger
}

// NewManager creates a Manager. access may be nil, in which case only owners
// can read their own profile.
func NewManager(store ProfileStore, access AccessChecker, rules Rules) *Manager {
	return NewManagerWithClock(store, access, rules, realClock{})
}

// NewManagerWithClock creates a Manager with a custom clock (for testing).
func NewManagerWithClock(store ProfileStore, access AccessChecker, rules Rules, clock Clock) *Manager {
	return &Manager{
		store:     store,
		access:    access,
		validator: NewValidator(rules),
		clock:     clock,
		logger:    slog.Default(),
	}
}

// Parse runs extraction, repair and integrity checks without storing anything.
// An emergency profile is returned unvalidated rather than as an error, so the
// caller can tell the user to regenerate.
func (m *Manager) Parse(raw string) (StructuredProfile, error) {
	ex, err := Extract(raw)
	if err != nil {
		return StructuredProfile{}, err
	}

	sp := StructuredProfile{NarrativeText: ex.Narrative}
	if data, err := decodeProfile(ex.JSONText); err == nil {
		sp.Data = data
		sp.Confidence = ConfidenceFull
	} else {
		res := Repair(ex.JSONText)
		if res.JSON == "" {
			return StructuredProfile{}, ErrUnrecoverableJSON
		}
		m.logger.Info("profile json repaired", "stage", res.Stage, "confidence", res.Confidence, "parse_error", err)
		sp.Data = res.Data
		sp.Confidence = res.Confidence
		sp.RepairStage = res.Stage
	}

	if sp.Confidence == ConfidenceEmergency {
		return sp, nil
	}
	if err := m.validator.Validate(sp.Data); err != nil {
		return StructuredProfile{}, err
	}
	sp.Validated = true
	return sp, nil
}

// Ingest parses raw and replaces userID's current profile with the result.
func (m *Manager) Ingest(userID, raw string) (StructuredProfile, error) {
	sp, err := m.Parse(raw)
	if err != nil {
		return StructuredProfile{}, err
	}
	sp.UserID = userID

	body, err := json.Marshal(sp.Data)
	if err != nil {
		return StructuredProfile{}, fmt.Errorf("marshalling profile: %w", err)
	}
	now := m.clock.Now().UTC()
	createdAt := now
	if prev, err := m.store.GetProfile(userID); err == nil {
		createdAt = prev.CreatedAt
	} else if !errors.Is(err, storage.ErrNotFound) {
		return StructuredProfile{}, fmt.Errorf("loading previous profile: %w", err)
	}

	rec := storage.ProfileRecord{
		UserID:        userID,
		NarrativeText: sp.NarrativeText,
		ProfileJSON:   string(body),
		Confidence:    string(sp.Confidence),
		Validated:     sp.Validated,
		CreatedAt:     createdAt,
		UpdatedAt:     now,
	}
	if err := m.store.SaveProfile(rec); err != nil {
		return StructuredProfile{}, fmt.Errorf("saving profile: %w", err)
	}
	sp.CreatedAt = createdAt
	sp.UpdatedAt = now
	return sp, nil
}

// IngestPDF extracts the text of a PDF export and ingests it.
func (m *Manager) IngestPDF(userID string, data []byte) (StructuredProfile, error) {
	text, err := ExtractPDFText(data)
	if err != nil {
		return StructuredProfile{}, err
	}
	return m.Ingest(userID, text)
}

// Get returns userID's stored profile.
func (m *Manager) Get(userID string) (StructuredProfile, error) {
	rec, err := m.store.GetProfile(userID)
	if errors.Is(err, storage.ErrNotFound) {
		return StructuredProfile{}, ErrProfileNotFound
	}
	if err != nil {
		return StructuredProfile{}, fmt.Errorf("loading profile: %w", err)
	}
	sp := StructuredProfile{
		UserID:        rec.UserID,
		NarrativeText: rec.NarrativeText,
		Confidence:    Confidence(rec.Confidence),
		Validated:     rec.Validated,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}
	if err := json.Unmarshal([]byte(rec.ProfileJSON), &sp.Data); err != nil {
		return StructuredProfile{}, fmt.Errorf("decoding stored profile: %w", err)
	}
	return sp, nil
}

// View returns owner's profile if viewer holds accepted mirror access to it.
func (m *Manager) View(ctx context.Context, viewer, owner string) (StructuredProfile, error) {
	if viewer != owner {
		if m.access == nil {
			return StructuredProfile{}, ErrNotVisible
		}
		ok, err := m.access.HasAccess(ctx, viewer, owner)
		if err != nil {
			return StructuredProfile{}, fmt.Errorf("checking mirror access: %w", err)
		}
		if !ok {
			return StructuredProfile{}, ErrNotVisible
		}
	}
	return m.Get(owner)
}

// GetSummary returns a compact one-paragraph description of userID's profile.
func (m *Manager) GetSummary(userID string) (string, error) {
	sp, err := m.Get(userID)
	if err != nil {
		return "", fmt.Errorf("getting profile for summary: %w", err)
	}
	return summarize(sp), nil
}

// maxSummaryChars caps the summary to a short paragraph.
const maxSummaryChars = 1000

func summarize(sp StructuredProfile) string {
	d := sp.Data
	var parts []string

	if d.AttachmentStyle != "" && d.AttachmentStyle != AttachmentUndetermined {
		parts = append(parts, fmt.Sprintf("Attachment: %s.", d.AttachmentStyle))
	}
	if len(d.CoreTraits) > 0 {
		parts = append(parts, fmt.Sprintf("Core traits: %s.", strings.Join(d.CoreTraits, ", ")))
	}
	if len(d.Strengths) > 0 {
		parts = append(parts, fmt.Sprintf("Strengths: %s.", strings.Join(d.Strengths, ", ")))
	}
	if len(d.Weaknesses) > 0 {
		parts = append(parts, fmt.Sprintf("Growth areas: %s.", strings.Join(d.Weaknesses, ", ")))
	}
	if d.Cognitive.ThinkingStyle != "" && d.Cognitive.ThinkingStyle != "unknown" {
		parts = append(parts, fmt.Sprintf("Thinks %s.", d.Cognitive.ThinkingStyle))
	}
	if d.Affective.EmotionalTone != "" && d.Affective.EmotionalTone != "unknown" {
		parts = append(parts, fmt.Sprintf("Tone: %s.", d.Affective.EmotionalTone))
	}
	if sp.Confidence != "" && sp.Confidence != ConfidenceFull {
		parts = append(parts, fmt.Sprintf("(recovered with %s confidence)", sp.Confidence))
	}

	if len(parts) == 0 {
		return "Profile: not yet available."
	}

	summary := strings.Join(parts, " ")
	if len(summary) > maxSummaryChars {
		// Ensure we don't split a multi-byte UTF-8 character.
		end := maxSummaryChars
		for end > 0 && !utf8.RuneStart(summary[end]) {
			end--
		}
		if idx := strings.LastIndex(summary[:end], " "); idx > 0 {
			summary = summary[:idx]
		} else {
			summary = summary[:end]
		}
	}
	return summary
}
