package profile

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kalambet/mirror/internal/storage"
)

// --- Mock store ---

type mockStore struct {
	mu   sync.Mutex
	data map[string]storage.ProfileRecord

	saveCalls int
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string]storage.ProfileRecord)}
}

func (m *mockStore) SaveProfile(p storage.ProfileRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCalls++
	m.data[p.UserID] = p
	return nil
}

func (m *mockStore) GetProfile(userID string) (storage.ProfileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.data[userID]
	if !ok {
		return storage.ProfileRecord{}, storage.ErrNotFound
	}
	return p, nil
}

// --- Mock access ---

type mockAccess struct {
	granted map[[2]string]bool
	err     error
}

func (a *mockAccess) HasAccess(_ context.Context, viewer, owner string) (bool, error) {
	if a.err != nil {
		return false, a.err
	}
	return a.granted[[2]string{viewer, owner}], nil
}

// --- Mock clock ---

type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func wrapped(json string) string {
	return "You tend to look for meaning in small gestures.\n\n===JSON-START===\n" + json + "\n===JSON-END===\n"
}

func newTestManager() (*Manager, *mockStore, *mockAccess, *mockClock) {
	store := newMockStore()
	access := &mockAccess{granted: make(map[[2]string]bool)}
	clock := &mockClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewManagerWithClock(store, access, DefaultRules(), clock), store, access, clock
}

// --- Tests ---

func TestParse_Direct(t *testing.T) {
	mgr, store, _, _ := newTestManager()

	sp, err := mgr.Parse(wrapped(validJSON))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if sp.Confidence != ConfidenceFull || !sp.Validated || sp.RepairStage != "" {
		t.Errorf("confidence=%q validated=%v stage=%q", sp.Confidence, sp.Validated, sp.RepairStage)
	}
	if sp.NarrativeText != "You tend to look for meaning in small gestures." {
		t.Errorf("narrative = %q", sp.NarrativeText)
	}
	if diff := cmp.Diff(validData(), sp.Data); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if store.saveCalls != 0 {
		t.Error("Parse must not store")
	}
}

func TestParse_RepairedDuplication(t *testing.T) {
	mgr, _, _, _ := newTestManager()

	sp, err := mgr.Parse(wrapped(duplicatedJSON()))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if sp.Confidence != ConfidencePartial || sp.RepairStage != "duplicate_truncation" {
		t.Errorf("confidence=%q stage=%q", sp.Confidence, sp.RepairStage)
	}
	if !sp.Validated {
		t.Error("expected repaired profile to validate")
	}
}

func TestParse_Errors(t *testing.T) {
	mgr, _, _, _ := newTestManager()

	if _, err := mgr.Parse("no structured part here"); !errors.Is(err, ErrNoJSONFound) {
		t.Errorf("error = %v, want ErrNoJSONFound", err)
	}

	inflated := strings.Replace(validJSON, `"authenticity_score": 78`, `"authenticity_score": 99`, 1)
	_, err := mgr.Parse(wrapped(inflated))
	if !errors.Is(err, ErrIntegrityViolation) {
		t.Fatalf("error = %v, want ErrIntegrityViolation", err)
	}
}

func TestParse_MissingScore(t *testing.T) {
	mgr, _, _, _ := newTestManager()

	noScore := strings.Replace(validJSON, `"authenticity_score": 78,`, "", 1)
	_, err := mgr.Parse(wrapped(noScore))
	var ie *IntegrityError
	if !errors.As(err, &ie) {
		t.Fatalf("error = %v, want *IntegrityError", err)
	}
	if !slices.Contains(ie.Reasons, "authenticity_score is required") {
		t.Errorf("reasons = %q, want missing score", ie.Reasons)
	}
}

func TestParse_EmergencyUnvalidated(t *testing.T) {
	mgr, _, _, _ := newTestManager()

	sp, err := mgr.Parse(wrapped("complete garbage"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if sp.Confidence != ConfidenceEmergency || sp.Validated {
		t.Errorf("confidence=%q validated=%v, want emergency/false", sp.Confidence, sp.Validated)
	}
}

func TestIngest_StoresAndReplaces(t *testing.T) {
	mgr, store, _, clock := newTestManager()
	created := clock.Now()

	if _, err := mgr.Ingest("alice", wrapped(validJSON)); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	clock.Advance(48 * time.Hour)
	second := strings.Replace(validJSON, `"anxious"`, `"secure"`, 1)
	if _, err := mgr.Ingest("alice", wrapped(second)); err != nil {
		t.Fatalf("second Ingest: %v", err)
	}
	if store.saveCalls != 2 {
		t.Errorf("saveCalls = %d, want 2", store.saveCalls)
	}

	got, err := mgr.Get("alice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Data.AttachmentStyle != AttachmentSecure {
		t.Errorf("attachment = %q, want replacement", got.Data.AttachmentStyle)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, created)
	}
	if !got.UpdatedAt.Equal(clock.Now()) {
		t.Errorf("updated_at = %v, want %v", got.UpdatedAt, clock.Now())
	}
}

func TestIngest_RejectedNotStored(t *testing.T) {
	mgr, store, _, _ := newTestManager()

	flattering := strings.Replace(validJSON, `"weaknesses": ["overthinking", "conflict avoidance"]`, `"weaknesses": ["impatience"]`, 1)
	flattering = strings.Replace(flattering, `"strengths": ["empathy", "persistence", "humor"]`, `"strengths": ["a", "b", "c", "d", "e", "f"]`, 1)
	if _, err := mgr.Ingest("bob", wrapped(flattering)); !errors.Is(err, ErrIntegrityViolation) {
		t.Fatalf("error = %v, want ErrIntegrityViolation", err)
	}
	if store.saveCalls != 0 {
		t.Error("rejected profile was stored")
	}
	if _, err := mgr.Get("bob"); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("Get error = %v, want ErrProfileNotFound", err)
	}
}

func TestView_GatedByMirrorAccess(t *testing.T) {
	mgr, _, access, _ := newTestManager()
	if _, err := mgr.Ingest("bob", wrapped(validJSON)); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	ctx := context.Background()

	if _, err := mgr.View(ctx, "bob", "bob"); err != nil {
		t.Errorf("owner view: %v", err)
	}
	if _, err := mgr.View(ctx, "alice", "bob"); !errors.Is(err, ErrNotVisible) {
		t.Errorf("error = %v, want ErrNotVisible", err)
	}

	access.granted[[2]string{"alice", "bob"}] = true
	sp, err := mgr.View(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if sp.UserID != "bob" {
		t.Errorf("user = %q, want bob", sp.UserID)
	}

	access.err = errors.New("db down")
	if _, err := mgr.View(ctx, "alice", "bob"); err == nil || errors.Is(err, ErrNotVisible) {
		t.Errorf("error = %v, want access check failure", err)
	}
}

func TestGetSummary(t *testing.T) {
	mgr, _, _, _ := newTestManager()
	if _, err := mgr.Ingest("alice", wrapped(validJSON)); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	s, err := mgr.GetSummary("alice")
	if err != nil {
		t.Fatalf("GetSummary: %v", err)
	}
	for _, want := range []string{"Attachment: anxious.", "Core traits: curious, guarded, loyal.", "Tone: warm but wary."} {
		if !strings.Contains(s, want) {
			t.Errorf("summary %q missing %q", s, want)
		}
	}
}

func TestSummarize_Empty(t *testing.T) {
	if got := summarize(StructuredProfile{}); got != "Profile: not yet available." {
		t.Errorf("got %q", got)
	}
}

func TestSummarize_Truncated(t *testing.T) {
	traits := make([]string, 12)
	for i := range traits {
		traits[i] = strings.Repeat("é", 120)
	}
	s := summarize(StructuredProfile{Data: ProfileData{CoreTraits: traits}})
	if len(s) > maxSummaryChars {
		t.Errorf("summary length %d exceeds %d", len(s), maxSummaryChars)
	}
	if !strings.HasPrefix(s, "Core traits:") {
		t.Errorf("summary = %q", s[:40])
	}
}
