package requests

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/mirror/internal/storage"
)

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

// --- Recording notifier ---

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, note Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
	return n.err
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, s := range n.sent {
		out = append(out, s.Type)
	}
	return out
}

func (n *recordingNotifier) last() Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		return Notification{}
	}
	return n.sent[len(n.sent)-1]
}

// --- Flaky conversations ---

type flakyConversations struct {
	store *storage.Store
	fail  bool
	calls int
}

func (f *flakyConversations) GetOrCreateDirectConversation(a, b string, now time.Time) (storage.Conversation, bool, error) {
	f.calls++
	if f.fail {
		return storage.Conversation{}, false, errors.New("conversation service unavailable")
	}
	return f.store.GetOrCreateDirectConversation(a, b, now)
}

// --- Fixture ---

type fixture struct {
	store   *storage.Store
	clock   *mockClock
	notes   *recordingNotifier
	convs   *flakyConversations
	mirror  *MirrorService
	contact *ContactService
}

func newFixture(t *testing.T, mirrorCooldown time.Duration) *fixture {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	f := &fixture{
		store: store,
		clock: &mockClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		notes: &recordingNotifier{},
		convs: &flakyConversations{store: store},
	}
	f.mirror = NewMirrorServiceWithClock(store, f.notes, mirrorCooldown, f.clock)
	f.contact = NewContactServiceWithClock(store, f.mirror, f.convs, f.notes, 0, f.clock)
	return f
}

func (f *fixture) grantMirror(t *testing.T, viewer, owner string) {
	t.Helper()
	ctx := context.Background()
	req, err := f.mirror.Request(ctx, viewer, owner)
	if err != nil {
		t.Fatalf("mirror Request(%s→%s): %v", viewer, owner, err)
	}
	if _, err := f.mirror.Respond(ctx, owner, req.ID, storage.StatusAccepted); err != nil {
		t.Fatalf("mirror Respond(%s): %v", req.ID, err)
	}
}

func (f *fixture) mutual(t *testing.T, a, b string) {
	t.Helper()
	f.grantMirror(t, a, b)
	f.grantMirror(t, b, a)
}

// --- Mirror access ---

func TestMirrorRequest_CreatesPendingAndNotifies(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	req, err := f.mirror.Request(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if req.Status != storage.StatusPending || req.SenderID != "alice" || req.ReceiverID != "bob" {
		t.Errorf("unexpected request: %+v", req)
	}

	n := f.notes.last()
	if n.Type != TypeMirrorRequest || n.RecipientID != "bob" || n.SenderID != "alice" {
		t.Errorf("unexpected notification: %+v", n)
	}
	if n.Payload["request_id"] != req.ID {
		t.Errorf("payload request_id = %v, want %s", n.Payload["request_id"], req.ID)
	}

	received, err := f.mirror.ListReceived(ctx, "bob", 0, 0)
	if err != nil {
		t.Fatalf("ListReceived: %v", err)
	}
	if len(received) != 1 || received[0].ID != req.ID {
		t.Errorf("received = %+v", received)
	}
	sent, err := f.mirror.ListSent(ctx, "alice", 10, 0)
	if err != nil {
		t.Fatalf("ListSent: %v", err)
	}
	if len(sent) != 1 {
		t.Errorf("sent = %d, want 1", len(sent))
	}
}

func TestMirrorRequest_Validation(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	if _, err := f.mirror.Request(ctx, "alice", "alice"); !errors.Is(err, ErrSelfReferential) {
		t.Errorf("self request error = %v, want ErrSelfReferential", err)
	}
	if _, err := f.mirror.Request(ctx, "", "bob"); !errors.Is(err, ErrMissingUser) {
		t.Errorf("missing sender error = %v, want ErrMissingUser", err)
	}
}

func TestMirrorRequest_DuplicateBlocked(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	req, err := f.mirror.Request(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if _, err := f.mirror.Request(ctx, "alice", "bob"); !errors.Is(err, ErrDuplicateRequest) {
		t.Errorf("pending duplicate error = %v, want ErrDuplicateRequest", err)
	}

	// The reverse direction is an independent pair.
	if _, err := f.mirror.Request(ctx, "bob", "alice"); err != nil {
		t.Errorf("reverse request: %v", err)
	}

	if _, err := f.mirror.Respond(ctx, "bob", req.ID, storage.StatusAccepted); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	_, err = f.mirror.Request(ctx, "alice", "bob")
	if !errors.Is(err, ErrDuplicateRequest) || errors.Is(err, ErrCooldownActive) {
		t.Errorf("accepted duplicate error = %v, want plain ErrDuplicateRequest", err)
	}
}

func TestMirrorRequest_ConcurrentYieldsOnePending(t *testing.T) {
	f := newFixture(t, 0)
	const n = 16

	var mu sync.Mutex
	var created, duplicates int
	var g errgroup.Group
	for range n {
		g.Go(func() error {
			_, err := f.mirror.Request(context.Background(), "alice", "bob")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, ErrDuplicateRequest):
				duplicates++
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != 1 || duplicates != n-1 {
		t.Errorf("created=%d duplicates=%d, want 1/%d", created, duplicates, n-1)
	}

	sent, err := f.mirror.ListSent(context.Background(), "alice", 100, 0)
	if err != nil {
		t.Fatalf("ListSent: %v", err)
	}
	if len(sent) != 1 || sent[0].Status != storage.StatusPending {
		t.Errorf("sent = %+v, want exactly one pending", sent)
	}
}

func TestMirrorRespond_Errors(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	req, err := f.mirror.Request(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	tests := []struct {
		name      string
		responder string
		id        string
		decision  string
		want      error
	}{
		{"sender cannot respond", "alice", req.ID, storage.StatusAccepted, ErrNotRecipient},
		{"stranger cannot respond", "carol", req.ID, storage.StatusAccepted, ErrNotRecipient},
		{"unknown request", "bob", "missing", storage.StatusAccepted, ErrRequestNotFound},
		{"contact decision", "bob", req.ID, storage.StatusDeclined, ErrInvalidDecision},
		{"empty decision", "bob", req.ID, "", ErrInvalidDecision},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.mirror.Respond(ctx, tt.responder, tt.id, tt.decision); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}

	got, err := f.store.GetRequest(storage.KindMirror, req.ID)
	if err != nil {
		t.Fatalf("GetRequest: %v", err)
	}
	if got.Status != storage.StatusPending {
		t.Errorf("status = %q after failed responses, want pending", got.Status)
	}
}

func TestMirrorRespond_Monotonic(t *testing.T) {
	for _, first := range []string{storage.StatusAccepted, storage.StatusRejected} {
		for _, second := range []string{storage.StatusAccepted, storage.StatusRejected} {
			t.Run(fmt.Sprintf("%s then %s", first, second), func(t *testing.T) {
				f := newFixture(t, 0)
				ctx := context.Background()
				req, err := f.mirror.Request(ctx, "alice", "bob")
				if err != nil {
					t.Fatalf("Request: %v", err)
				}
				if _, err := f.mirror.Respond(ctx, "bob", req.ID, first); err != nil {
					t.Fatalf("first Respond: %v", err)
				}
				_, err = f.mirror.Respond(ctx, "bob", req.ID, second)
				var te *TransitionError
				if !errors.As(err, &te) || !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("second Respond error = %v, want ErrInvalidTransition", err)
				}
				if te.Current.Status != first {
					t.Errorf("current status = %q, want %q", te.Current.Status, first)
				}
			})
		}
	}
}

func TestMirrorRespond_ConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	req, err := f.mirror.Request(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	decisions := []string{storage.StatusAccepted, storage.StatusRejected, storage.StatusAccepted, storage.StatusRejected}
	errs := make([]error, len(decisions))
	var g errgroup.Group
	for i, d := range decisions {
		g.Go(func() error {
			_, errs[i] = f.mirror.Respond(ctx, "bob", req.ID, d)
			return nil
		})
	}
	_ = g.Wait()

	winners := 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case !errors.Is(err, ErrInvalidTransition):
			t.Errorf("unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Errorf("winners = %d, want 1", winners)
	}
}

func TestMirrorAccept_NotifiesSenderRejectSilent(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	a, _ := f.mirror.Request(ctx, "alice", "bob")
	c, _ := f.mirror.Request(ctx, "carol", "bob")
	if _, err := f.mirror.Respond(ctx, "bob", a.ID, storage.StatusAccepted); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := f.mirror.Respond(ctx, "bob", c.ID, storage.StatusRejected); err != nil {
		t.Fatalf("reject: %v", err)
	}

	want := []string{TypeMirrorRequest, TypeMirrorRequest, TypeMirrorAccepted}
	got := f.notes.types()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("notification types = %v, want %v", got, want)
	}
	if n := f.notes.sent[2]; n.RecipientID != "alice" {
		t.Errorf("accepted notification went to %q, want alice", n.RecipientID)
	}
}

func TestMirrorReject_NoCooldownByDefault(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	req, _ := f.mirror.Request(ctx, "alice", "bob")
	rejected, err := f.mirror.Respond(ctx, "bob", req.ID, storage.StatusRejected)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if rejected.CooldownUntil != nil {
		t.Errorf("cooldown_until = %v, want nil", rejected.CooldownUntil)
	}

	again, err := f.mirror.Request(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("request after rejection: %v", err)
	}
	if again.ID == req.ID {
		t.Error("expected a fresh record")
	}
}

func TestMirrorReject_ConfiguredCooldown(t *testing.T) {
	f := newFixture(t, 7*24*time.Hour)
	ctx := context.Background()

	req, _ := f.mirror.Request(ctx, "alice", "bob")
	if _, err := f.mirror.Respond(ctx, "bob", req.ID, storage.StatusRejected); err != nil {
		t.Fatalf("Respond: %v", err)
	}

	f.clock.Advance(6 * 24 * time.Hour)
	if _, err := f.mirror.Request(ctx, "alice", "bob"); !errors.Is(err, ErrCooldownActive) {
		t.Errorf("error = %v, want ErrCooldownActive", err)
	}
	if ok, _ := f.mirror.CanRequest(ctx, "alice", "bob"); ok {
		t.Error("CanRequest = true during cooldown")
	}

	f.clock.Advance(24 * time.Hour)
	if ok, _ := f.mirror.CanRequest(ctx, "alice", "bob"); !ok {
		t.Error("CanRequest = false after cooldown")
	}
	if _, err := f.mirror.Request(ctx, "alice", "bob"); err != nil {
		t.Errorf("request after cooldown: %v", err)
	}
}

func TestMutualAccess(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	check := func(want bool) {
		t.Helper()
		for _, pair := range [][2]string{{"alice", "bob"}, {"bob", "alice"}} {
			got, err := f.mirror.MutualAccess(ctx, pair[0], pair[1])
			if err != nil {
				t.Fatalf("MutualAccess: %v", err)
			}
			if got != want {
				t.Errorf("MutualAccess(%s, %s) = %v, want %v", pair[0], pair[1], got, want)
			}
		}
	}

	check(false)
	f.grantMirror(t, "alice", "bob")
	check(false)
	if ok, _ := f.mirror.HasAccess(ctx, "alice", "bob"); !ok {
		t.Error("HasAccess(alice, bob) = false after accept")
	}
	if ok, _ := f.mirror.HasAccess(ctx, "bob", "alice"); ok {
		t.Error("HasAccess(bob, alice) = true without a request")
	}

	pending, _ := f.mirror.Request(ctx, "bob", "alice")
	check(false)

	if _, err := f.mirror.Respond(ctx, "alice", pending.ID, storage.StatusRejected); err != nil {
		t.Fatalf("reject: %v", err)
	}
	check(false)

	f.grantMirror(t, "bob", "alice")
	check(true)

	if ok, _ := f.mirror.MutualAccess(ctx, "alice", "alice"); ok {
		t.Error("MutualAccess with self = true")
	}
}

// --- Contact ---

func TestContactRequest_RequiresMutualAccess(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	if _, err := f.contact.Request(ctx, "alice", "bob", ""); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("no access error = %v, want ErrAccessDenied", err)
	}
	f.grantMirror(t, "alice", "bob")
	if _, err := f.contact.Request(ctx, "alice", "bob", ""); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("one-way access error = %v, want ErrAccessDenied", err)
	}
	if ok, _ := f.contact.CanRequest(ctx, "alice", "bob"); ok {
		t.Error("CanRequest = true without mutual access")
	}

	f.grantMirror(t, "bob", "alice")
	if ok, _ := f.contact.CanRequest(ctx, "alice", "bob"); !ok {
		t.Error("CanRequest = false with mutual access")
	}
	req, err := f.contact.Request(ctx, "alice", "bob", "Hi! Loved your profile.")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if req.SenderMessage != "Hi! Loved your profile." {
		t.Errorf("message = %q", req.SenderMessage)
	}
	n := f.notes.last()
	if n.Type != TypeContactRequest || n.RecipientID != "bob" || n.Payload["message"] != req.SenderMessage {
		t.Errorf("unexpected notification: %+v", n)
	}
	if ok, _ := f.contact.CanRequest(ctx, "alice", "bob"); ok {
		t.Error("CanRequest = true with a pending request")
	}
}

func TestContactRequest_Validation(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	f.mutual(t, "alice", "bob")

	if _, err := f.contact.Request(ctx, "bob", "bob", ""); !errors.Is(err, ErrSelfReferential) {
		t.Errorf("error = %v, want ErrSelfReferential", err)
	}
	long := make([]rune, MaxMessageChars+1)
	for i := range long {
		long[i] = 'ü'
	}
	if _, err := f.contact.Request(ctx, "alice", "bob", string(long)); !errors.Is(err, ErrMessageTooLong) {
		t.Errorf("error = %v, want ErrMessageTooLong", err)
	}
	if _, err := f.contact.Request(ctx, "alice", "bob", string(long[:MaxMessageChars])); err != nil {
		t.Errorf("message at limit: %v", err)
	}
}

func TestContactDecline_CooldownThirtyDays(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	f.mutual(t, "alice", "bob")

	req, err := f.contact.Request(ctx, "alice", "bob", "")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	declined, err := f.contact.Respond(ctx, "bob", req.ID, storage.StatusDeclined)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if declined.RespondedAt == nil || declined.CooldownUntil == nil {
		t.Fatalf("responded_at/cooldown_until not set: %+v", declined)
	}
	if want := declined.RespondedAt.Add(30 * 24 * time.Hour); !declined.CooldownUntil.Equal(want) {
		t.Errorf("cooldown_until = %v, want %v", declined.CooldownUntil, want)
	}
	if n := f.notes.last(); n.Type != TypeContactDeclinedSoft || n.RecipientID != "alice" {
		t.Errorf("unexpected notification: %+v", n)
	}

	f.clock.Advance(30*24*time.Hour - time.Second)
	_, err = f.contact.Request(ctx, "alice", "bob", "")
	if !errors.Is(err, ErrCooldownActive) || !errors.Is(err, ErrDuplicateRequest) {
		t.Errorf("retry within cooldown error = %v, want ErrCooldownActive", err)
	}

	f.clock.Advance(time.Second)
	again, err := f.contact.Request(ctx, "alice", "bob", "")
	if err != nil {
		t.Fatalf("retry after cooldown: %v", err)
	}
	if again.ID == req.ID {
		t.Error("expected a fresh record after cooldown")
	}
	sent, _ := f.contact.ListSent(ctx, "alice", 0, 0)
	if len(sent) != 2 {
		t.Errorf("sent = %d records, want 2", len(sent))
	}
}

func TestContactAccept_CreatesConversationIdempotently(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	f.mutual(t, "alice", "bob")

	req, _ := f.contact.Request(ctx, "alice", "bob", "")
	accepted, err := f.contact.Respond(ctx, "bob", req.ID, storage.StatusAccepted)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if accepted.ConversationID == "" {
		t.Fatal("conversation_id not set on accept")
	}
	n := f.notes.last()
	if n.Type != TypeContactAccepted || n.RecipientID != "alice" || n.Payload["conversation_id"] != accepted.ConversationID {
		t.Errorf("unexpected notification: %+v", n)
	}
	sentBefore := len(f.notes.types())

	retry, err := f.contact.Respond(ctx, "bob", req.ID, storage.StatusAccepted)
	if err != nil {
		t.Fatalf("retry accept: %v", err)
	}
	if retry.ConversationID != accepted.ConversationID {
		t.Errorf("retry conversation = %q, want %q", retry.ConversationID, accepted.ConversationID)
	}
	if len(f.notes.types()) != sentBefore {
		t.Error("retry accept sent another notification")
	}

	count, err := f.store.CountConversations("alice")
	if err != nil {
		t.Fatalf("CountConversations: %v", err)
	}
	if count != 1 {
		t.Errorf("conversations = %d, want 1", count)
	}

	if _, err := f.contact.Respond(ctx, "bob", req.ID, storage.StatusDeclined); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("decline after accept error = %v, want ErrInvalidTransition", err)
	}
}

func TestContactAccept_ReusesExistingConversation(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	f.mutual(t, "alice", "bob")

	existing, _, err := f.store.GetOrCreateDirectConversation("bob", "alice", f.clock.Now())
	if err != nil {
		t.Fatalf("seeding conversation: %v", err)
	}
	req, _ := f.contact.Request(ctx, "alice", "bob", "")
	accepted, err := f.contact.Respond(ctx, "bob", req.ID, storage.StatusAccepted)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if accepted.ConversationID != existing.ID {
		t.Errorf("conversation = %q, want existing %q", accepted.ConversationID, existing.ID)
	}
}

func TestContactAccept_ConversationFailureNonFatal(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	f.mutual(t, "alice", "bob")
	f.convs.fail = true

	req, _ := f.contact.Request(ctx, "alice", "bob", "")
	accepted, err := f.contact.Respond(ctx, "bob", req.ID, storage.StatusAccepted)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if accepted.Status != storage.StatusAccepted || accepted.ConversationID != "" {
		t.Errorf("status=%q conversation=%q, want accepted with no conversation", accepted.Status, accepted.ConversationID)
	}
	stored, _ := f.store.GetRequest(storage.KindContact, req.ID)
	if stored.Status != storage.StatusAccepted {
		t.Errorf("stored status = %q, want accepted", stored.Status)
	}
	if n := f.notes.last(); n.Type != TypeContactAccepted {
		t.Errorf("notification type = %q, want contact_accepted", n.Type)
	}

	if _, err := f.contact.EnsureConversation(ctx, "alice", req.ID); !errors.Is(err, ErrConversationCreation) {
		t.Errorf("EnsureConversation error = %v, want ErrConversationCreation", err)
	}

	f.convs.fail = false
	repaired, err := f.contact.EnsureConversation(ctx, "alice", req.ID)
	if err != nil {
		t.Fatalf("EnsureConversation: %v", err)
	}
	if repaired.ConversationID == "" {
		t.Fatal("conversation still missing after repair")
	}

	// A retried accept returns the repaired link without creating another.
	retry, err := f.contact.Respond(ctx, "bob", req.ID, storage.StatusAccepted)
	if err != nil {
		t.Fatalf("retry accept: %v", err)
	}
	if retry.ConversationID != repaired.ConversationID {
		t.Errorf("retry conversation = %q, want %q", retry.ConversationID, repaired.ConversationID)
	}
}

func TestContactAccept_RetryRepairsNullConversation(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	f.mutual(t, "alice", "bob")
	f.convs.fail = true

	req, _ := f.contact.Request(ctx, "alice", "bob", "")
	if _, err := f.contact.Respond(ctx, "bob", req.ID, storage.StatusAccepted); err != nil {
		t.Fatalf("Respond: %v", err)
	}

	f.convs.fail = false
	retry, err := f.contact.Respond(ctx, "bob", req.ID, storage.StatusAccepted)
	if err != nil {
		t.Fatalf("retry accept: %v", err)
	}
	if retry.ConversationID == "" {
		t.Error("retry did not repair the conversation link")
	}
}

func TestEnsureConversation_Errors(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	f.mutual(t, "alice", "bob")

	req, _ := f.contact.Request(ctx, "alice", "bob", "")
	if _, err := f.contact.EnsureConversation(ctx, "alice", req.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("pending request error = %v, want ErrInvalidTransition", err)
	}
	if _, err := f.contact.EnsureConversation(ctx, "carol", req.ID); !errors.Is(err, ErrRequestNotFound) {
		t.Errorf("outsider error = %v, want ErrRequestNotFound", err)
	}
	if _, err := f.contact.EnsureConversation(ctx, "alice", "missing"); !errors.Is(err, ErrRequestNotFound) {
		t.Errorf("missing request error = %v, want ErrRequestNotFound", err)
	}
}

func TestNotifierFailureDoesNotBlock(t *testing.T) {
	f := newFixture(t, 0)
	f.notes.err = errors.New("queue full")
	ctx := context.Background()

	req, err := f.mirror.Request(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("Request with failing notifier: %v", err)
	}
	if _, err := f.mirror.Respond(ctx, "bob", req.ID, storage.StatusAccepted); err != nil {
		t.Fatalf("Respond with failing notifier: %v", err)
	}
}

func TestCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrSelfReferential, "self_referential"},
		{fmt.Errorf("%w until x", ErrCooldownActive), "cooldown_active"},
		{fmt.Errorf("%w (pending)", ErrDuplicateRequest), "duplicate_request"},
		{ErrAccessDenied, "access_denied"},
		{&TransitionError{Current: storage.Request{ID: "r", Status: "accepted"}}, "invalid_transition"},
		{ErrNotRecipient, "not_recipient"},
		{ErrRequestNotFound, "request_not_found"},
		{ErrInvalidDecision, "invalid_decision"},
		{ErrMessageTooLong, "message_too_long"},
		{errors.New("boom"), ""},
	}
	for _, tt := range tests {
		if got := Code(tt.err); got != tt.want {
			t.Errorf("Code(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
