package requests

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/mirror/internal/storage"
)

// DefaultContactCooldown is how long a declined contact request blocks a new
// one from the same sender.
const DefaultContactCooldown = 30 * 24 * time.Hour

// Conversations creates or returns the direct conversation between two users.
// Implemented by storage.Store.
type Conversations interface {
	GetOrCreateDirectConversation(a, b string, now time.Time) (storage.Conversation, bool, error)
}

// AccessGate reports mutual mirror access. Implemented by MirrorService.
type AccessGate interface {
	MutualAccess(ctx context.Context, a, b string) (bool, error)
}

// ContactService governs who may start a conversation with whom. Both users
// must already see each other's profiles.
type ContactService struct {
	m             *machine
	access        AccessGate
	conversations Conversations
}

// NewContactService creates a ContactService. cooldown <= 0 selects
// DefaultContactCooldown.
func NewContactService(store Store, access AccessGate, conversations Conversations, notifier Notifier, cooldown time.Duration) *ContactService {
	return NewContactServiceWithClock(store, access, conversations, notifier, cooldown, realClock{})
}

// NewContactServiceWithClock creates a ContactService with a custom clock (for testing).
func NewContactServiceWithClock(store Store, access AccessGate, conversations Conversations, notifier Notifier, cooldown time.Duration, clock Clock) *ContactService {
	if cooldown <= 0 {
		cooldown = DefaultContactCooldown
	}
	return &ContactService{
		m: &machine{
			kind:     storage.KindContact,
			refusal:  storage.StatusDeclined,
			cooldown: cooldown,
			store:    store,
			notifier: notifier,
			clock:    clock,
			logger:   slog.Default(),
		},
		access:        access,
		conversations: conversations,
	}
}

// Request asks receiver to open a conversation. message is optional.
func (s *ContactService) Request(ctx context.Context, sender, receiver, message string) (storage.Request, error) {
	if sender == "" || receiver == "" {
		return storage.Request{}, ErrMissingUser
	}
	if sender == receiver {
		return storage.Request{}, ErrSelfReferential
	}
	mutual, err := s.access.MutualAccess(ctx, sender, receiver)
	if err != nil {
		return storage.Request{}, err
	}
	if !mutual {
		return storage.Request{}, ErrAccessDenied
	}

	req, err := s.m.create(sender, receiver, message)
	if err != nil {
		return storage.Request{}, err
	}
	s.m.logger.Info("contact request created", "request_id", req.ID, "sender", sender, "receiver", receiver)

	payload := map[string]any{"request_id": req.ID}
	if message != "" {
		payload["message"] = message
	}
	s.m.notify(ctx, Notification{
		RecipientID: receiver,
		SenderID:    sender,
		Type:        TypeContactRequest,
		Title:       "New contact request",
		Message:     "Someone you mirror would like to start a conversation.",
		Payload:     payload,
	})
	return req, nil
}

// Respond records the receiver's decision: "accepted" or "declined".
// Accepting again after a successful accept returns the same conversation.
func (s *ContactService) Respond(ctx context.Context, responder, id, decision string) (storage.Request, error) {
	req, err := s.m.transition(responder, id, decision)
	var te *TransitionError
	if errors.As(err, &te) && decision == storage.StatusAccepted && te.Current.Status == storage.StatusAccepted {
		return s.link(te.Current), nil
	}
	if err != nil {
		return storage.Request{}, err
	}
	s.m.logger.Info("contact request answered", "request_id", req.ID, "status", req.Status)

	switch req.Status {
	case storage.StatusAccepted:
		req = s.link(req)
		payload := map[string]any{"request_id": req.ID}
		if req.ConversationID != "" {
			payload["conversation_id"] = req.ConversationID
		}
		s.m.notify(ctx, Notification{
			RecipientID: req.SenderID,
			SenderID:    req.ReceiverID,
			Type:        TypeContactAccepted,
			Title:       "Contact request accepted",
			Message:     "Your contact request was accepted. You can start talking now.",
			Payload:     payload,
		})
	case storage.StatusDeclined:
		s.m.notify(ctx, Notification{
			RecipientID: req.SenderID,
			SenderID:    req.ReceiverID,
			Type:        TypeContactDeclinedSoft,
			Title:       "Not right now",
			Message:     "They aren't ready to start a conversation at the moment. You can try again later.",
			Payload:     map[string]any{"request_id": req.ID},
		})
	}
	return req, nil
}

// EnsureConversation retries conversation creation for an accepted request
// whose earlier attempt failed. Either participant may call it.
func (s *ContactService) EnsureConversation(_ context.Context, userID, id string) (storage.Request, error) {
	req, err := s.m.store.GetRequest(storage.KindContact, id)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Request{}, ErrRequestNotFound
	}
	if err != nil {
		return storage.Request{}, fmt.Errorf("loading contact request: %w", err)
	}
	if userID != req.SenderID && userID != req.ReceiverID {
		return storage.Request{}, ErrRequestNotFound
	}
	if req.Status != storage.StatusAccepted {
		return storage.Request{}, &TransitionError{Current: req}
	}
	req = s.link(req)
	if req.ConversationID == "" {
		return req, ErrConversationCreation
	}
	return req, nil
}

// link attaches the pair's direct conversation to an accepted request.
// Failures are logged and leave ConversationID empty.
func (s *ContactService) link(req storage.Request) storage.Request {
	if req.ConversationID != "" {
		return req
	}
	conv, created, err := s.conversations.GetOrCreateDirectConversation(req.SenderID, req.ReceiverID, s.m.clock.Now().UTC())
	if err != nil {
		s.m.logger.Error("contact accepted without conversation", "request_id", req.ID,
			"error", fmt.Errorf("%w: %w", ErrConversationCreation, err))
		return req
	}
	if err := s.m.store.SetRequestConversation(storage.KindContact, req.ID, conv.ID); err != nil {
		s.m.logger.Error("linking conversation to contact request", "request_id", req.ID, "conversation_id", conv.ID, "error", err)
		return req
	}
	if created {
		s.m.logger.Info("conversation created", "conversation_id", conv.ID, "request_id", req.ID)
	}
	req.ConversationID = conv.ID
	return req
}

// CanRequest reports whether sender could send target a contact request now.
func (s *ContactService) CanRequest(ctx context.Context, sender, target string) (bool, error) {
	if sender == "" || target == "" || sender == target {
		return false, nil
	}
	mutual, err := s.access.MutualAccess(ctx, sender, target)
	if err != nil || !mutual {
		return false, err
	}
	return s.m.canRequest(sender, target)
}

func (s *ContactService) ListReceived(_ context.Context, userID string, limit, offset int) ([]storage.Request, error) {
	return s.m.listReceived(userID, limit, offset)
}

func (s *ContactService) ListSent(_ context.Context, userID string, limit, offset int) ([]storage.Request, error) {
	return s.m.listSent(userID, limit, offset)
}
