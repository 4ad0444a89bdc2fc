package requests

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/mirror/internal/storage"
)

// MirrorService governs who may view whose profile. A request from A to B
// asks to see B's profile; once B accepts, A has access.
type MirrorService struct {
	m *machine
}

// NewMirrorService creates a MirrorService. cooldown <= 0 means a rejection
// does not block a new request.
func NewMirrorService(store Store, notifier Notifier, cooldown time.Duration) *MirrorService {
	return NewMirrorServiceWithClock(store, notifier, cooldown, realClock{})
}

// NewMirrorServiceWithClock creates a MirrorService with a custom clock (for testing).
func NewMirrorServiceWithClock(store Store, notifier Notifier, cooldown time.Duration, clock Clock) *MirrorService {
	return &MirrorService{m: &machine{
		kind:     storage.KindMirror,
		refusal:  storage.StatusRejected,
		cooldown: max(cooldown, 0),
		store:    store,
		notifier: notifier,
		clock:    clock,
		logger:   slog.Default(),
	}}
}

// Request asks receiver for access to their profile.
func (s *MirrorService) Request(ctx context.Context, sender, receiver string) (storage.Request, error) {
	req, err := s.m.create(sender, receiver, "")
	if err != nil {
		return storage.Request{}, err
	}
	s.m.logger.Info("mirror request created", "request_id", req.ID, "sender", sender, "receiver", receiver)
	s.m.notify(ctx, Notification{
		RecipientID: receiver,
		SenderID:    sender,
		Type:        TypeMirrorRequest,
		Title:       "New mirror request",
		Message:     "Someone would like to see your profile.",
		Payload:     map[string]any{"request_id": req.ID},
	})
	return req, nil
}

// Respond records the receiver's decision: "accepted" or "rejected".
// Rejections are not announced to the sender.
func (s *MirrorService) Respond(ctx context.Context, responder, id, decision string) (storage.Request, error) {
	req, err := s.m.transition(responder, id, decision)
	if err != nil {
		return storage.Request{}, err
	}
	s.m.logger.Info("mirror request answered", "request_id", req.ID, "status", req.Status)
	if req.Status == storage.StatusAccepted {
		s.m.notify(ctx, Notification{
			RecipientID: req.SenderID,
			SenderID:    req.ReceiverID,
			Type:        TypeMirrorAccepted,
			Title:       "Mirror request accepted",
			Message:     "Your mirror request was accepted. You can now view their profile.",
			Payload:     map[string]any{"request_id": req.ID},
		})
	}
	return req, nil
}

// HasAccess reports whether viewer holds accepted access to owner's profile.
func (s *MirrorService) HasAccess(_ context.Context, viewer, owner string) (bool, error) {
	if viewer == owner {
		return true, nil
	}
	ok, err := s.m.store.HasAccepted(storage.KindMirror, viewer, owner)
	if err != nil {
		return false, fmt.Errorf("checking mirror access: %w", err)
	}
	return ok, nil
}

// MutualAccess reports whether a and b have each accepted the other's
// mirror request.
func (s *MirrorService) MutualAccess(_ context.Context, a, b string) (bool, error) {
	if a == "" || b == "" || a == b {
		return false, nil
	}
	ok, err := s.m.store.AcceptedBothWays(storage.KindMirror, a, b)
	if err != nil {
		return false, fmt.Errorf("checking mutual mirror access: %w", err)
	}
	return ok, nil
}

func (s *MirrorService) CanRequest(_ context.Context, sender, target string) (bool, error) {
	return s.m.canRequest(sender, target)
}

func (s *MirrorService) ListReceived(_ context.Context, userID string, limit, offset int) ([]storage.Request, error) {
	return s.m.listReceived(userID, limit, offset)
}

func (s *MirrorService) ListSent(_ context.Context, userID string, limit, offset int) ([]storage.Request, error) {
	return s.m.listSent(userID, limit, offset)
}
