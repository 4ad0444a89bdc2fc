package requests

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/kalambet/mirror/internal/storage"
)

// MaxMessageChars bounds the optional message on a contact request.
const MaxMessageChars = 500

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Store defines the storage operations both request protocols need.
// Implemented by storage.Store.
type Store interface {
	CreateRequest(r storage.Request) error
	RespondRequest(r storage.Response) (storage.Request, error)
	GetRequest(kind storage.RequestKind, id string) (storage.Request, error)
	FindBlockingRequest(kind storage.RequestKind, senderID, receiverID string, now time.Time) (storage.Request, error)
	HasAccepted(kind storage.RequestKind, senderID, receiverID string) (bool, error)
	AcceptedBothWays(kind storage.RequestKind, a, b string) (bool, error)
	ListReceivedRequests(kind storage.RequestKind, userID string, limit, offset int) ([]storage.Request, error)
	ListSentRequests(kind storage.RequestKind, userID string, limit, offset int) ([]storage.Request, error)
	SetRequestConversation(kind storage.RequestKind, id, conversationID string) error
}

// machine is the pending → accepted | refused protocol shared by mirror
// access and contact requests. All coordination goes through the store.
type machine struct {
	kind     storage.RequestKind
	refusal  string
	cooldown time.Duration

	store    Store
	notifier Notifier
	clock    Clock
	logger   *slog.Logger
}

func (m *machine) create(sender, receiver, message string) (storage.Request, error) {
	if sender == "" || receiver == "" {
		return storage.Request{}, ErrMissingUser
	}
	if sender == receiver {
		return storage.Request{}, ErrSelfReferential
	}
	if utf8.RuneCountInString(message) > MaxMessageChars {
		return storage.Request{}, ErrMessageTooLong
	}

	now := m.clock.Now().UTC()
	req := storage.Request{
		ID:            uuid.New().String(),
		Kind:          m.kind,
		SenderID:      sender,
		ReceiverID:    receiver,
		Status:        storage.StatusPending,
		SenderMessage: message,
		RequestedAt:   now,
	}

	err := m.store.CreateRequest(req)
	var active *storage.ActiveRequestError
	switch {
	case errors.As(err, &active):
		return storage.Request{}, m.blockedBy(active.Existing, now)
	case errors.Is(err, storage.ErrActiveRequest):
		return storage.Request{}, ErrDuplicateRequest
	case err != nil:
		return storage.Request{}, fmt.Errorf("creating %s request: %w", m.kind, err)
	}
	return req, nil
}

func (m *machine) blockedBy(existing storage.Request, now time.Time) error {
	if existing.Status == m.refusal && existing.CooldownUntil != nil && existing.CooldownUntil.After(now) {
		return fmt.Errorf("%w until %s", ErrCooldownActive, existing.CooldownUntil.Format(time.RFC3339))
	}
	return fmt.Errorf("%w (%s)", ErrDuplicateRequest, existing.Status)
}

// parseDecision accepts the status names of this protocol.
func (m *machine) parseDecision(decision string) (string, error) {
	switch decision {
	case storage.StatusAccepted, m.refusal:
		return decision, nil
	}
	return "", fmt.Errorf("%w %q: want %q or %q", ErrInvalidDecision, decision, storage.StatusAccepted, m.refusal)
}

// transition applies one guarded pending → terminal update. A request that has
// already left pending yields a *TransitionError carrying its current state.
func (m *machine) transition(responder, id, decision string) (storage.Request, error) {
	status, err := m.parseDecision(decision)
	if err != nil {
		return storage.Request{}, err
	}

	now := m.clock.Now().UTC()
	resp := storage.Response{
		Kind:        m.kind,
		ID:          id,
		ResponderID: responder,
		Status:      status,
		RespondedAt: now,
	}
	if status == m.refusal && m.cooldown > 0 {
		until := now.Add(m.cooldown)
		resp.CooldownUntil = &until
	}

	req, err := m.store.RespondRequest(resp)
	var notPending *storage.NotPendingError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return storage.Request{}, ErrRequestNotFound
	case errors.Is(err, storage.ErrNotReceiver):
		return storage.Request{}, ErrNotRecipient
	case errors.As(err, &notPending):
		return storage.Request{}, &TransitionError{Current: notPending.Current}
	case err != nil:
		return storage.Request{}, fmt.Errorf("responding to %s request: %w", m.kind, err)
	}
	return req, nil
}

// canRequest reports whether a new request from sender to target would be
// accepted right now, ignoring races.
func (m *machine) canRequest(sender, target string) (bool, error) {
	if sender == "" || target == "" || sender == target {
		return false, nil
	}
	_, err := m.store.FindBlockingRequest(m.kind, sender, target, m.clock.Now().UTC())
	if errors.Is(err, storage.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking %s requests: %w", m.kind, err)
	}
	return false, nil
}

func (m *machine) listReceived(userID string, limit, offset int) ([]storage.Request, error) {
	limit, offset = clampPage(limit, offset)
	reqs, err := m.store.ListReceivedRequests(m.kind, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing received %s requests: %w", m.kind, err)
	}
	return reqs, nil
}

func (m *machine) listSent(userID string, limit, offset int) ([]storage.Request, error) {
	limit, offset = clampPage(limit, offset)
	reqs, err := m.store.ListSentRequests(m.kind, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing sent %s requests: %w", m.kind, err)
	}
	return reqs, nil
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (m *machine) notify(ctx context.Context, n Notification) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Notify(ctx, n); err != nil {
		m.logger.Warn("notification failed", "type", n.Type, "recipient", n.RecipientID, "error", err)
	}
}
