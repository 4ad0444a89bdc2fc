package requests

import (
	"context"
	"time"
)

// Notification types emitted by the request protocols.
const (
	TypeMirrorRequest       = "mirror_request"
	TypeMirrorAccepted      = "mirror_accepted"
	TypeContactRequest      = "contact_request"
	TypeContactAccepted     = "contact_accepted"
	TypeContactDeclinedSoft = "contact_declined_soft"
)

// Notification is a side-effect event for one recipient.
type Notification struct {
	RecipientID string         `json:"recipient_id"`
	SenderID    string         `json:"sender_id"`
	Type        string         `json:"type"`
	Title       string         `json:"title"`
	Message     string         `json:"message"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// Notifier accepts notifications. Services log a failed Notify and carry on;
// delivery never affects a state transition.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
