package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrActiveRequest is returned when an ordered pair already has a request
// that blocks a new one. Use errors.As with *ActiveRequestError to inspect it.
var ErrActiveRequest = errors.New("active request exists")

// ErrNotPending is returned when a response targets a request that has
// already left the pending state. Use errors.As with *NotPendingError to
// read the current record.
var ErrNotPending = errors.New("request is not pending")

// ErrNotReceiver is returned when someone other than the receiver responds.
var ErrNotReceiver = errors.New("responder is not the receiver")

// RequestKind discriminates the two request protocols sharing pair_requests.
type RequestKind string

const (
	KindMirror  RequestKind = "mirror"
	KindContact RequestKind = "contact"
)

// Request statuses. Rejected is used by mirror access, declined by contact.
const (
	StatusPending  = "pending"
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
	StatusDeclined = "declined"
)

// Request is one row of pair_requests.
type Request struct {
	ID             string      `json:"id"`
	Kind           RequestKind `json:"kind"`
	SenderID       string      `json:"sender_id"`
	ReceiverID     string      `json:"receiver_id"`
	Status         string      `json:"status"`
	SenderMessage  string      `json:"sender_message,omitempty"`
	RequestedAt    time.Time   `json:"requested_at"`
	RespondedAt    *time.Time  `json:"responded_at,omitempty"`
	CooldownUntil  *time.Time  `json:"cooldown_until,omitempty"`
	ConversationID string      `json:"conversation_id,omitempty"`
}

// ActiveRequestError reports the record that blocked a new request.
type ActiveRequestError struct {
	Existing Request
}

func (e *ActiveRequestError) Error() string {
	return "active " + string(e.Existing.Kind) + " request " + e.Existing.ID + " (" + e.Existing.Status + ")"
}

func (e *ActiveRequestError) Unwrap() error { return ErrActiveRequest }

// NotPendingError carries the current state of a request that could not be
// transitioned.
type NotPendingError struct {
	Current Request
}

func (e *NotPendingError) Error() string {
	return "request " + e.Current.ID + " is " + e.Current.Status
}

func (e *NotPendingError) Unwrap() error { return ErrNotPending }

// Response describes a single pending → terminal transition.
type Response struct {
	Kind          RequestKind
	ID            string
	ResponderID   string
	Status        string
	RespondedAt   time.Time
	CooldownUntil *time.Time
}

// Conversation is a direct conversation between an unordered pair of users.
type Conversation struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	UserLow   string    `json:"user_low"`
	UserHigh  string    `json:"user_high"`
	CreatedAt time.Time `json:"created_at"`
}

// ProfileRecord is the persisted form of a structured profile.
type ProfileRecord struct {
	UserID        string
	NarrativeText string
	ProfileJSON   string
	Confidence    string
	Validated     bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}

// Notification is an inbox entry delivered to a recipient.
type Notification struct {
	ID          string     `json:"id"`
	RecipientID string     `json:"recipient_id"`
	SenderID    string     `json:"sender_id"`
	Type        string     `json:"type"`
	Title       string     `json:"title"`
	Message     string     `json:"message"`
	PayloadJSON string     `json:"payload_json"`
	CreatedAt   time.Time  `json:"created_at"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
}
