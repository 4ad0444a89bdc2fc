package requests

import (
	"errors"
	"fmt"

	"github.com/kalambet/mirror/internal/storage"
)

var (
	ErrSelfReferential   = errors.New("cannot send a request to yourself")
	ErrDuplicateRequest  = errors.New("a request to this user is already active")
	ErrAccessDenied      = errors.New("mutual mirror access is required before requesting contact")
	ErrInvalidTransition = errors.New("request has already been answered")
	ErrNotRecipient      = errors.New("only the recipient can respond to this request")
	ErrRequestNotFound   = errors.New("request not found")
	ErrInvalidDecision   = errors.New("invalid decision")
	ErrMessageTooLong    = errors.New("message exceeds 500 characters")
	ErrMissingUser       = errors.New("user id is required")

	// ErrConversationCreation is logged when an accepted contact request could
	// not be linked to a conversation. The acceptance itself stands.
	ErrConversationCreation = errors.New("conversation creation failed")
)

// ErrCooldownActive also matches ErrDuplicateRequest.
var ErrCooldownActive = fmt.Errorf("%w: cooldown active", ErrDuplicateRequest)

// TransitionError is returned when a response targets a request that is no
// longer pending. It matches ErrInvalidTransition.
type TransitionError struct {
	Current storage.Request
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: request %s is %s", ErrInvalidTransition, e.Current.ID, e.Current.Status)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// Code returns a stable machine-readable code for a state error, or "" when
// err is not one.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrSelfReferential):
		return "self_referential"
	case errors.Is(err, ErrCooldownActive):
		return "cooldown_active"
	case errors.Is(err, ErrDuplicateRequest):
		return "duplicate_request"
	case errors.Is(err, ErrAccessDenied):
		return "access_denied"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrNotRecipient):
		return "not_recipient"
	case errors.Is(err, ErrRequestNotFound):
		return "request_not_found"
	case errors.Is(err, ErrInvalidDecision):
		return "invalid_decision"
	case errors.Is(err, ErrMessageTooLong):
		return "message_too_long"
	case errors.Is(err, ErrMissingUser):
		return "missing_user"
	case errors.Is(err, ErrConversationCreation):
		return "conversation_creation_failed"
	}
	return ""
}
