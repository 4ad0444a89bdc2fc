package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/mirror/internal/profile"
	"github.com/kalambet/mirror/internal/requests"
	"github.com/kalambet/mirror/internal/storage"
)

// Inbox is the notification store read by the API.
// Implemented by storage.Store.
type Inbox interface {
	ListNotifications(recipientID string, unreadOnly bool, limit, offset int) ([]storage.Notification, error)
	MarkNotificationRead(recipientID, id string) error
}

// Protocol is the response and listing surface shared by mirror and contact
// requests.
type Protocol interface {
	Respond(ctx context.Context, responder, id, decision string) (storage.Request, error)
	CanRequest(ctx context.Context, sender, target string) (bool, error)
	ListReceived(ctx context.Context, userID string, limit, offset int) ([]storage.Request, error)
	ListSent(ctx context.Context, userID string, limit, offset int) ([]storage.Request, error)
}

type AppDeps struct {
	Inbox     Inbox
	Profile   *profile.Manager
	Mirror    *requests.MirrorService
	Contact   *requests.ContactService
	Token     string
	RateLimit *RateLimiter // optional; nil disables limiting
}

func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Use(CallerIdentity)

		r.Post("/profile/ingest", handleIngestProfile(deps))
		r.Get("/profile", handleGetOwnProfile(deps))
		r.Get("/profile/summary", handleGetSummary(deps))
		r.Get("/profiles/{userID}", handleViewProfile(deps))

		r.Route("/mirror", func(r chi.Router) {
			r.With(deps.RateLimit.Middleware).Post("/requests", handleMirrorRequest(deps))
			mountProtocol(r, deps.Mirror)
		})
		r.Route("/contact", func(r chi.Router) {
			r.With(deps.RateLimit.Middleware).Post("/requests", handleContactRequest(deps))
			r.Post("/requests/{id}/conversation", handleEnsureConversation(deps))
			mountProtocol(r, deps.Contact)
		})

		r.Get("/notifications", handleListNotifications(deps))
		r.Post("/notifications/{id}/read", handleMarkRead(deps))
	})

	return r
}

func mountProtocol(r chi.Router, p Protocol) {
	r.Post("/requests/{id}/respond", handleRespond(p))
	r.Get("/requests/received", handleListRequests(p.ListReceived))
	r.Get("/requests/sent", handleListRequests(p.ListSent))
	r.Get("/can-request/{userID}", handleCanRequest(p))
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
