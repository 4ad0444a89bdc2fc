package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/mirror/internal/storage"
)

func handleListNotifications(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)
		unread := r.URL.Query().Get("unread") == "true"

		items, err := deps.Inbox.ListNotifications(callerID(r), unread, limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "server_error", "failed to list notifications: %v", err)
			return
		}
		if items == nil {
			items = []storage.Notification{}
		}
		writeJSON(w, http.StatusOK, items)
	}
}

func handleMarkRead(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Inbox.MarkNotificationRead(callerID(r), chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "notification not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "server_error", "failed to mark notification read: %v", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
