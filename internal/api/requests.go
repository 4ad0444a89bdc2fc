package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/mirror/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

type CreateRequestBody struct {
	ReceiverID string `json:"receiver_id"`
	Message    string `json:"message,omitempty"`
}

type RespondBody struct {
	Decision string `json:"decision"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func handleMirrorRequest(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body CreateRequestBody
		if !decodeBody(w, r, &body) {
			return
		}
		req, err := deps.Mirror.Request(r.Context(), callerID(r), body.ReceiverID)
		if err != nil {
			writeRequestError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, req)
	}
}

func handleContactRequest(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body CreateRequestBody
		if !decodeBody(w, r, &body) {
			return
		}
		req, err := deps.Contact.Request(r.Context(), callerID(r), body.ReceiverID, body.Message)
		if err != nil {
			writeRequestError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, req)
	}
}

func handleRespond(p Protocol) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body RespondBody
		if !decodeBody(w, r, &body) {
			return
		}
		req, err := p.Respond(r.Context(), callerID(r), chi.URLParam(r, "id"), body.Decision)
		if err != nil {
			writeRequestError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, req)
	}
}

func handleEnsureConversation(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := deps.Contact.EnsureConversation(r.Context(), callerID(r), chi.URLParam(r, "id"))
		if err != nil {
			writeRequestError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, req)
	}
}

type listFunc func(ctx context.Context, userID string, limit, offset int) ([]storage.Request, error)

func handleListRequests(list listFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 50, 200)
		offset := parseIntParam(r, "offset", 0, 0)

		reqs, err := list(r.Context(), callerID(r), limit, offset)
		if err != nil {
			writeRequestError(w, err)
			return
		}
		if reqs == nil {
			reqs = []storage.Request{}
		}
		writeJSON(w, http.StatusOK, reqs)
	}
}

func handleCanRequest(p Protocol) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ok, err := p.CanRequest(r.Context(), callerID(r), chi.URLParam(r, "userID"))
		if err != nil {
			writeRequestError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"can_request": ok})
	}
}
