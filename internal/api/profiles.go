package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/mirror/internal/profile"
)

// maxIngestBodySize fits a base64-encoded PDF at the profile package's limit.
const maxIngestBodySize = 16 << 20

type IngestRequest struct {
	Text      string `json:"text"`
	PDFBase64 string `json:"pdf_base64"`
}

func handleIngestProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxIngestBodySize)
		defer r.Body.Close()

		var req IngestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if (req.Text == "") == (req.PDFBase64 == "") {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "exactly one of text or pdf_base64 is required")
			return
		}

		user := callerID(r)
		var sp profile.StructuredProfile
		var err error
		if req.PDFBase64 != "" {
			data, decErr := base64.StdEncoding.DecodeString(req.PDFBase64)
			if decErr != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "pdf_base64 is not valid base64: %v", decErr)
				return
			}
			sp, err = deps.Profile.IngestPDF(user, data)
		} else {
			sp, err = deps.Profile.Ingest(user, req.Text)
		}
		if err != nil {
			writeProfileError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, sp)
	}
}

func handleGetOwnProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sp, err := deps.Profile.Get(callerID(r))
		if err != nil {
			writeProfileError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sp)
	}
}

func handleGetSummary(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := deps.Profile.GetSummary(callerID(r))
		if err != nil {
			writeProfileError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"summary": summary})
	}
}

func handleViewProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sp, err := deps.Profile.View(r.Context(), callerID(r), chi.URLParam(r, "userID"))
		if err != nil {
			writeProfileError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sp)
	}
}
