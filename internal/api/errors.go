package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/kalambet/mirror/internal/profile"
	"github.com/kalambet/mirror/internal/requests"
)

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// stateStatus maps request-protocol error codes to HTTP statuses.
var stateStatus = map[string]int{
	"self_referential":             http.StatusBadRequest,
	"invalid_decision":             http.StatusBadRequest,
	"message_too_long":             http.StatusBadRequest,
	"missing_user":                 http.StatusBadRequest,
	"access_denied":                http.StatusForbidden,
	"not_recipient":                http.StatusForbidden,
	"request_not_found":            http.StatusNotFound,
	"duplicate_request":            http.StatusConflict,
	"cooldown_active":              http.StatusConflict,
	"invalid_transition":           http.StatusConflict,
	"conversation_creation_failed": http.StatusConflict,
}

// writeRequestError renders err as a state error envelope when it is one of
// the request protocol's errors and as a 500 otherwise.
func writeRequestError(w http.ResponseWriter, err error) {
	code := requests.Code(err)
	status, ok := stateStatus[code]
	if !ok {
		httpError(w, http.StatusInternalServerError, "server_error", "%v", err)
		return
	}
	writeJSON(w, status, map[string]any{
		"success": false,
		"code":    code,
		"message": err.Error(),
	})
}

// writeProfileError maps ingestion and viewing failures. Integrity failures
// list every broken rule.
func writeProfileError(w http.ResponseWriter, err error) {
	var ie *profile.IntegrityError
	switch {
	case errors.As(err, &ie):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error": map[string]any{
				"message": ie.Error(),
				"type":    "integrity_error",
				"reasons": ie.Reasons,
			},
		})
	case errors.Is(err, profile.ErrNoJSONFound),
		errors.Is(err, profile.ErrInputTooLarge),
		errors.Is(err, profile.ErrUnrecoverableJSON),
		errors.Is(err, profile.ErrPDFTooLarge),
		errors.Is(err, profile.ErrInvalidPDF):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.Is(err, profile.ErrProfileNotFound):
		httpError(w, http.StatusNotFound, "not_found_error", "%v", err)
	case errors.Is(err, profile.ErrNotVisible):
		httpError(w, http.StatusForbidden, "permission_error", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "server_error", "%v", err)
	}
}
