// Package api is the REST surface: chi-routed HTTP handlers delegating to
// the domain packages (auth, channelhub, voice, sfu, blob, db) and mapping
// apperr.Kind to HTTP status codes, grounded on the teacher's internal/api.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"relay/internal/apperr"
)

type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: errorDetail{Code: code, Message: message}})
}

// writeAppError maps a domain error to its HTTP status via apperr.Kind. Any
// error that isn't an *apperr.Error is treated as Internal and its detail is
// not leaked to the client.
func writeAppError(w http.ResponseWriter, err error) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		writeError(w, apperr.HTTPStatus(appErr.Kind), string(appErr.Kind), appErr.Message)
		return
	}
	writeError(w, http.StatusInternalServerError, string(apperr.Internal), "an internal error occurred")
}

func badRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, string(apperr.Invalid), message)
}

func unauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, string(apperr.Unauthenticated), message)
}
