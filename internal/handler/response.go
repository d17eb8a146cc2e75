package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON or writeError so the API has one
// success shape and one error shape:
//
//	{"error": "not_found", "message": "task not found with id abc123"}
//
// "error" is machine-readable (validation_error, unauthorized, not_found,
// internal_error); "message" is safe to show to a user.

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/task-manager/internal/apperror"
)

// maxJSONBody bounds every JSON request body.
const maxJSONBody = 1 << 20

// ErrorResponse is the error body returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeJSON sends data as JSON with the given status. Headers must be set
// before WriteHeader; anything set afterwards is ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to its HTTP status and sends it.
//
//	ErrValidation   → 400 validation_error
//	ErrUnauthorized → 401 unauthorized
//	ErrNotFound     → 404 not_found
//	ErrConflict     → 400 validation_error
//	anything else   → 500 internal_error
//
// Internal failures are logged with their cause; the client only sees a
// generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := classify(err)
	writeErrorStatus(w, r, status, kind, err)
}

// writeErrorStatus is writeError with the status chosen by the caller.
func writeErrorStatus(w http.ResponseWriter, r *http.Request, status int, kind string, err error) {
	var appErr *apperror.AppError
	message := "An internal error occurred"
	if errors.As(err, &appErr) && kind != "internal_error" {
		message = appErr.Message
	}

	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed",
			slog.String("requestID", chimiddleware.GetReqID(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}

	writeJSON(w, status, ErrorResponse{Error: kind, Message: message})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation), errors.Is(err, apperror.ErrConflict):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// decodeJSON reads a bounded JSON body into dst. Malformed input is a
// validation error.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperror.ValidationFailed("body", "Request body is required")
		}
		return apperror.ValidationFailed("body", "Request body is not valid JSON for this endpoint")
	}
	return nil
}
