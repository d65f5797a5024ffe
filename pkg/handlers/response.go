// Package handlers contains the HTTP surface of atelier-engine. Each
// handler owns one resource family and registers its own routes on the
// shared ServeMux.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/atelier-ai/atelier-engine/pkg/apperrors"
)

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// WriteServiceError maps service-layer errors onto the HTTP error surface:
//
//	ErrNotFound          404 not_found
//	ErrBadReference      409 stale_reference
//	ErrInvalidTransition 409 action_unavailable
//	ErrConflict          409 conflict
//	CommitError          409 commit_failed
//	anything else        500 internal_error
//
// The 409s are all retry-after-refresh conditions: the caller's view of
// the project was stale, not malformed.
func WriteServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var writeErr error
	var commitErr *apperrors.CommitError

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		writeErr = ErrorResponse(w, http.StatusNotFound, "not_found", "Resource not found")
	case errors.As(err, &commitErr):
		writeErr = ErrorResponse(w, http.StatusConflict, "commit_failed", commitErr.Error())
	case errors.Is(err, apperrors.ErrBadReference):
		writeErr = ErrorResponse(w, http.StatusConflict, "stale_reference", err.Error())
	case errors.Is(err, apperrors.ErrInvalidTransition):
		writeErr = ErrorResponse(w, http.StatusConflict, "action_unavailable", err.Error())
	case errors.Is(err, apperrors.ErrConflict):
		writeErr = ErrorResponse(w, http.StatusConflict, "conflict", err.Error())
	default:
		logger.Error("Unhandled service error", zap.Error(err))
		writeErr = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}

	if writeErr != nil {
		logger.Error("Failed to write error response", zap.Error(writeErr))
	}
}
