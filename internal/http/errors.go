// Package httpapi exposes the HTTP API layer of the service.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/abcretail/order-service/internal/fault"
)

// jsonError represents a JSON error payload.
type jsonError struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// WriteJSONError writes a JSON error payload with the given status code.
func WriteJSONError(w http.ResponseWriter, status int, message, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(jsonError{Error: message, Details: details})
}

// WriteError maps the service error taxonomy onto HTTP status codes.
// Validation, lookup, and stock rejections are client errors; version-tag
// conflicts surface as 409 so the caller can retry from a fresh read.
func WriteError(w http.ResponseWriter, err error) {
	switch {
	case fault.IsValidation(err):
		WriteJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
	case fault.IsInsufficientStock(err):
		WriteJSONError(w, http.StatusBadRequest, "insufficient_stock", err.Error())
	case fault.IsNotFound(err):
		WriteJSONError(w, http.StatusNotFound, "not_found", err.Error())
	case fault.IsConflict(err):
		WriteJSONError(w, http.StatusConflict, "conflict", err.Error())
	default:
		WriteJSONError(w, http.StatusServiceUnavailable, "transient_error", err.Error())
	}
}
