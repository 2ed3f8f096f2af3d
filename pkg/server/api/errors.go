package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/vulntor/batchq/pkg/queue"
)

// ErrorResponse represents a standard JSON error response.
//
// Example:
//
//	{
//	  "error": "Conflict",
//	  "message": "duplicate item: sku-1",
//	  "details": ["sku-1"]
//	}
type ErrorResponse struct {
	Error   string   `json:"error"`             // Short error type (e.g., "Not Found")
	Message string   `json:"message,omitempty"` // Detailed error message
	Details []string `json:"details,omitempty"` // Offending ids or config fields
}

// ValidationError is a lightweight error used for 400 responses.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field == "" {
		return "validation failed"
	}
	if e.Reason == "" {
		return e.Field + ": invalid"
	}
	return e.Field + ": " + e.Reason
}

// StatusFor maps an error to its HTTP status code:
//   - queue.ErrNotFound → 404
//   - ValidationError, invalid item, invalid config → 400
//   - duplicate item, queue busy → 409
//   - queue closed → 503
//   - anything else → 500
func StatusFor(err error) int {
	var verr *ValidationError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, queue.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &verr),
		errors.Is(err, queue.ErrInvalidItem),
		queue.IsInvalidConfig(err):
		return http.StatusBadRequest
	case queue.IsDuplicate(err), errors.Is(err, queue.ErrQueueBusy):
		return http.StatusConflict
	case errors.Is(err, queue.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// details lists the ids or config fields an error refers to.
func details(err error) []string {
	var dup *queue.DuplicateItemError
	if errors.As(err, &dup) {
		return dup.IDs
	}
	var cfgErr *queue.ConfigError
	if errors.As(err, &cfgErr) {
		out := make([]string, 0, len(cfgErr.Fields))
		for _, f := range cfgErr.Fields {
			out = append(out, fmt.Sprintf("%s: %s", f.Field, f.Rule))
		}
		return out
	}
	return nil
}

// WriteError writes a standard JSON error response with the status code
// StatusFor picks, and logs the failure.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	statusCode := StatusFor(err)

	logEvent := log.Warn()
	if statusCode >= http.StatusInternalServerError {
		logEvent = log.Error()
	}
	logEvent.
		Str("component", "api").
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", statusCode).
		Err(err).
		Msg("Request failed")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: err.Error(),
		Details: details(err),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().
			Str("component", "api").
			Err(err).
			Msg("Failed to encode error response")
	}
}

// WriteJSONError writes a custom JSON error response with a specific status code.
//
// Example:
//
//	WriteJSONError(w, http.StatusBadRequest, "Invalid Input", "items must not be empty")
func WriteJSONError(w http.ResponseWriter, statusCode int, errorType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error:   errorType,
		Message: message,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().
			Str("component", "api").
			Err(err).
			Msg("Failed to encode error response")
	}
}

// WriteJSON writes a JSON response to the client.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().
			Str("component", "api").
			Err(err).
			Msg("Failed to encode JSON response")
	}
}
