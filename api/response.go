package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/halvard/minne/internal/fault"
	"github.com/halvard/minne/internal/log"
)

// userIDHeader identifies the calling user on /api endpoints.
const userIDHeader = "X-User-ID"

// writeJSON writes a JSON response with the given status code.
// If encoding fails after WriteHeader the status is already on the wire;
// the error is logged and the response left as is.
func writeJSON(w http.ResponseWriter, logger log.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
	}
}

// ErrorResponse represents a JSON error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, logger log.Logger, status int, err string, message string) {
	writeJSON(w, logger, status, ErrorResponse{Error: err, Message: message})
}

// writeFault maps a service error onto an HTTP status via the fault
// sentinels: not found → 404, bad request → 400, everything else → 500.
// Internal detail goes to the handler's logger, not to the client.
func writeFault(w http.ResponseWriter, logger log.Logger, err error) {
	switch {
	case errors.Is(err, fault.ErrNotFound):
		writeError(w, logger, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, fault.ErrBadRequest):
		writeError(w, logger, http.StatusBadRequest, "bad_request", err.Error())
	default:
		logger.Error("request failed", "error", err)
		writeError(w, logger, http.StatusInternalServerError, "internal", "internal server error")
	}
}

// requestUserID reads the calling user's id from the X-User-ID header.
func requestUserID(r *http.Request) (uuid.UUID, error) {
	raw := r.Header.Get(userIDHeader)
	if raw == "" {
		return uuid.Nil, fmt.Errorf("%w: missing %s header", fault.ErrBadRequest, userIDHeader)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid %s header", fault.ErrBadRequest, userIDHeader)
	}
	return id, nil
}
