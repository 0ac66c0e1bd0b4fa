// Package httperr carries HTTP status codes on errors and writes JSON
// error bodies.
package httperr

import (
	"encoding/json"
	"errors"
	"net/http"

	"galleryview/internal/logger"
)

// Error is returned by handlers when the failure is not an internal one.
type Error struct {
	Message    string
	StatusCode int
}

func (e *Error) Error() string {
	return e.Message
}

func New(statusCode int, message string) *Error {
	return &Error{Message: message, StatusCode: statusCode}
}

// Write sends err as {"error": ...}. Errors without a status code are logged
// and reported as 500.
func Write(w http.ResponseWriter, err error, logger *logger.Logger) {
	var e *Error
	if errors.As(err, &e) {
		WriteJSON(w, e.StatusCode, map[string]string{"error": e.Message}, logger)
		return
	}
	logger.Error("Internal error: %v", err)
	WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"}, logger)
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}, logger *logger.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding JSON response: %v", err)
	}
}
