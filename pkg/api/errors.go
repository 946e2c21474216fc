package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ethpandaops/portfolioor/pkg/api/store"
	"github.com/ethpandaops/portfolioor/pkg/github"
	"github.com/ethpandaops/portfolioor/pkg/identity"
	"github.com/ethpandaops/portfolioor/pkg/moderation"
)

var (
	errValidation      = errors.New("validation failed")
	errUnauthenticated = errors.New("authentication required")
	errForbidden       = errors.New("insufficient permissions")
	errNotFound        = errors.New("not found")
	errUnavailable     = errors.New("not configured")
)

// response is the envelope every endpoint answers with.
type response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

func writeData(w http.ResponseWriter, status int, data any, message string) {
	writeJSON(w, status, response{Success: true, Data: data, Message: message})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, response{Success: false, Error: message})
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errValidation, fmt.Sprintf(format, args...))
}

// statusFor maps an error from any layer to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errValidation),
		errors.Is(err, moderation.ErrValidation),
		errors.Is(err, identity.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, errUnauthenticated),
		errors.Is(err, identity.ErrInvalidCredentials),
		errors.Is(err, identity.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, errForbidden),
		errors.Is(err, moderation.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, errNotFound),
		errors.Is(err, moderation.ErrNotFound),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, errUnavailable):
		return http.StatusNotFound
	case errors.Is(err, moderation.ErrInvalidTransition),
		errors.Is(err, identity.ErrEmailExists),
		errors.Is(err, store.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, identity.ErrUpstream),
		errors.Is(err, github.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with its mapped status. Server-side failures are logged
// and answered with a generic message.
func (s *server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)

	switch {
	case status == http.StatusInternalServerError:
		s.log.WithError(err).
			WithField("path", r.URL.Path).
			Error("Request failed")
		writeError(w, status, "internal error")
	case status == http.StatusBadGateway:
		s.log.WithError(err).
			WithField("path", r.URL.Path).
			Warn("Upstream request failed")
		writeError(w, status, "upstream service unavailable")
	default:
		writeError(w, status, err.Error())
	}
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return invalid("invalid request body")
	}

	return nil
}
