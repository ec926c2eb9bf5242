// Package api holds the JSON response conventions shared by the portal and
// admin HTTP surfaces.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/plexary/tenantgate/internal/apperror"
)

// Envelope is the standard success wrapper.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorEnvelope is the standard denial/error wrapper. Code is machine
// readable; Error is for humans.
type ErrorEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

// WriteJSON writes v wrapped in the success envelope.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(Envelope{Success: true, Data: v}); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// WriteRaw writes v without the envelope, for endpoints whose shape is
// already a contract (health, stats dumps).
func WriteRaw(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// WriteError maps err onto the error envelope. Unknown errors are masked as
// internal failures so no detail leaks to the client.
func WriteError(w http.ResponseWriter, err error) {
	e := apperror.FromError(err)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)

	_ = json.NewEncoder(w).Encode(ErrorEnvelope{
		Success: false,
		Error:   e.Message,
		Code:    e.Code,
	})
}

// WriteErrorMessage writes an error envelope with an explicit status and
// message, for request-shape problems that have no taxonomy entry.
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(ErrorEnvelope{Success: false, Error: message})
}

// Decode reads a JSON body into v.
func Decode(r *http.Request, v interface{}) error {
	defer func() { _ = r.Body.Close() }()
	return json.NewDecoder(r.Body).Decode(v)
}
