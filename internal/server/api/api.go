// Package api provides the JSON handlers of the kalimat HTTP API.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/ayusman/kalimat/internal/app"
	"github.com/ayusman/kalimat/internal/config"
	"github.com/ayusman/kalimat/internal/confirm"
)

// Predictor runs one evaluation cycle.
type Predictor interface {
	Predict() confirm.Decision
}

// Transcript exposes the sentence and the audit log.
type Transcript interface {
	ClearTranscript()
	Log() []confirm.LogEntry
}

// Settings changes runtime parameters through validated setters.
type Settings interface {
	SetThreshold(v float64) error
	SetCooldown(v float64) error
	SetRequiredConsecutive(n int) error
	SetMirror(enabled bool)
	Runtime() *config.Runtime
}

// StatusProvider reports the application status.
type StatusProvider interface {
	Status() app.Status
}

type errorResponse struct {
	Error string `json:"error"`
}

type failureResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeFailure writes the {success:false, message} body used by the setters.
func writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, failureResponse{Success: false, Message: message})
}
