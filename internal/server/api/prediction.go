package api

import (
	"math"
	"net/http"

	"github.com/ayusman/kalimat/internal/confirm"
)

// PredictionHandler serves GET /api/prediction.
type PredictionHandler struct {
	predictor Predictor
}

// NewPredictionHandler creates a PredictionHandler.
func NewPredictionHandler(p Predictor) *PredictionHandler {
	return &PredictionHandler{predictor: p}
}

type predictionResponse struct {
	Gesture    string  `json:"gesture"`
	Confidence float64 `json:"confidence"`
	Sentence   string  `json:"sentence"`
}

func (h *PredictionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	d := h.predictor.Predict()
	writeJSON(w, http.StatusOK, toPrediction(d))
}

func toPrediction(d confirm.Decision) predictionResponse {
	return predictionResponse{
		Gesture:    d.Gesture,
		Confidence: math.Round(d.Confidence*100) / 100,
		Sentence:   d.Sentence,
	}
}

// LogHandler serves GET /api/log.
type LogHandler struct {
	transcript Transcript
}

// NewLogHandler creates a LogHandler.
func NewLogHandler(t Transcript) *LogHandler {
	return &LogHandler{transcript: t}
}

type logResponse struct {
	Log []confirm.LogEntry `json:"log"`
}

func (h *LogHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	entries := h.transcript.Log()
	if entries == nil {
		entries = []confirm.LogEntry{}
	}
	writeJSON(w, http.StatusOK, logResponse{Log: entries})
}

// ClearHandler serves POST /api/sentence/clear.
type ClearHandler struct {
	transcript Transcript
}

// NewClearHandler creates a ClearHandler.
func NewClearHandler(t Transcript) *ClearHandler {
	return &ClearHandler{transcript: t}
}

type clearResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (h *ClearHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.transcript.ClearTranscript()
	writeJSON(w, http.StatusOK, clearResponse{Success: true, Message: "Sentence cleared"})
}

// StatusHandler serves GET /api/status.
type StatusHandler struct {
	status StatusProvider
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(s StatusProvider) *StatusHandler {
	return &StatusHandler{status: s}
}

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	st := h.status.Status()
	st.Latest.Confidence = math.Round(st.Latest.Confidence*100) / 100
	writeJSON(w, http.StatusOK, st)
}
