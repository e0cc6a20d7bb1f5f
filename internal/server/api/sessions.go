package api

import (
	"net/http"
	"strconv"

	"github.com/ayusman/kalimat/internal/store"
)

// Session list bounds for GET /api/sessions.
const (
	DefaultSessionLimit = 20
	MaxSessionLimit     = 100
)

// SessionHistory lists recorded process runs, newest first.
type SessionHistory interface {
	Recent(limit int) ([]*store.Session, error)
}

// SessionsHandler handles GET /api/sessions.
type SessionsHandler struct {
	history SessionHistory
}

// NewSessionsHandler creates a new SessionsHandler.
func NewSessionsHandler(history SessionHistory) *SessionsHandler {
	return &SessionsHandler{history: history}
}

type sessionsResponse struct {
	Sessions []*store.Session `json:"sessions"`
}

// ServeHTTP returns up to ?limit= sessions.
func (h *SessionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := DefaultSessionLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, MaxSessionLimit)
	}

	sessions, err := h.history.Recent(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []*store.Session{}
	}
	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: sessions})
}
