package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/ayusman/kalimat/internal/config"
)

// maxBodyBytes bounds setter request bodies.
const maxBodyBytes = 1 << 16

var errNotNumeric = errors.New("not a number")

// SettingsHandler serves GET /api/settings and POST /api/settings/{name}.
type SettingsHandler struct {
	settings Settings
}

// NewSettingsHandler creates a SettingsHandler.
func NewSettingsHandler(s Settings) *SettingsHandler {
	return &SettingsHandler{settings: s}
}

// setting describes one numeric runtime parameter.
type setting struct {
	field    string
	fallback float64
	invalid  string
	outRange string
	parse    func(json.RawMessage) (float64, error)
	apply    func(Settings, float64) error
	current  func(*config.Runtime) any
}

var settingsByName = map[string]setting{
	"threshold": {
		field:    "threshold",
		fallback: config.DefaultThreshold,
		invalid:  "Invalid threshold value",
		outRange: "Threshold must be between 0.0 and 1.0",
		parse:    parseNumber,
		apply:    func(s Settings, v float64) error { return s.SetThreshold(v) },
		current:  func(rt *config.Runtime) any { return rt.Threshold() },
	},
	"cooldown": {
		field:    "cooldown",
		fallback: config.DefaultCooldown,
		invalid:  "Invalid cooldown value",
		outRange: fmt.Sprintf("Cooldown must be at least %g seconds", config.MinCooldown),
		parse:    parseNumber,
		apply:    func(s Settings, v float64) error { return s.SetCooldown(v) },
		current:  func(rt *config.Runtime) any { return rt.CooldownSeconds() },
	},
	"consecutive": {
		field:    "consecutive",
		fallback: config.DefaultConsecutive,
		invalid:  "Invalid consecutive value",
		outRange: "Consecutive must be at least 1",
		parse:    parseCount,
		apply: func(s Settings, v float64) error {
			n, err := toInt(v)
			if err != nil {
				return err
			}
			return s.SetRequiredConsecutive(n)
		},
		current: func(rt *config.Runtime) any { return rt.RequiredConsecutive() },
	},
}

func (h *SettingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/api/settings")
	name = strings.Trim(name, "/")

	if name == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, h.settings.Runtime().Snapshot())
		return
	}

	s, ok := settingsByName[name]
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown setting")
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := decodeBody(w, r)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	v := s.fallback
	if raw, ok := body[s.field]; ok {
		v, err = s.parse(raw)
		if err != nil {
			writeFailure(w, http.StatusBadRequest, s.invalid)
			return
		}
	}

	if err := s.apply(h.settings, v); err != nil {
		switch {
		case errors.Is(err, errNotNumeric):
			writeFailure(w, http.StatusBadRequest, s.invalid)
		case errors.Is(err, config.ErrInvalidParameter):
			writeFailure(w, http.StatusBadRequest, s.outRange)
		default:
			writeFailure(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		s.field:   s.current(h.settings.Runtime()),
	})
}

// MirrorHandler serves POST /api/mirror.
type MirrorHandler struct {
	settings Settings
}

// NewMirrorHandler creates a MirrorHandler.
func NewMirrorHandler(s Settings) *MirrorHandler {
	return &MirrorHandler{settings: s}
}

type mirrorResponse struct {
	MirrorEnabled bool `json:"mirror_enabled"`
}

func (h *MirrorHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := decodeBody(w, r)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	nonMirror := false
	if raw, ok := body["non_mirror"]; ok {
		if err := json.Unmarshal(raw, &nonMirror); err != nil {
			writeFailure(w, http.StatusBadRequest, "Invalid non_mirror value")
			return
		}
	}

	h.settings.SetMirror(!nonMirror)
	writeJSON(w, http.StatusOK, mirrorResponse{MirrorEnabled: h.settings.Runtime().Mirror()})
}

func decodeBody(w http.ResponseWriter, r *http.Request) (map[string]json.RawMessage, error) {
	var body map[string]json.RawMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		return nil, err
	}
	return body, nil
}

// parseNumber accepts a JSON number or a string holding one.
func parseNumber(raw json.RawMessage) (float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, errNotNumeric
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, errNotNumeric
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, errNotNumeric
		}
		return v, nil
	}

	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, errNotNumeric
	}
	return v, nil
}

// parseCount accepts a JSON number, truncated toward zero, or a string
// holding an integer. "2.5" as a string is not a count.
func parseCount(raw json.RawMessage) (float64, error) {
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, errNotNumeric
		}
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return 0, errNotNumeric
		}
		return float64(n), nil
	}

	v, err := parseNumber(raw)
	if err != nil {
		return 0, err
	}
	return math.Trunc(v), nil
}

func toInt(v float64) (int, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errNotNumeric
	}
	if v < math.MinInt32 || v > math.MaxInt32 {
		return 0, fmt.Errorf("%w: consecutive out of range", config.ErrInvalidParameter)
	}
	return int(v), nil
}
