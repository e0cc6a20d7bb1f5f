// Package plugin runs external programs in response to transcript events.
//
// A plugin is a directory holding a plugin.json manifest and an executable.
// For every event the plugin subscribes to, the executable is started with
// a JSON Request on stdin and must print a JSON Response on stdout.
package plugin

import "encoding/json"

// Manifest describes a plugin's metadata and the events it handles.
type Manifest struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Description string          `json:"description"`
	Executable  string          `json:"executable"`
	Events      []string        `json:"events"`
	Config      json.RawMessage `json:"config,omitempty"`
}

// Handles reports whether the plugin subscribes to eventType.
func (m Manifest) Handles(eventType string) bool {
	for _, e := range m.Events {
		if e == eventType {
			return true
		}
	}
	return false
}

// Request represents a request sent to a plugin for execution.
type Request struct {
	Event      string          `json:"event"`
	Word       string          `json:"word,omitempty"`
	Confidence float64         `json:"confidence,omitempty"`
	Sentence   string          `json:"sentence"`
	Session    string          `json:"session"`
	Config     json.RawMessage `json:"config,omitempty"`
}

// Response represents the response from a plugin execution.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin represents a discovered plugin with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}
