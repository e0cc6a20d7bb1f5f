// Package emitter delivers transcript events to outside consumers.
package emitter

import "time"

// Event types.
const (
	EventConfirmed = "confirmed"
	EventCleared   = "cleared"
)

// Event describes one change to the transcript.
type Event struct {
	Type       string    `json:"type"`
	Word       string    `json:"word,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	Sentence   string    `json:"sentence"`
	Session    string    `json:"session"`
	Timestamp  time.Time `json:"timestamp"`
}

// Sink receives transcript events.
type Sink interface {
	Emit(Event) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Event) error

// Emit calls f(ev).
func (f SinkFunc) Emit(ev Event) error {
	return f(ev)
}
