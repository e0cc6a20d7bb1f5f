// Package confirm turns a stream of noisy per-frame classifications into a
// sentence of confirmed gestures.
//
// Each Evaluate call carries one raw sample. Once the cooldown has elapsed
// since the previous evaluation the sample is thresholded into an effective
// gesture and voted on; a gesture that wins RequiredConsecutive votes in a
// row is appended to the transcript and recorded in the audit log, and the
// vote count starts over so a held gesture has to win again to repeat.
package confirm

import (
	"math"
	"sync"
	"time"

	"github.com/ayusman/kalimat/internal/config"
)

// Labels with special meaning to the engine.
const (
	// Unrecognized is the effective gesture for low-confidence or failed samples.
	Unrecognized = "Unrecognized"
	// ModelError is reported when no classifier is loaded.
	ModelError = "Model Error"
	// PredictionError is reported when a single classification fails.
	PredictionError = "Prediction Error"
)

// Transcript and log bounds used when Options leaves them at zero.
const (
	DefaultMaxSentenceLength = config.DefaultMaxSentenceLength
	DefaultMaxLogSize        = config.DefaultMaxLogSize
)

// timestampLayout formats audit log times.
const timestampLayout = "15:04:05"

// Sample is one classifier reading.
type Sample struct {
	Label      string
	Confidence float64
}

// Decision is the result of one Evaluate call. Gesture and Confidence are
// always the raw reading of that call; Sentence is the transcript after any
// append the call performed.
type Decision struct {
	Gesture    string  `json:"gesture"`
	Confidence float64 `json:"confidence"`
	Sentence   string  `json:"sentence"`

	// Evaluated is false when the call fell inside the cooldown window.
	Evaluated bool `json:"-"`
	// Confirmed is the word appended by this call, or empty.
	Confirmed string `json:"-"`
}

// State is a snapshot of the voting state.
type State struct {
	LastLabel      string
	Consecutive    int
	LastEvaluation time.Time
}

// Options bounds the transcript and audit log.
type Options struct {
	MaxSentenceLength int
	MaxLogSize        int
}

// Engine owns the voting state, the transcript and the audit log. All of
// them are mutated under one lock per Evaluate call.
type Engine struct {
	runtime *config.Runtime

	mu         sync.Mutex
	lastLabel  string
	count      int
	lastEval   time.Time
	transcript *Transcript
	log        *AuditLog
}

// New creates an Engine reading its thresholds from rt. The first Evaluate
// call is never held back by the cooldown.
func New(rt *config.Runtime, opts Options) *Engine {
	if rt == nil {
		rt = config.NewRuntime()
	}
	return &Engine{
		runtime:    rt,
		transcript: NewTranscript(opts.MaxSentenceLength),
		log:        NewAuditLog(opts.MaxLogSize),
	}
}

// Runtime returns the parameters the engine reads on every evaluation.
func (e *Engine) Runtime() *config.Runtime {
	return e.runtime
}

// Effective maps a raw sample to the gesture used for voting.
func Effective(label string, confidence, threshold float64) string {
	if confidence < threshold || label == ModelError || label == PredictionError {
		return Unrecognized
	}
	return label
}

// Evaluate feeds one raw sample observed at now.
func (e *Engine) Evaluate(label string, confidence float64, now time.Time) Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	d := Decision{Gesture: label, Confidence: confidence}

	if !e.lastEval.IsZero() && now.Sub(e.lastEval) < e.runtime.Cooldown() {
		d.Sentence = e.transcript.String()
		return d
	}
	d.Evaluated = true

	effective := Effective(label, confidence, e.runtime.Threshold())

	if effective == e.lastLabel && effective != Unrecognized {
		e.count++
	} else {
		e.lastLabel = effective
		e.count = 1
	}

	if e.count >= e.runtime.RequiredConsecutive() && e.lastLabel != Unrecognized {
		e.transcript.Append(e.lastLabel)
		e.log.Add(LogEntry{
			Timestamp:  now.Local().Format(timestampLayout),
			Gesture:    e.lastLabel,
			Confidence: round2(confidence),
		})
		e.count = 0
		d.Confirmed = e.lastLabel
	}

	e.lastEval = now
	d.Sentence = e.transcript.String()
	return d
}

// ClearTranscript empties the transcript. Voting state and log are kept.
func (e *Engine) ClearTranscript() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.transcript.Clear()
}

// Log returns the audit log, newest entry first.
func (e *Engine) Log() []LogEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.log.NewestFirst()
}

// Sentence returns the transcript joined with spaces.
func (e *Engine) Sentence() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.transcript.String()
}

// Words returns the transcript words, oldest first.
func (e *Engine) Words() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.transcript.Words()
}

// State returns the current voting state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return State{
		LastLabel:      e.lastLabel,
		Consecutive:    e.count,
		LastEvaluation: e.lastEval,
	}
}

// SetThreshold validates and stores a new confidence threshold.
func (e *Engine) SetThreshold(v float64) error {
	return e.runtime.SetThreshold(v)
}

// SetCooldown validates and stores a new cooldown in seconds.
func (e *Engine) SetCooldown(v float64) error {
	return e.runtime.SetCooldown(v)
}

// SetRequiredConsecutive validates and stores a new agreement count.
func (e *Engine) SetRequiredConsecutive(n int) error {
	return e.runtime.SetRequiredConsecutive(n)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
