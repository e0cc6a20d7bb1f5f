// Package app wires the camera, classifier and confirmation engine together
// and fans confirmed words out to the configured sinks.
package app

import (
	"context"
	"iter"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/kalimat/internal/capture"
	"github.com/ayusman/kalimat/internal/classifier"
	"github.com/ayusman/kalimat/internal/config"
	"github.com/ayusman/kalimat/internal/confirm"
	"github.com/ayusman/kalimat/internal/emitter"
	"github.com/ayusman/kalimat/internal/stream"
)

// Labels reported when no classification took place.
const (
	CameraUnavailable = "Camera Unavailable"
	FrameReadError    = "Frame Read Error"
	NoPrediction      = "No prediction yet"
)

// FrameSource is the camera side of the app. capture.Source implements it.
type FrameSource interface {
	NextFrame() capture.Frame
	Placeholder() []byte
	State() capture.State
	Close() error
}

// SettingsStore persists runtime parameters.
type SettingsStore interface {
	SaveRuntime(config.Snapshot) error
}

// SessionRecorder records process runs.
type SessionRecorder interface {
	Start(id string, at time.Time) error
	AddConfirmed(id string) error
	End(id string, at time.Time) error
}

// Config holds the collaborators of an App. Only Source is required.
type Config struct {
	Source     FrameSource
	Classifier classifier.Classifier
	Runtime    *config.Runtime
	Engine     confirm.Options
	StreamFPS  int

	Settings SettingsStore
	Sessions SessionRecorder
	Sinks    []emitter.Sink

	// Now overrides the clock used for evaluations.
	Now func() time.Time
}

// App is the single shared instance serving predictions, the stream and
// runtime settings.
type App struct {
	source     FrameSource
	classifier classifier.Classifier
	runtime    *config.Runtime
	engine     *confirm.Engine
	publisher  *stream.Publisher
	settings   SettingsStore
	sessions   SessionRecorder
	now        func() time.Time

	session string
	started time.Time

	mu     sync.RWMutex
	latest confirm.Decision

	events     chan emitter.Event
	sinks      []emitter.Sink
	eventsMu   sync.Mutex
	closed     bool
	dispatched sync.WaitGroup
}

// New creates an App and starts delivering events to cfg.Sinks.
func New(cfg Config) *App {
	rt := cfg.Runtime
	if rt == nil {
		rt = config.NewRuntime()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	a := &App{
		source:     cfg.Source,
		classifier: cfg.Classifier,
		runtime:    rt,
		engine:     confirm.New(rt, cfg.Engine),
		publisher:  stream.New(cfg.Source, cfg.StreamFPS),
		settings:   cfg.Settings,
		sessions:   cfg.Sessions,
		now:        now,
		session:    uuid.NewString(),
		started:    now(),
		latest:     confirm.Decision{Gesture: NoPrediction},
		events:     make(chan emitter.Event, eventBuffer),
		sinks:      append([]emitter.Sink(nil), cfg.Sinks...),
	}

	if a.sessions != nil {
		if err := a.sessions.Start(a.session, a.started); err != nil {
			log.Printf("Failed to record session: %v", err)
		}
		a.sinks = append(a.sinks, emitter.SinkFunc(a.countConfirmed))
	}

	if a.classifier == nil {
		log.Println("No gesture model loaded; predictions will report Model Error")
	}

	a.dispatched.Add(1)
	go a.dispatch()

	return a
}

// Session returns the id of this process run.
func (a *App) Session() string {
	return a.session
}

// Runtime returns the live runtime parameters.
func (a *App) Runtime() *config.Runtime {
	return a.runtime
}

// Engine returns the confirmation engine.
func (a *App) Engine() *confirm.Engine {
	return a.engine
}

// ModelAvailable reports whether a classifier is loaded.
func (a *App) ModelAvailable() bool {
	return a.classifier != nil
}

// Predict reads one frame, classifies it and feeds the result to the
// engine. Camera failures and a missing model are reported as labels
// without touching the engine; a failed classification is evaluated as
// confirm.PredictionError.
func (a *App) Predict() confirm.Decision {
	frame := a.source.NextFrame()
	defer frame.Close()

	if !frame.Live() {
		label := CameraUnavailable
		if frame.Status == capture.StatusReadFailed {
			label = FrameReadError
		}
		return a.remember(confirm.Decision{Gesture: label, Sentence: a.engine.Sentence()})
	}

	if a.classifier == nil {
		return a.remember(confirm.Decision{Gesture: confirm.ModelError, Sentence: a.engine.Sentence()})
	}

	sample, err := classifier.Sample(a.classifier, frame.Mat)
	if err != nil {
		log.Printf("Prediction failed: %v", err)
	}

	d := a.engine.Evaluate(sample.Label, sample.Confidence, a.now())
	if d.Confirmed != "" {
		log.Printf("Confirmed gesture: %s (%.2f)", d.Confirmed, d.Confidence)
		a.publish(emitter.Event{
			Type:       emitter.EventConfirmed,
			Word:       d.Confirmed,
			Confidence: d.Confidence,
			Sentence:   d.Sentence,
		})
	}
	return a.remember(d)
}

func (a *App) remember(d confirm.Decision) confirm.Decision {
	a.mu.Lock()
	a.latest = d
	a.mu.Unlock()
	return d
}

// Latest returns the most recent prediction.
func (a *App) Latest() confirm.Decision {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.latest
}

// Frames returns the MJPEG frame sequence for one viewer.
func (a *App) Frames(ctx context.Context) iter.Seq[[]byte] {
	return a.publisher.Frames(ctx)
}

// ClearTranscript empties the sentence.
func (a *App) ClearTranscript() {
	a.engine.ClearTranscript()
	log.Println("Sentence cleared")
	a.publish(emitter.Event{Type: emitter.EventCleared})
}

// Log returns the audit log, newest first.
func (a *App) Log() []confirm.LogEntry {
	return a.engine.Log()
}

// SetThreshold updates the confidence threshold.
func (a *App) SetThreshold(v float64) error {
	if err := a.engine.SetThreshold(v); err != nil {
		return err
	}
	log.Printf("Confidence threshold set to %.2f", v)
	a.persist()
	return nil
}

// SetCooldown updates the cooldown between evaluations, in seconds.
func (a *App) SetCooldown(v float64) error {
	if err := a.engine.SetCooldown(v); err != nil {
		return err
	}
	log.Printf("Cooldown set to %.2fs", v)
	a.persist()
	return nil
}

// SetRequiredConsecutive updates how many agreeing evaluations confirm a gesture.
func (a *App) SetRequiredConsecutive(n int) error {
	if err := a.engine.SetRequiredConsecutive(n); err != nil {
		return err
	}
	log.Printf("Required consecutive set to %d", n)
	a.persist()
	return nil
}

// SetMirror turns horizontal flipping of frames on or off.
func (a *App) SetMirror(enabled bool) {
	a.runtime.SetMirror(enabled)
	log.Printf("Mirror enabled: %t", enabled)
	a.persist()
}

// ApplyRuntime replaces the runtime parameters, e.g. after the config file
// changed. It stops at the first invalid value.
func (a *App) ApplyRuntime(s config.Snapshot) error {
	if err := a.runtime.Apply(s); err != nil {
		return err
	}
	a.persist()
	return nil
}

func (a *App) persist() {
	if a.settings == nil {
		return
	}
	if err := a.settings.SaveRuntime(a.runtime.Snapshot()); err != nil {
		log.Printf("Failed to save settings: %v", err)
	}
}

// Status is a point-in-time view of the app.
type Status struct {
	Session     string           `json:"session"`
	StartedAt   time.Time        `json:"started_at"`
	Camera      string           `json:"camera"`
	ModelLoaded bool             `json:"model_loaded"`
	Settings    config.Snapshot  `json:"settings"`
	Latest      confirm.Decision `json:"latest"`
	Sentence    string           `json:"sentence"`
	Words       int              `json:"words"`
	LogEntries  int              `json:"log_entries"`
}

// Status returns the current status.
func (a *App) Status() Status {
	return Status{
		Session:     a.session,
		StartedAt:   a.started,
		Camera:      a.source.State().String(),
		ModelLoaded: a.ModelAvailable(),
		Settings:    a.runtime.Snapshot(),
		Latest:      a.Latest(),
		Sentence:    a.engine.Sentence(),
		Words:       len(a.engine.Words()),
		LogEntries:  len(a.engine.Log()),
	}
}

// Close stops event delivery and releases the camera and classifier.
func (a *App) Close() error {
	a.eventsMu.Lock()
	if a.closed {
		a.eventsMu.Unlock()
		return nil
	}
	a.closed = true
	close(a.events)
	a.eventsMu.Unlock()
	a.dispatched.Wait()

	if a.sessions != nil {
		if err := a.sessions.End(a.session, a.now()); err != nil {
			log.Printf("Failed to close session: %v", err)
		}
	}

	if a.classifier != nil {
		if err := a.classifier.Close(); err != nil {
			log.Printf("Error closing classifier: %v", err)
		}
	}

	if err := a.source.Close(); err != nil {
		log.Printf("Error closing camera: %v", err)
		return err
	}
	log.Println("Camera released")
	return nil
}
