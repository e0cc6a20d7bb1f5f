package app

import (
	"errors"
	"sync"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/kalimat/internal/capture"
	"github.com/ayusman/kalimat/internal/classifier"
	"github.com/ayusman/kalimat/internal/config"
	"github.com/ayusman/kalimat/internal/confirm"
	"github.com/ayusman/kalimat/internal/emitter"
	"github.com/ayusman/kalimat/internal/store"
)

// stepClock advances by step on every call.
type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

type testEnv struct {
	app        *App
	camera     *capture.MockCamera
	classifier *classifier.MockClassifier
	events     chan emitter.Event
	store      *store.Store
}

func newTestEnv(t *testing.T, withModel bool, samples ...confirm.Sample) *testEnv {
	t.Helper()

	frame := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { frame.Close() })

	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	env := &testEnv{
		camera: capture.NewMockCamera([]*gocv.Mat{&frame}, true),
		events: make(chan emitter.Event, 16),
		store:  s,
	}

	rt := config.NewRuntime()
	cfg := Config{
		Source:   capture.NewSource(env.camera, rt),
		Runtime:  rt,
		Settings: s.Settings(),
		Sessions: s.Sessions(),
		Sinks: []emitter.Sink{emitter.SinkFunc(func(ev emitter.Event) error {
			env.events <- ev
			return nil
		})},
		Now: (&stepClock{now: time.Date(2026, 1, 1, 10, 0, 0, 0, time.Local), step: 2 * time.Second}).Now,
	}
	if withModel {
		env.classifier = classifier.NewMockClassifier(samples...)
		cfg.Classifier = env.classifier
	}

	env.app = New(cfg)
	t.Cleanup(func() { env.app.Close() })
	return env
}

func (e *testEnv) nextEvent(t *testing.T) emitter.Event {
	t.Helper()
	select {
	case ev := <-e.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return emitter.Event{}
	}
}

func TestApp_LatestStartsEmpty(t *testing.T) {
	env := newTestEnv(t, true)

	if got := env.app.Latest().Gesture; got != NoPrediction {
		t.Errorf("Latest().Gesture = %q, want %q", got, NoPrediction)
	}
	if env.app.Session() == "" {
		t.Error("Session() should not be empty")
	}
}

func TestApp_PredictConfirmsAndPublishes(t *testing.T) {
	env := newTestEnv(t, true, confirm.Sample{Label: "Hello", Confidence: 0.9})

	var d confirm.Decision
	for i := 0; i < 3; i++ {
		d = env.app.Predict()
	}

	if d.Gesture != "Hello" || d.Sentence != "Hello" {
		t.Errorf("third Predict() = %+v, want Hello/Hello", d)
	}
	if env.app.Latest() != d {
		t.Errorf("Latest() = %+v, want %+v", env.app.Latest(), d)
	}

	ev := env.nextEvent(t)
	if ev.Type != emitter.EventConfirmed || ev.Word != "Hello" || ev.Sentence != "Hello" {
		t.Errorf("event = %+v", ev)
	}
	if ev.Session != env.app.Session() {
		t.Errorf("event session = %q, want %q", ev.Session, env.app.Session())
	}

	if log := env.app.Log(); len(log) != 1 || log[0].Gesture != "Hello" {
		t.Errorf("Log() = %+v", log)
	}
}

func TestApp_PredictCameraUnavailable(t *testing.T) {
	env := newTestEnv(t, true, confirm.Sample{Label: "Hello", Confidence: 0.9})
	env.camera.SetOpenError(errors.New("unplugged"))

	d := env.app.Predict()
	if d.Gesture != CameraUnavailable || d.Confidence != 0 {
		t.Errorf("Predict() = %+v, want %s", d, CameraUnavailable)
	}
	if env.classifier.Calls() != 0 {
		t.Error("classifier should not run without a frame")
	}
	if st := env.app.Engine().State(); !st.LastEvaluation.IsZero() {
		t.Error("engine should not evaluate without a frame")
	}
}

func TestApp_PredictReadFailure(t *testing.T) {
	env := newTestEnv(t, true)
	env.camera.SetReadError(errors.New("timeout"))

	if d := env.app.Predict(); d.Gesture != FrameReadError {
		t.Errorf("Predict().Gesture = %q, want %q", d.Gesture, FrameReadError)
	}
}

func TestApp_PredictWithoutModel(t *testing.T) {
	env := newTestEnv(t, false)

	d := env.app.Predict()
	if d.Gesture != confirm.ModelError {
		t.Errorf("Predict().Gesture = %q, want %q", d.Gesture, confirm.ModelError)
	}
	if env.app.ModelAvailable() {
		t.Error("ModelAvailable() should be false")
	}
	if st := env.app.Engine().State(); !st.LastEvaluation.IsZero() {
		t.Error("engine should not evaluate without a model")
	}
}

func TestApp_PredictClassifierFailure(t *testing.T) {
	env := newTestEnv(t, true)
	env.classifier.SetError(errors.New("service crashed"))

	d := env.app.Predict()
	if d.Gesture != confirm.PredictionError {
		t.Errorf("Predict().Gesture = %q, want %q", d.Gesture, confirm.PredictionError)
	}
	st := env.app.Engine().State()
	if st.LastEvaluation.IsZero() || st.LastLabel != confirm.Unrecognized {
		t.Errorf("engine state = %+v, want an Unrecognized evaluation", st)
	}
}

func TestApp_ClearTranscript(t *testing.T) {
	env := newTestEnv(t, true, confirm.Sample{Label: "Yes", Confidence: 0.8})
	for i := 0; i < 3; i++ {
		env.app.Predict()
	}
	env.nextEvent(t)

	env.app.ClearTranscript()

	ev := env.nextEvent(t)
	if ev.Type != emitter.EventCleared || ev.Sentence != "" {
		t.Errorf("event = %+v, want cleared with empty sentence", ev)
	}
	if s := env.app.Status().Sentence; s != "" {
		t.Errorf("sentence = %q, want empty", s)
	}
	if len(env.app.Log()) != 1 {
		t.Error("clearing the sentence should keep the log")
	}
}

func TestApp_SettersPersist(t *testing.T) {
	env := newTestEnv(t, true)

	if err := env.app.SetThreshold(0.75); err != nil {
		t.Fatalf("SetThreshold() error = %v", err)
	}
	if err := env.app.SetCooldown(2.5); err != nil {
		t.Fatalf("SetCooldown() error = %v", err)
	}
	if err := env.app.SetRequiredConsecutive(5); err != nil {
		t.Fatalf("SetRequiredConsecutive() error = %v", err)
	}
	env.app.SetMirror(false)

	if err := env.app.SetThreshold(1.5); !errors.Is(err, config.ErrInvalidParameter) {
		t.Errorf("SetThreshold(1.5) error = %v, want ErrInvalidParameter", err)
	}

	rt := config.NewRuntime()
	if err := env.store.Settings().LoadRuntime(rt); err != nil {
		t.Fatalf("LoadRuntime() error = %v", err)
	}
	want := config.Snapshot{Threshold: 0.75, Cooldown: 2.5, Consecutive: 5, Mirror: false}
	if got := rt.Snapshot(); got != want {
		t.Errorf("persisted %+v, want %+v", got, want)
	}
}

func TestApp_ApplyRuntime(t *testing.T) {
	env := newTestEnv(t, true)

	err := env.app.ApplyRuntime(config.Snapshot{Threshold: 0.6, Cooldown: 0.5, Consecutive: 2, Mirror: true})
	if err != nil {
		t.Fatalf("ApplyRuntime() error = %v", err)
	}
	if got := env.app.Runtime().RequiredConsecutive(); got != 2 {
		t.Errorf("RequiredConsecutive() = %d, want 2", got)
	}

	err = env.app.ApplyRuntime(config.Snapshot{Threshold: 0.6, Cooldown: 0.01, Consecutive: 2, Mirror: true})
	if !errors.Is(err, config.ErrInvalidParameter) {
		t.Errorf("ApplyRuntime() error = %v, want ErrInvalidParameter", err)
	}
}

func TestApp_Status(t *testing.T) {
	env := newTestEnv(t, true, confirm.Sample{Label: "A", Confidence: 0.9})
	env.app.Predict()

	st := env.app.Status()
	if st.Session != env.app.Session() {
		t.Errorf("Session = %q", st.Session)
	}
	if st.Camera != capture.StateReady.String() {
		t.Errorf("Camera = %q, want ready", st.Camera)
	}
	if !st.ModelLoaded {
		t.Error("ModelLoaded should be true")
	}
	if st.Latest.Gesture != "A" {
		t.Errorf("Latest.Gesture = %q, want A", st.Latest.Gesture)
	}
	if st.Settings != config.NewRuntime().Snapshot() {
		t.Errorf("Settings = %+v, want defaults", st.Settings)
	}
}

func TestApp_CloseRecordsSessionAndReleasesCamera(t *testing.T) {
	env := newTestEnv(t, true, confirm.Sample{Label: "A", Confidence: 0.9})
	for i := 0; i < 3; i++ {
		env.app.Predict()
	}

	if err := env.app.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	// Second close is a no-op.
	env.app.Close()

	if env.camera.IsOpen() {
		t.Error("camera should be released after Close()")
	}
	if !env.classifier.Closed() {
		t.Error("classifier should be closed after Close()")
	}

	sess, err := env.store.Sessions().Get(env.app.Session())
	if err != nil {
		t.Fatalf("Sessions().Get() error = %v", err)
	}
	if sess.EndedAt == nil {
		t.Error("session should be ended")
	}
	if sess.Confirmed != 1 {
		t.Errorf("session confirmed = %d, want 1", sess.Confirmed)
	}
}
